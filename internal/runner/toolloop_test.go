package runner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolLoopDetection_NoLoop(t *testing.T) {
	var s toolLoopState

	for i := 0; i < toolLoopWarningThreshold-1; i++ {
		level, _ := s.observe("list_files", map[string]any{"path": "."})
		require.Empty(t, level, "iteration %d", i)
	}
}

func TestToolLoopDetection_Warning(t *testing.T) {
	var s toolLoopState

	var level string
	for i := 0; i < toolLoopWarningThreshold; i++ {
		level, _ = s.observe("read_file", map[string]any{"path": "notes.txt"})
	}
	require.Equal(t, "warning", level)
}

func TestToolLoopDetection_Critical(t *testing.T) {
	var s toolLoopState

	var level string
	for i := 0; i < toolLoopCriticalThreshold; i++ {
		level, _ = s.observe("read_file", map[string]any{"path": "notes.txt"})
	}
	require.Equal(t, "critical", level)
}

func TestToolLoopDetection_DifferentArgsNoMatch(t *testing.T) {
	var s toolLoopState

	for i := 0; i < toolLoopCriticalThreshold; i++ {
		level, _ := s.observe("read_file", map[string]any{"path": i})
		require.Empty(t, level)
	}
}
