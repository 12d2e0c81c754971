package runner

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Loop-detection thresholds sized for a scripted scenario run: MaxAgentSteps
// bounds a run to a handful of tool calls total, and simulateTool's output is
// a pure function of its arguments (scenarios.go), so a repeated (tool,
// args) pair is by construction a repeated result. A live agent calling a
// real, possibly non-deterministic tool would need to track result hashes
// separately from argument hashes to catch a true no-progress loop; here one
// counter per call signature is enough.
const (
	toolLoopWarningThreshold  = 2 // annotate the step, keep going
	toolLoopCriticalThreshold = 3 // force the run to stop
)

// toolLoopState counts repeated (tool, args) invocations within one run.
type toolLoopState struct {
	counts map[string]int
}

// observe records one tool call and reports whether it has now repeated
// enough times within this run to warrant an annotation or an early stop.
func (s *toolLoopState) observe(toolName string, args map[string]any) (level, message string) {
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	key := callSignature(toolName, args)
	s.counts[key]++
	n := s.counts[key]

	switch {
	case n >= toolLoopCriticalThreshold:
		return "critical", fmt.Sprintf("%s called %d times with identical arguments; stopping run", toolName, n)
	case n >= toolLoopWarningThreshold:
		return "warning", fmt.Sprintf("%s called %d times with identical arguments", toolName, n)
	default:
		return "", ""
	}
}

func callSignature(toolName string, args map[string]any) string {
	h := sha256.Sum256([]byte(toolName + ":" + stableJSON(args)))
	return fmt.Sprintf("%x", h[:16])
}

// stableJSON serializes a value with sorted map keys so identical argument
// sets hash the same regardless of field order.
func stableJSON(v any) string {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q:%s", k, stableJSON(val[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = stableJSON(elem)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
