package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGetTrace(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	tr := &Trace{Name: "checkout-agent", StartTime: 100, Status: StatusUnset, Tags: json.RawMessage(`{}`)}
	require.NoError(t, db.CreateTrace(ctx, tr))
	require.NotEmpty(t, tr.TraceID)

	got, err := db.GetTrace(ctx, tr.TraceID)
	require.NoError(t, err)
	require.Equal(t, "checkout-agent", got.Name)
	require.Equal(t, StatusUnset, got.Status)
	require.Nil(t, got.EndTime)
}

func TestGetTraceNotFound(t *testing.T) {
	db := openTestStore(t)
	_, err := db.GetTrace(context.Background(), "missing")
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestListTracesFiltersByStatus(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.CreateTrace(ctx, &Trace{Name: "a", StartTime: 1, Status: StatusOK, Tags: json.RawMessage(`{}`)}))
	require.NoError(t, db.CreateTrace(ctx, &Trace{Name: "b", StartTime: 2, Status: StatusError, Tags: json.RawMessage(`{}`)}))

	traces, total, err := db.ListTraces(ctx, TraceListOpts{Status: StatusError})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, traces, 1)
	require.Equal(t, "b", traces[0].Name)
}

func TestUpdateTraceTagsNotFound(t *testing.T) {
	db := openTestStore(t)
	_, err := db.UpdateTraceTags(context.Background(), "missing", map[string]string{"env": "prod"})
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestDeleteTracesBatchRequiresCriteria(t *testing.T) {
	db := openTestStore(t)
	_, err := db.DeleteTracesBatch(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestPromptVersionsRoundTrip(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	tr := &Trace{Name: "t", StartTime: 1, Status: StatusUnset, Tags: json.RawMessage(`{}`)}
	require.NoError(t, db.CreateTrace(ctx, tr))
	sp := &Span{SpanID: "span-1", TraceID: tr.TraceID, SpanType: SpanTypeLLMCall, Name: "call", Status: StatusUnset,
		StartTime: 1, Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)}
	_, err := db.IngestSpan(ctx, sp)
	require.NoError(t, err)

	require.NoError(t, db.CreatePromptVersion(ctx, &PromptVersion{SpanID: sp.SpanID, PromptText: "v1"}))
	require.NoError(t, db.CreatePromptVersion(ctx, &PromptVersion{SpanID: sp.SpanID, PromptText: "v2"}))

	versions, err := db.ListPromptVersions(ctx, sp.SpanID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "v1", versions[0].PromptText)
	require.Equal(t, "v2", versions[1].PromptText)
}

func TestStatsReflectsIngestedData(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	tr := &Trace{Name: "t", StartTime: 1, Status: StatusUnset, Tags: json.RawMessage(`{}`)}
	require.NoError(t, db.CreateTrace(ctx, tr))
	sp := &Span{SpanID: "span-1", TraceID: tr.TraceID, SpanType: SpanTypeLLMCall, Name: "call", Status: StatusUnset,
		StartTime: 1, Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)}
	_, err := db.IngestSpan(ctx, sp)
	require.NoError(t, err)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TraceCount)
	require.Equal(t, 1, stats.SpanCount)
	require.NotNil(t, stats.OldestTraceTime)
}
