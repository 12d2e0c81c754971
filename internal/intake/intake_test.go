package intake

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIngestBatchAcceptsValidSpan(t *testing.T) {
	in := New(openTestStore(t))
	res, err := in.IngestBatch(context.Background(), []*store.Span{
		{SpanID: "s1", TraceID: "t1", Status: store.StatusOK, StartTime: 1,
			Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Accepted)
	require.Zero(t, res.Rejected)
	require.Len(t, res.Spans, 1)
	require.True(t, res.Spans[0].Created)
}

func TestIngestBatchRejectsMissingFields(t *testing.T) {
	in := New(openTestStore(t))
	res, err := in.IngestBatch(context.Background(), []*store.Span{
		{TraceID: "t1", Status: store.StatusOK, StartTime: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Rejected)
	require.Len(t, res.Errors, 1)
}

func TestIngestBatchPartialFailureDoesNotAbortRest(t *testing.T) {
	in := New(openTestStore(t))
	res, err := in.IngestBatch(context.Background(), []*store.Span{
		{SpanID: "bad", TraceID: "t1", Status: "not-a-status", StartTime: 1},
		{SpanID: "good", TraceID: "t1", Status: store.StatusOK, StartTime: 1,
			Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Accepted)
	require.Equal(t, 1, res.Rejected)
}

func TestIngestBatchNormalizesSpanType(t *testing.T) {
	st := openTestStore(t)
	in := New(st)
	res, err := in.IngestBatch(context.Background(), []*store.Span{
		{SpanID: "s1", TraceID: "t1", SpanType: "llm", Status: store.StatusOK, StartTime: 1,
			Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)},
		{SpanID: "s2", TraceID: "t1", SpanType: store.SpanTypeToolUse, Status: store.StatusOK, StartTime: 2,
			Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Accepted)
	require.Equal(t, store.SpanTypeCustom, res.Spans[0].Span.SpanType)
	require.Equal(t, store.SpanTypeToolUse, res.Spans[1].Span.SpanType)
}

func TestIngestBatchSecondWriteUpdatesSameSpan(t *testing.T) {
	in := New(openTestStore(t))
	base := &store.Span{SpanID: "s1", TraceID: "t1", Status: store.StatusUnset, StartTime: 1,
		Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)}
	_, err := in.IngestBatch(context.Background(), []*store.Span{base})
	require.NoError(t, err)

	complete := &store.Span{SpanID: "s1", TraceID: "t1", Status: store.StatusOK, StartTime: 1,
		Attributes: json.RawMessage(`{}`), Annotations: json.RawMessage(`[]`)}
	res, err := in.IngestBatch(context.Background(), []*store.Span{complete})
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	require.Zero(t, res.Accepted)
}
