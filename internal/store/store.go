package store

import "context"

// ErrNotFound is returned by single-row lookups that find nothing.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return e.Kind + " not found: " + e.ID
}

// ErrConflict is returned when an operation would violate a uniqueness
// constraint the caller should have checked for (e.g. importing a trace_id
// that already exists).
type ErrConflict struct {
	Msg string
}

func (e *ErrConflict) Error() string { return e.Msg }

// Store is the persistence boundary for beaconobs. Every method that
// touches more than one row for a single trace runs inside one transaction
// so concurrent writers to the same trace serialize at the store layer.
type Store interface {
	// Traces
	CreateTrace(ctx context.Context, t *Trace) error
	GetTrace(ctx context.Context, traceID string) (*Trace, error)
	ListTraces(ctx context.Context, opts TraceListOpts) ([]*Trace, int, error)
	DeleteTrace(ctx context.Context, traceID string) (bool, error)
	DeleteTracesBatch(ctx context.Context, traceIDs []string, olderThan *float64) (int, error)
	UpdateTraceTags(ctx context.Context, traceID string, tags map[string]string) (*Trace, error)

	// Spans
	GetSpan(ctx context.Context, spanID string) (*Span, error)
	GetTraceSpans(ctx context.Context, traceID string) ([]*Span, error)
	UpdateSpanAnnotations(ctx context.Context, spanID string, annotations []string) (*Span, error)

	// IngestSpan writes one span (insert-or-update keyed by span_id) and
	// recomputes the owning trace's aggregates in the same transaction,
	// creating the trace row on first sight of its trace_id. Returns
	// whether the span_id was new (for Intake's accepted/updated counters).
	IngestSpan(ctx context.Context, s *Span) (created bool, err error)

	// Replay / prompt versions
	CreateReplayRun(ctx context.Context, r *ReplayRun) error
	CreatePromptVersion(ctx context.Context, p *PromptVersion) error
	ListPromptVersions(ctx context.Context, spanID string) ([]*PromptVersion, error)

	// ImportTrace inserts a trace and its spans in one transaction,
	// recomputing aggregates from the provided spans. Returns ErrConflict
	// if trace_id already exists.
	ImportTrace(ctx context.Context, t *Trace, spans []*Span) error

	// Stats
	Stats(ctx context.Context) (*DBStats, error)

	Close() error
}

// DBStats backs GET /v1/stats.
type DBStats struct {
	TraceCount      int      `json:"trace_count"`
	SpanCount       int      `json:"span_count"`
	DBSizeBytes     int64    `json:"db_size_bytes"`
	OldestTraceTime *float64 `json:"oldest_trace_time,omitempty"`
}
