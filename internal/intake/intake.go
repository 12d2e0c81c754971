// Package intake validates incoming spans and drives them through the
// store's transactional upsert, tracking how many were accepted as new vs.
// merged into an existing span_id (the in-flight -> complete rewrite).
package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// ValidationError is returned for a malformed span (missing required
// fields); callers map it to HTTP 422.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Intake wraps a Store with span validation and per-request counters.
type Intake struct {
	store store.Store
}

func New(s store.Store) *Intake {
	return &Intake{store: s}
}

// Result summarizes one IngestBatch call.
type Result struct {
	Accepted int      `json:"accepted"`
	Updated  int      `json:"updated"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
	// Spans carries the persisted rows so callers (the HTTP layer, the Bus)
	// can broadcast span_created / span_updated without a second read.
	Spans []IngestedSpan `json:"-"`
}

// IngestedSpan pairs a persisted span with whether it was newly created.
type IngestedSpan struct {
	Span    *store.Span
	Created bool
}

// IngestBatch validates and persists each span independently: one
// malformed or failing span does not abort the rest of the batch.
func (in *Intake) IngestBatch(ctx context.Context, spans []*store.Span) (*Result, error) {
	res := &Result{}
	for _, sp := range spans {
		if err := validate(sp); err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", sp.SpanID, err))
			continue
		}
		created, err := in.store.IngestSpan(ctx, sp)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", sp.SpanID, err))
			continue
		}
		persisted, err := in.store.GetSpan(ctx, sp.SpanID)
		if err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", sp.SpanID, err))
			continue
		}
		if created {
			res.Accepted++
		} else {
			res.Updated++
		}
		res.Spans = append(res.Spans, IngestedSpan{Span: persisted, Created: created})
	}
	return res, nil
}

// validate checks required fields and enum values, and normalizes
// span_type in place: any value outside the closed enum (including the
// empty string) is coerced to "custom" rather than rejected, matching the
// ingest contract's "unknown values become custom".
func validate(sp *store.Span) error {
	if sp.SpanID == "" {
		return &ValidationError{Msg: "span_id is required"}
	}
	if sp.TraceID == "" {
		return &ValidationError{Msg: "trace_id is required"}
	}
	if sp.Status != store.StatusUnset && sp.Status != store.StatusOK && sp.Status != store.StatusError {
		return &ValidationError{Msg: "status must be one of unset, ok, error"}
	}
	if sp.StartTime <= 0 {
		return &ValidationError{Msg: "start_time is required"}
	}
	if len(sp.Attributes) > 0 {
		var v any
		if err := json.Unmarshal(sp.Attributes, &v); err != nil {
			return &ValidationError{Msg: "attributes must be valid JSON"}
		}
	}
	sp.SpanType = store.NormalizeSpanType(sp.SpanType)
	return nil
}
