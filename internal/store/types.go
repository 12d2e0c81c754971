// Package store defines the persisted data model for traces, spans, replay
// runs and prompt versions, and the Store interface the rest of beaconobs
// depends on. The sqlite-backed implementation lives in sqlite.go.
package store

import (
	"encoding/json"
	"time"
)

// Span status values. "unset" is the initial value for an in-flight span;
// a trace's derived status follows the monotone rule error > unset > ok.
const (
	StatusUnset = "unset"
	StatusOK    = "ok"
	StatusError = "error"
)

// Trace is the aggregate root for a single agent execution.
type Trace struct {
	TraceID          string          `db:"trace_id" json:"trace_id"`
	Name             string          `db:"name" json:"name"`
	StartTime        float64         `db:"start_time" json:"start_time"`
	EndTime          *float64        `db:"end_time" json:"end_time,omitempty"`
	SpanCount        int             `db:"span_count" json:"span_count"`
	Status           string          `db:"status" json:"status"`
	Tags             json.RawMessage `db:"tags" json:"tags"`
	TotalCostUSD     float64         `db:"total_cost_usd" json:"total_cost_usd"`
	TotalTokens      int             `db:"total_tokens" json:"total_tokens"`
	SDKLanguage      *string         `db:"sdk_language" json:"sdk_language,omitempty"`
	CreatedAt        float64         `db:"created_at" json:"created_at"`
}

// DurationMS returns the trace's wall-clock duration in milliseconds, or nil
// if the trace hasn't ended yet.
func (t *Trace) DurationMS() *float64 {
	if t.EndTime == nil {
		return nil
	}
	ms := (*t.EndTime - t.StartTime) * 1000
	return &ms
}

// Span is a single unit of work within a trace. span_id/trace_id are opaque
// client- or server-supplied strings, not necessarily UUIDs (OTLP span ids
// are lowercase hex).
type Span struct {
	SpanID       string          `db:"span_id" json:"span_id"`
	TraceID      string          `db:"trace_id" json:"trace_id"`
	ParentSpanID *string         `db:"parent_span_id" json:"parent_span_id,omitempty"`
	SpanType     string          `db:"span_type" json:"span_type"`
	Name         string          `db:"name" json:"name"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartTime    float64         `db:"start_time" json:"start_time"`
	EndTime      *float64        `db:"end_time" json:"end_time,omitempty"`
	Attributes   json.RawMessage `db:"attributes" json:"attributes"`
	Annotations  json.RawMessage `db:"annotations" json:"annotations"`
	SDKLanguage  *string         `db:"sdk_language" json:"sdk_language,omitempty"`
	CreatedAt    float64         `db:"created_at" json:"created_at"`
}

// DurationMS returns the span's wall-clock duration in milliseconds, or nil
// if the span hasn't completed yet.
func (s *Span) DurationMS() *float64 {
	if s.EndTime == nil {
		return nil
	}
	ms := (*s.EndTime - s.StartTime) * 1000
	return &ms
}

// ReplayRun records one replay of a span's LLM call with modified input.
type ReplayRun struct {
	ReplayID       string  `db:"replay_id" json:"replay_id"`
	OriginalSpanID string  `db:"original_span_id" json:"original_span_id"`
	TraceID        string  `db:"trace_id" json:"trace_id"`
	ModifiedInput  string  `db:"modified_input" json:"modified_input"`
	NewOutput      string  `db:"new_output" json:"new_output"`
	Diff           string  `db:"diff" json:"diff"`
	CreatedAt      float64 `db:"created_at" json:"created_at"`
}

// PromptVersion snapshots a prompt string attached to a span, letting a
// caller track how a prompt evolved across manual edits.
type PromptVersion struct {
	VersionID string  `db:"version_id" json:"version_id"`
	SpanID    string  `db:"span_id" json:"span_id"`
	PromptText string `db:"prompt_text" json:"prompt_text"`
	Label     *string `db:"label" json:"label,omitempty"`
	CreatedAt float64 `db:"created_at" json:"created_at"`
}

// TraceListOpts filters and paginates ListTraces.
type TraceListOpts struct {
	Status string
	Limit  int
	Offset int
}

// nowUnix mirrors the original Python service's use of time.time() (a float
// seconds-since-epoch), rather than RFC3339, so exported timestamps match
// the beacon wire format exactly.
func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
