// Package export implements the native, bulk, OTEL and CSV export formats
// and the matching native-JSON import, grounded on the original beacon
// backend's services/export_service.py.
package export

import (
	"encoding/json"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

const (
	FormatVersion = "1"
	FormatBeacon  = "beacon"
)

// Envelope is the native single-trace export/import wire shape.
type Envelope struct {
	Version    string       `json:"version"`
	Format     string       `json:"format"`
	ExportedAt float64      `json:"exported_at"`
	Trace      *store.Trace `json:"trace"`
	Spans      []*store.Span `json:"spans"`
}

// BulkEnvelope wraps several traces (and their spans) for a multi-trace
// export given a list of trace_ids.
type BulkEnvelope struct {
	Version    string        `json:"version"`
	Format     string        `json:"format"`
	ExportedAt float64       `json:"exported_at"`
	Traces     []TraceBundle `json:"traces"`
}

type TraceBundle struct {
	Trace *store.Trace  `json:"trace"`
	Spans []*store.Span `json:"spans"`
}

func (e *Envelope) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
