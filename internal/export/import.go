package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// BadEnvelopeError is returned for an import payload with the wrong
// version/format; callers map it to HTTP 400 (distinct from 409 conflict
// and 422 validation, per the export/import status-code discipline).
type BadEnvelopeError struct {
	Msg string
}

func (e *BadEnvelopeError) Error() string { return e.Msg }

// Importer inserts a native JSON export back into a Store.
type Importer struct {
	store store.Store
}

func NewImporter(s store.Store) *Importer {
	return &Importer{store: s}
}

// ImportEnvelope rejects anything but version "1" format "beacon", and
// rejects a trace_id that already exists (store.ImportTrace returns
// ErrConflict for that, which the caller maps to 409). Aggregates are
// recomputed by the store from the envelope's spans, not trusted from the
// envelope's declared trace fields.
func (im *Importer) ImportEnvelope(ctx context.Context, raw []byte) (*store.Trace, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &BadEnvelopeError{Msg: "invalid JSON: " + err.Error()}
	}
	if env.Version != FormatVersion || env.Format != FormatBeacon {
		return nil, &BadEnvelopeError{Msg: fmt.Sprintf("unsupported export version/format: %q/%q", env.Version, env.Format)}
	}
	if env.Trace == nil {
		return nil, &BadEnvelopeError{Msg: "envelope missing trace"}
	}
	if err := im.store.ImportTrace(ctx, env.Trace, env.Spans); err != nil {
		return nil, err
	}
	return im.store.GetTrace(ctx, env.Trace.TraceID)
}
