package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/beaconobs/internal/otlp"
)

// handleIngestOTLP is POST /v1/otlp/traces: accepts an OTLP
// ExportTraceServiceRequest as JSON (OTLP/HTTP+JSON, not protobuf), converts
// each OTEL span to the native span shape, and ingests it the same way a
// native /v1/spans call would.
func (s *Server) handleIngestOTLP(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}

	var req otlp.ExportTraceServiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid OTLP payload: " + err.Error()})
		return
	}

	spans, err := otlp.ConvertToSpans(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := s.intake.IngestBatch(r.Context(), spans)
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, ingested := range res.Spans {
		s.broadcastSpan(r.Context(), ingested.Span, ingested.Created)
	}
	writeJSON(w, http.StatusOK, res)
}
