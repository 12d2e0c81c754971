package httpapi

import (
	"net/http"

	"github.com/nextlevelbuilder/beaconobs/internal/replay"
)

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpanID             string         `json:"span_id"`
		ModifiedAttributes map[string]any `json:"modified_attributes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SpanID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "span_id is required"})
		return
	}

	run, err := s.replayer.Run(r.Context(), replay.Request{
		SpanID:             req.SpanID,
		ModifiedAttributes: req.ModifiedAttributes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}
