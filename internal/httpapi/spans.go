package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// handleIngestSpans is POST /v1/spans: accepts either a single span object
// or a {"spans": [...]} batch envelope, matching SDK emitters that may send
// one in-flight span per call or flush a buffer at once.
func (s *Server) handleIngestSpans(w http.ResponseWriter, r *http.Request) {
	var batch struct {
		Spans []*store.Span `json:"spans"`
	}
	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}
	if err := json.Unmarshal(raw, &batch); err != nil || batch.Spans == nil {
		var single store.Span
		if err := json.Unmarshal(raw, &single); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid span payload"})
			return
		}
		batch.Spans = []*store.Span{&single}
	}

	res, err := s.intake.IngestBatch(r.Context(), batch.Spans)
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, ingested := range res.Spans {
		s.broadcastSpan(r.Context(), ingested.Span, ingested.Created)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSpan(w http.ResponseWriter, r *http.Request) {
	sp, err := s.store.GetSpan(r.Context(), r.PathValue("spanID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleUpdateAnnotations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Annotations []string `json:"annotations"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sp, err := s.store.UpdateSpanAnnotations(r.Context(), r.PathValue("spanID"), req.Annotations)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.broadcastSpan(r.Context(), sp, false)
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleListPromptVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ListPromptVersions(r.Context(), r.PathValue("spanID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt_versions": versions})
}

func (s *Server) handleCreatePromptVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptText string  `json:"prompt_text"`
		Label      *string `json:"label,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.PromptText == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "prompt_text is required"})
		return
	}
	pv := &store.PromptVersion{
		SpanID:     r.PathValue("spanID"),
		PromptText: req.PromptText,
		Label:      req.Label,
	}
	if err := s.store.CreatePromptVersion(r.Context(), pv); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pv)
}
