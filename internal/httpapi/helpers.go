package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/beaconobs/internal/export"
	"github.com/nextlevelbuilder/beaconobs/internal/intake"
	"github.com/nextlevelbuilder/beaconobs/internal/llm"
	"github.com/nextlevelbuilder/beaconobs/internal/replay"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor applies the error taxonomy's status-code discipline: 422 for
// validation, 404 for not-found, 409 for conflict, 400 for a semantic
// bad request, 502 for an upstream LLM failure, 500 otherwise.
func statusFor(err error) int {
	var validationErr *intake.ValidationError
	var notFoundErr *store.ErrNotFound
	var conflictErr *store.ErrConflict
	var badRequestErr *replay.BadRequestError
	var badEnvelopeErr *export.BadEnvelopeError
	var httpErr *llm.HTTPError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &badRequestErr):
		return http.StatusBadRequest
	case errors.As(err, &badEnvelopeErr):
		return http.StatusBadRequest
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

func decodeJSON(r *http.Request, v any) error {
	raw, err := readBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// broadcastSpan emits span_created or span_updated to the Bus depending on
// whether IngestSpan saw a new span_id, mirroring the Runner's own
// created/updated distinction for the same two Bus events.
func (s *Server) broadcastSpan(ctx context.Context, sp *store.Span, created bool) {
	if created {
		s.bus.BroadcastSpanCreated(ctx, sp.TraceID, sp)
		return
	}
	s.bus.BroadcastSpanUpdated(ctx, sp.TraceID, sp)
}
