package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/beaconobs/internal/export"
)

// handleExportTrace is GET /v1/traces/{id}/export?format=json|otel|csv|png.
// A dest=s3://bucket/key query param redirects the rendered body to S3
// instead of the response, returning the resulting object URI.
func (s *Server) handleExportTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("traceID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	var body []byte
	var contentType, ext string

	switch format {
	case "json":
		env, err := s.exporter.TraceEnvelope(r.Context(), traceID)
		if err != nil {
			writeErr(w, err)
			return
		}
		body, _ = env.MarshalIndent()
		contentType, ext = "application/json", "json"
	case "otel":
		req, err := s.exporter.OTLPFor(r.Context(), traceID)
		if err != nil {
			writeErr(w, err)
			return
		}
		body, _ = json.MarshalIndent(req, "", "  ")
		contentType, ext = "application/json", "json"
	case "csv":
		var err error
		body, err = s.exporter.CSVFor(r.Context(), traceID)
		if err != nil {
			writeErr(w, err)
			return
		}
		contentType, ext = "text/csv", "csv"
	case "png":
		trace, err := s.store.GetTrace(r.Context(), traceID)
		if err != nil {
			writeErr(w, err)
			return
		}
		spans, err := s.store.GetTraceSpans(r.Context(), traceID)
		if err != nil {
			writeErr(w, err)
			return
		}
		body, err = export.RenderTimelinePNG(trace, spans)
		if err != nil {
			writeErr(w, err)
			return
		}
		contentType, ext = "image/png", "png"
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported export format: " + format})
		return
	}

	filename := fmt.Sprintf("trace-%s.%s", shortID(traceID), ext)
	if dest := r.URL.Query().Get("dest"); dest != "" {
		s.writeToDest(w, r, dest, filename, body, contentType)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(body)
}

// handleExportBulk is GET /v1/traces/export?trace_ids=a,b. Only the native
// JSON bulk envelope is supported for multi-trace export.
func (s *Server) handleExportBulk(w http.ResponseWriter, r *http.Request) {
	traceIDs := splitCSV(r.URL.Query().Get("trace_ids"))
	if len(traceIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trace_ids is required"})
		return
	}
	env, err := s.exporter.BulkEnvelopeFor(r.Context(), traceIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	body, _ := json.MarshalIndent(env, "", "  ")
	filename := "traces-export.json"
	if dest := r.URL.Query().Get("dest"); dest != "" {
		s.writeToDest(w, r, dest, filename, body, "application/json")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(body)
}

func (s *Server) handleImportTrace(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read body"})
		return
	}
	trace, err := s.importer.ImportEnvelope(r.Context(), raw)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trace)
}

// writeToDest streams an exported artifact to S3 instead of the response
// body, and writes back a small JSON pointer to where it landed.
func (s *Server) writeToDest(w http.ResponseWriter, r *http.Request, dest, filename string, body []byte, contentType string) {
	bucket, key, ok := parseS3URI(dest)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dest must be an s3://bucket/key URI"})
		return
	}
	if key == "" {
		key = filename
	}
	d, err := export.NewS3Destination(r.Context(), bucket)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "s3 destination unavailable: " + err.Error()})
		return
	}
	loc, err := d.Put(r.Context(), key, body, contentType)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "s3 upload failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"location": loc})
}

func parseS3URI(uri string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, true
}

func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}
