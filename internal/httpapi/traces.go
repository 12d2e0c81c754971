package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.TraceListOpts{
		Status: q.Get("status"),
		Limit:  50,
		Offset: 0,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	traces, total, err := s.store.ListTraces(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}

	if filter := q.Get("filter"); filter != "" {
		traces, err = s.applyFilter(traces, filter)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filter: " + err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"traces": traces,
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// applyFilter evaluates a CEL expression against each trace's summary
// fields, keeping only traces where it evaluates true. A filter like
// `status == "error" && total_cost_usd > 1.0` runs entirely server-side so
// the client never has to page through every trace to find the ones it
// cares about.
func (s *Server) applyFilter(traces []*store.Trace, expr string) ([]*store.Trace, error) {
	if s.filterEnv == nil {
		return traces, nil
	}
	ast, iss := s.filterEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := s.filterEnv.Program(ast)
	if err != nil {
		return nil, err
	}

	out := traces[:0]
	for _, t := range traces {
		val, _, err := prg.Eval(map[string]any{
			"status":         t.Status,
			"total_cost_usd": t.TotalCostUSD,
			"total_tokens":   int64(t.TotalTokens),
			"span_count":     int64(t.SpanCount),
			"name":           t.Name,
		})
		if err != nil {
			continue
		}
		if match, ok := val.Value().(bool); ok && match {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("traceID")
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
	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id":       trace.TraceID,
		"name":           trace.Name,
		"start_time":     trace.StartTime,
		"end_time":       trace.EndTime,
		"span_count":     trace.SpanCount,
		"status":         trace.Status,
		"tags":           trace.Tags,
		"total_cost_usd": trace.TotalCostUSD,
		"total_tokens":   trace.TotalTokens,
		"sdk_language":   trace.SDKLanguage,
		"created_at":     trace.CreatedAt,
		"spans":          spans,
	})
}

// graphNodeData mirrors the node payload a React Flow frontend renders a
// trace timeline from: one node per span plus the ordinal position it
// occupied in the run and the framework attribute, if any.
type graphNodeData struct {
	SpanID     string   `json:"span_id"`
	SpanType   string   `json:"span_type"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	DurationMS *float64 `json:"duration_ms,omitempty"`
	CostUSD    *float64 `json:"cost_usd,omitempty"`
	Sequence   int      `json:"sequence"`
	Framework  *string  `json:"framework,omitempty"`
}

type graphNode struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Data     graphNodeData      `json:"data"`
	Position map[string]float64 `json:"position"`
}

type graphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (s *Server) handleTraceGraph(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("traceID")
	if _, err := s.store.GetTrace(r.Context(), traceID); err != nil {
		writeErr(w, err)
		return
	}
	spans, err := s.store.GetTraceSpans(r.Context(), traceID)
	if err != nil {
		writeErr(w, err)
		return
	}

	nodes := make([]graphNode, 0, len(spans))
	edges := make([]graphEdge, 0, len(spans))
	for i, sp := range spans {
		var attrs map[string]any
		_ = json.Unmarshal(sp.Attributes, &attrs)

		var costUSD *float64
		if v, ok := attrs[store.AttrLLMCostUSD].(float64); ok {
			costUSD = &v
		}
		var framework *string
		if v, ok := attrs[store.AttrAgentFramework].(string); ok {
			framework = &v
		}

		nodes = append(nodes, graphNode{
			ID:   sp.SpanID,
			Type: "spanNode",
			Data: graphNodeData{
				SpanID:     sp.SpanID,
				SpanType:   sp.SpanType,
				Name:       sp.Name,
				Status:     sp.Status,
				DurationMS: sp.DurationMS(),
				CostUSD:    costUSD,
				Sequence:   i,
				Framework:  framework,
			},
			Position: map[string]float64{"x": 0, "y": 0},
		})

		if sp.ParentSpanID != nil {
			edges = append(edges, graphEdge{
				ID:     "edge-" + *sp.ParentSpanID + "-" + sp.SpanID,
				Source: *sp.ParentSpanID,
				Target: sp.SpanID,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

func (s *Server) handleDeleteTrace(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteTrace(r.Context(), r.PathValue("traceID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trace not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTracesBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var traceIDs []string
	if v := q.Get("trace_ids"); v != "" {
		traceIDs = splitCSV(v)
	}
	var olderThan *float64
	if v := q.Get("older_than"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			olderThan = &f
		}
	}
	if len(traceIDs) == 0 && olderThan == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "one of trace_ids or older_than is required"})
		return
	}

	n, err := s.store.DeleteTracesBatch(r.Context(), traceIDs, olderThan)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleUpdateTraceTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags map[string]string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	trace, err := s.store.UpdateTraceTags(r.Context(), r.PathValue("traceID"), req.Tags)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.bus.BroadcastTraceUpdated(r.Context(), trace.TraceID, trace)
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trace_count":       st.TraceCount,
		"span_count":        st.SpanCount,
		"db_size_bytes":     st.DBSizeBytes,
		"oldest_trace_time": st.OldestTraceTime,
		"connected_clients": s.bus.SessionCount(),
	})
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
