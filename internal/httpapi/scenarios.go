package httpapi

import "net/http"

// handleListScenarios is GET /v1/scenarios: the catalog of runnable demo
// agent scenarios the Runner can drive.
func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": s.runner.ListScenarios()})
}

// handleRunScenario is POST /v1/scenarios/{id}/run: starts a scenario and
// returns its trace_id immediately, before the agent loop has finished.
func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	traceID, err := s.runner.StartRun(r.Context(), r.PathValue("scenarioID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"trace_id": traceID})
}
