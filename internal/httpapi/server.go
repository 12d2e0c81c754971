// Package httpapi wires the Store/Intake/OTLP/Bus/Runner/Replay/Export
// components behind a thin JSON HTTP surface, grounded on the teacher's
// internal/http package (traces.go, agents.go): handler methods on a single
// Server struct, grouped into one file per resource, net/http's
// method-pattern ServeMux, no router framework.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/google/cel-go/cel"

	"github.com/nextlevelbuilder/beaconobs/internal/bus"
	"github.com/nextlevelbuilder/beaconobs/internal/export"
	"github.com/nextlevelbuilder/beaconobs/internal/intake"
	"github.com/nextlevelbuilder/beaconobs/internal/replay"
	"github.com/nextlevelbuilder/beaconobs/internal/runner"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

// Server holds every component the HTTP surface translates into JSON
// routes and is itself an http.Handler.
type Server struct {
	store    store.Store
	intake   *intake.Intake
	bus      *bus.Bus
	runner   *runner.Runner
	replayer *replay.Replayer
	exporter *export.Exporter
	importer *export.Importer

	token          string
	allowedOrigins []string
	filterEnv      *cel.Env

	mux *http.ServeMux
}

func New(s store.Store, b *bus.Bus, r *runner.Runner, rp *replay.Replayer, token string, allowedOrigins []string) *Server {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("total_cost_usd", cel.DoubleType),
		cel.Variable("total_tokens", cel.IntType),
		cel.Variable("span_count", cel.IntType),
		cel.Variable("name", cel.StringType),
	)
	if err != nil {
		slog.Error("httpapi: cel environment failed to build, /v1/traces filter disabled", "error", err)
		env = nil
	}

	srv := &Server{
		store:          s,
		intake:         intake.New(s),
		bus:            b,
		runner:         r,
		replayer:       rp,
		exporter:       export.New(s),
		importer:       export.NewImporter(s),
		token:          token,
		allowedOrigins: allowedOrigins,
		filterEnv:      env,
		mux:            http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withCORS(s.mux).ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/spans", s.requireAuth(s.handleIngestSpans))
	s.mux.HandleFunc("POST /v1/otlp/traces", s.requireAuth(s.handleIngestOTLP))

	s.mux.HandleFunc("GET /v1/traces", s.requireAuth(s.handleListTraces))
	s.mux.HandleFunc("GET /v1/traces/{traceID}", s.requireAuth(s.handleGetTrace))
	s.mux.HandleFunc("GET /v1/traces/{traceID}/graph", s.requireAuth(s.handleTraceGraph))
	s.mux.HandleFunc("DELETE /v1/traces/{traceID}", s.requireAuth(s.handleDeleteTrace))
	s.mux.HandleFunc("DELETE /v1/traces", s.requireAuth(s.handleDeleteTracesBatch))
	s.mux.HandleFunc("PUT /v1/traces/{traceID}/tags", s.requireAuth(s.handleUpdateTraceTags))

	s.mux.HandleFunc("GET /v1/traces/{traceID}/export", s.requireAuth(s.handleExportTrace))
	s.mux.HandleFunc("GET /v1/traces/export", s.requireAuth(s.handleExportBulk))
	s.mux.HandleFunc("POST /v1/traces/import", s.requireAuth(s.handleImportTrace))

	s.mux.HandleFunc("GET /v1/spans/{spanID}", s.requireAuth(s.handleGetSpan))
	s.mux.HandleFunc("PUT /v1/spans/{spanID}/annotations", s.requireAuth(s.handleUpdateAnnotations))
	s.mux.HandleFunc("GET /v1/spans/{spanID}/prompt-versions", s.requireAuth(s.handleListPromptVersions))
	s.mux.HandleFunc("POST /v1/spans/{spanID}/prompt-versions", s.requireAuth(s.handleCreatePromptVersion))

	s.mux.HandleFunc("POST /v1/replay", s.requireAuth(s.handleReplay))

	s.mux.HandleFunc("GET /v1/stats", s.requireAuth(s.handleStats))

	s.mux.HandleFunc("GET /v1/scenarios", s.requireAuth(s.handleListScenarios))
	s.mux.HandleFunc("POST /v1/scenarios/{scenarioID}/run", s.requireAuth(s.handleRunScenario))

	// Not wrapped in requireAuth: browser WebSocket clients can't set an
	// Authorization header, so handleWS checks the token itself, accepting
	// it from either the header or a ?token= query param.
	s.mux.HandleFunc("GET /ws/live", s.handleWS)
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && extractBearerToken(r) != s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
