// Package api exposes the registry over a JSON HTTP surface.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/auth"
	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/registry"
	"github.com/triage-ai/tcp/internal/storage"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Registry   *registry.Registry
	Classifier classifier.Classifier // nil disables classify-on-ingest
	Auth       auth.Authenticator    // nil disables write-side auth
	Writer     storage.EventWriter
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up. Only the write
// side is authenticated; queries and exports are open.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Method-qualified mux patterns ("POST /path") need Go 1.22; dispatch
	// on method manually so the router works on Go 1.21.
	mux.HandleFunc("/v1/descriptors", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: deps.authenticated(deps.handleIngest),
		http.MethodGet:  deps.handleQuery,
	}))
	mux.HandleFunc("/v1/registry/export", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: deps.handleExport,
	}))
	mux.HandleFunc("/v1/registry/stats", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: deps.handleStats,
	}))

	mux.HandleFunc("/healthz", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	}))

	return requestLogging(mux, deps.Logger)
}

// byMethod routes a request to the handler registered for its method,
// mirroring Go 1.22 ServeMux semantics: HEAD falls back to the GET
// handler and unmatched methods get 405 Method Not Allowed.
func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok && r.Method == http.MethodHead {
			h, ok = handlers[http.MethodGet]
		}
		if !ok {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
