package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type ctxKey int

const ownerKey ctxKey = iota

// DefaultOwner is assumed when a request carries no X-User-Id header.
const DefaultOwner = "anonymous_user"

// Routes builds the HTTP router. Health, metrics and the root banner are
// exempt from the per-IP guard so probes cannot be starved by API traffic.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// No RealIP middleware: the guard resolves the client address itself
	// and only honors X-Forwarded-For behind configured trusted proxies.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.guard.Middleware)
		r.Use(withOwner)

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", s.handleCreateRuleSet)
			r.Get("/", s.handleListRuleSets)
			r.Get("/{id}", s.handleGetRuleSet)
			r.Delete("/{id}", s.handleDeleteRuleSet)
		})

		r.Post("/simulate", s.handleSimulate)

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.handleListLogs)
			r.Delete("/", s.handleClearLogs)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Post("/{id}/apply", s.handleApplyTemplate)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", s.handleListScenarios)
			r.Get("/{id}", s.handleGetScenario)
			r.Post("/{id}/test", s.handleTestScenario)
		})
	})

	return r
}

// withOwner resolves the caller identity from X-User-Id, defaulting to
// DefaultOwner when absent.
func withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-Id")
		if owner == "" {
			owner = DefaultOwner
		}
		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey).(string); ok {
		return owner
	}
	return DefaultOwner
}

// requestLogger emits one structured line per request and feeds the HTTP
// request counter.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		s.metrics.RecordRequest(r.Method, pattern, ww.Status())
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
