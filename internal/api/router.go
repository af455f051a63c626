package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/smsh73/AAA/internal/api/handlers"
	"github.com/smsh73/AAA/pkg/logger"
)

// Routes bundles the handlers mounted by NewRouter
type Routes struct {
	Collection *handlers.CollectionHandler
	Evaluation *handlers.EvaluationHandler
	Ranking    *handlers.RankingHandler

	// Metrics is served on /metrics when set
	Metrics http.Handler
	// Health reports dependency health; nil means always healthy
	Health func(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	log = log.Module("api")
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler(routes.Health)).Methods("GET")
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	if h := routes.Collection; h != nil {
		api.HandleFunc("/collections", h.Start).Methods("POST")
		api.HandleFunc("/collections", h.List).Methods("GET")
		api.HandleFunc("/collections/{id}", h.Get).Methods("GET")
		api.HandleFunc("/collections/{id}/cancel", h.Cancel).Methods("POST")
		api.HandleFunc("/collections/{id}/logs", h.Logs).Methods("GET")
		api.HandleFunc("/collections/{id}/logs/ws", h.StreamLogs).Methods("GET")
	}

	if h := routes.Evaluation; h != nil {
		api.HandleFunc("/evaluations", h.Compute).Methods("POST")
		api.HandleFunc("/evaluations/{id}", h.Get).Methods("GET")
	}

	if h := routes.Ranking; h != nil {
		api.HandleFunc("/scorecards/ranking", h.GetRanking).Methods("GET")
		api.HandleFunc("/scorecards/{period}/rerank", h.Rerank).Methods("POST")
		api.HandleFunc("/awards", h.SelectAwards).Methods("POST")
		api.HandleFunc("/awards", h.ListAwards).Methods("GET")
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		body := map[string]interface{}{
			"status":  "ok",
			"service": "analyst-eval-api",
		}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		json.NewEncoder(w).Encode(body)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
