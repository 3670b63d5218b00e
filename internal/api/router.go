package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/alphalens/internal/api/handlers"
	"github.com/wonny/alphalens/pkg/logger"
)

// Pinger reports backing store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the endpoint handlers; nil groups are not routed
type Handlers struct {
	Tasks     *handlers.TaskHandler
	Screening *handlers.ScreeningHandler
	Jobs      *handlers.JobHandler
	DB        Pinger
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(h.DB)).Methods("GET")

	// API
	api := r.PathPrefix("/api").Subrouter()

	// Task endpoints
	if h.Tasks != nil {
		api.HandleFunc("/tasks", h.Tasks.Create).Methods("POST")
		api.HandleFunc("/tasks/{id}", h.Tasks.Get).Methods("GET")
		api.HandleFunc("/tasks/{id}/cancel", h.Tasks.Cancel).Methods("POST")
		api.HandleFunc("/tasks/{id}/stream", h.Tasks.Stream).Methods("GET")
	}

	// Screening endpoints
	if h.Screening != nil {
		api.HandleFunc("/screening/select", h.Screening.Select).Methods("POST")
		api.HandleFunc("/screening/latest", h.Screening.Latest).Methods("GET")
		api.HandleFunc("/screening/diagnose/{symbol}", h.Screening.Diagnose).Methods("GET")
	}

	// Job endpoints
	if h.Jobs != nil {
		api.HandleFunc("/jobs", h.Jobs.List).Methods("GET")
		api.HandleFunc("/jobs/{name}/trigger", h.Jobs.Trigger).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		database := "memory"
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			database = "ok"
			if err := db.Ping(ctx); err != nil {
				status, code, database = "degraded", http.StatusServiceUnavailable, "unreachable"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   status,
			"service":  "alphalens-api",
			"database": database,
		})
	}
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes the connection through for websocket upgrades
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
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
