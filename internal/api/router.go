package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the HTTP router. hub and metrics may be nil.
func SetupRouter(handler *Handler, hub *Hub, metrics http.Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())
	router.Use(recoveryMiddleware(logger))

	// Health check endpoint
	router.HandleFunc("/health", handler.HandleHealth).Methods(http.MethodGet)

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	if hub != nil {
		router.Handle("/ws", hub).Methods(http.MethodGet)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Wallets
	api.HandleFunc("/wallets", handler.HandleListWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets", handler.HandleClearWallets).Methods(http.MethodDelete)
	api.HandleFunc("/wallets/import", handler.HandleImportWallets).Methods(http.MethodPost)

	// Task queue
	api.HandleFunc("/tasks", handler.HandleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", handler.HandleAddTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskId}", handler.HandleRemoveTask).Methods(http.MethodDelete)

	// Runs
	api.HandleFunc("/runs", handler.HandleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", handler.HandleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/stop", handler.HandleStopRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/current", handler.HandleRunStatus).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runId}", handler.HandleGetRun).Methods(http.MethodGet)

	// Fee estimation
	api.HandleFunc("/fees/estimate", handler.HandleEstimateFees).Methods(http.MethodGet)

	return router
}

// ==================== Middleware ====================

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// corsMiddleware adds CORS headers
func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// recoveryMiddleware recovers from panics and logs them
func recoveryMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"Internal server error","message":"An unexpected error occurred"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
