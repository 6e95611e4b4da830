// Package dashboard serves the tracked job as a small local JSON API.
package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"sales-coach-go/internal/supervisor"
)

// NewRouter configures the API routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", h.Health).Methods("GET")
	r.HandleFunc("/api/session", h.Session).Methods("GET")
	r.HandleFunc("/api/metrics", h.Metrics).Methods("GET")
	r.HandleFunc("/api/upload", h.Upload).Methods("POST")
	r.HandleFunc("/api/attach/{job_id}", h.Attach).Methods("POST")
	r.HandleFunc("/api/export.xlsx", h.Export).Methods("GET")
	return r
}

// New wraps the router with crash containment and CORS.
func New(h *Handler, sup *supervisor.Supervisor, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})
	return c.Handler(sup.Middleware(NewRouter(h)))
}
