package chaos

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type messageResponse struct {
	Message string `json:"message"`
	Info    string `json:"info,omitempty"`
}

// NewRouter exposes the admin API used to toggle chaos at runtime.
// metrics is served on /metrics when not nil; mws run after request ids
// are assigned.
func NewRouter(c *Controller, metrics http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(mws...)
	r.Use(middleware.Recoverer)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service":   c.service,
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Route("/chaos", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, c.Status())
		})
		r.Post("/enable", func(w http.ResponseWriter, _ *http.Request) {
			c.EnableFailures()
			writeJSON(w, http.StatusOK, messageResponse{Message: "Chaos mode enabled"})
		})
		r.Post("/disable", func(w http.ResponseWriter, _ *http.Request) {
			c.DisableFailures()
			writeJSON(w, http.StatusOK, messageResponse{Message: "Chaos mode disabled"})
		})
		r.Post("/slow", func(w http.ResponseWriter, _ *http.Request) {
			c.EnableSlow()
			writeJSON(w, http.StatusOK, messageResponse{
				Message: "Slow mode enabled",
				Info:    "Requests will be delayed by " + c.profile.SlowMin.String() + " to " + c.profile.SlowMax.String(),
			})
		})
		r.Post("/slow/disable", func(w http.ResponseWriter, _ *http.Request) {
			c.DisableSlow()
			writeJSON(w, http.StatusOK, messageResponse{Message: "Slow mode disabled"})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
