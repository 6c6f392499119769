package http

import (
	"context"
	"net/http"
	"time"
)

// Check reports whether one dependency is reachable.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every check with a short timeout and answers 503 when any
// fails.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[c.Name] = err.Error()
				continue
			}
			result[c.Name] = "ok"
		}
		writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": result})
	}
}
