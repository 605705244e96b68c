package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/waylio/waylio-platform/internal/http/respond"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}

// healthHandler runs every check concurrently; any failure turns the response 503.
func healthHandler(checks map[string]HealthCheck, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Time: time.Now().UTC()}
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, check := range checks {
			wg.Add(1)
			go func(name string, check HealthCheck) {
				defer wg.Done()
				result := "ok"
				if err := check(ctx); err != nil {
					result = err.Error()
				}
				mu.Lock()
				resp.Checks[name] = result
				if result != "ok" {
					resp.Status = "degraded"
				}
				mu.Unlock()
			}(name, check)
		}
		wg.Wait()

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(w, status, resp)
	}
}
