package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/saju/pkg/logger"
)

// Check is a named dependency probe, for example pg.Healthcheck(pool).
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthHandler runs every check with a short timeout. It responds 200 with
// {"status":"ok"} when all pass and 503 naming the failed checks otherwise.
// With no checks it acts as a liveness probe.
func HealthHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
				failed[c.Name] = "unavailable"
			}
		}

		body := map[string]any{"status": "ok"}
		status := http.StatusOK
		if len(failed) > 0 {
			body = map[string]any{"status": "unavailable", "checks": failed}
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
