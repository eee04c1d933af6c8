package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus is the probe response body
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker answers liveness probes for a running job. The only
// dependency worth probing is postgres: a batch that cannot reach the
// database cannot make progress.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a health checker over the shared pool
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Check pings the database with a short deadline and reports the result
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    map[string]string{},
	}

	if h.pool == nil {
		status.Checks["database"] = "not configured"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(pingCtx); err != nil {
		status.Status = "unhealthy"
		status.Checks["database"] = "unhealthy: " + err.Error()
		return status
	}
	status.Checks["database"] = "healthy"
	return status
}

// Handler serves the probe as JSON, 503 when any check fails
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	}
}
