package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// probeTimeout bounds a single readiness evaluation
const probeTimeout = 5 * time.Second

// HealthChecker probes the service's two runtime dependencies. Postgres is
// required; Redis only backs login rate limiting, so a Redis outage degrades
// the service instead of failing readiness.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a health checker. Either dependency may be nil,
// in which case its probe is skipped.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient}
}

// Report is the aggregate health response
type Report struct {
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Probes    map[string]ProbeResult `json:"probes,omitempty"`
}

// ProbeResult is the outcome of a single dependency probe
type ProbeResult struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Liveness reports that the process is up. It never touches dependencies.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     StatusHealthy,
		"checked_at": time.Now().UTC(),
	})
}

// Readiness probes all dependencies. Unhealthy returns 503; healthy and
// degraded both return 200 so that a Redis outage does not drain traffic.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	report := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(report)
}

// Check runs every configured probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		CheckedAt: time.Now().UTC(),
		Probes:    make(map[string]ProbeResult),
	}

	if h.db != nil {
		result := h.probePostgres(ctx)
		report.Probes["postgres"] = result
		switch result.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	if h.redis != nil {
		result := h.probeRedis(ctx)
		report.Probes["redis"] = result
		if result.Status == StatusUnhealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func (h *HealthChecker) probePostgres(ctx context.Context) ProbeResult {
	start := time.Now()

	var one int
	err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	result := ProbeResult{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Detail = err.Error()
		return result
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		result.Status = StatusDegraded
		result.Detail = "connection pool saturated"
	}
	return result
}

func (h *HealthChecker) probeRedis(ctx context.Context) ProbeResult {
	start := time.Now()

	err := h.redis.Ping(ctx).Err()
	result := ProbeResult{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Detail = err.Error()
	}
	return result
}

// RegisterHealthRoutes mounts the probe endpoints on the ops listener
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
