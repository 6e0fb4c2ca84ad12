// Package metrics provides Prometheus instrumentation for the pool engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PoolsCreated counts pools created since startup.
	PoolsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolengine_pools_created_total",
		Help: "Total number of pools created",
	})

	// LiquidityOps counts liquidity operations, partitioned by direction.
	LiquidityOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_liquidity_ops_total",
		Help: "Total liquidity add/remove operations",
	}, []string{"op"})

	// StakeVolume tracks cumulative staked principal.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolengine_stake_volume_total",
		Help: "Cumulative staked principal",
	})

	// FarmOps counts farm enter/exit operations.
	FarmOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_farm_ops_total",
		Help: "Total farm enter/exit operations",
	}, []string{"op"})

	// RewardsDistributed tracks cumulative rewards credited by the
	// distributor, partitioned by kind.
	RewardsDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_rewards_distributed_total",
		Help: "Cumulative rewards credited to positions",
	}, []string{"kind"})

	// RewardsClaimed tracks cumulative rewards paid out via claim.
	RewardsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poolengine_rewards_claimed_total",
		Help: "Cumulative rewards claimed by users",
	})

	// DistributionTickDuration tracks how long one distributor pass takes.
	DistributionTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poolengine_distribution_tick_seconds",
		Help:    "Reward distribution tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ProposalsCreated counts governance proposals, partitioned by type.
	ProposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_proposals_created_total",
		Help: "Total governance proposals created",
	}, []string{"type"})

	// VotesCast counts governance votes, partitioned by choice.
	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_votes_cast_total",
		Help: "Total governance votes cast",
	}, []string{"choice"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
