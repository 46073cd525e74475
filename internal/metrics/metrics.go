package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	locationSamples     *prometheus.CounterVec
	presenceTransitions *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	nearbyQueries       *prometheus.CounterVec
	nearbyResults       prometheus.Histogram
	staleSweeps         prometheus.Counter
	staleSweepErrors    prometheus.Counter
	staleUsers          prometheus.Counter
	realtimeSubscribers prometheus.GaugeFunc
	gateUsers           prometheus.GaugeFunc
}

// Options carries optional collectors that read live state.
type Options struct {
	// Subscribers reports the number of open realtime subscriptions.
	Subscribers func() int
	// GateUsers reports how many users the location sample gate remembers.
	GateUsers func() int
}

// New creates a fresh Metrics registry with HTTP, presence and proximity metrics registered.
func New(opts Options) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the nearby core",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nearby",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the nearby core",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	locationSamples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "location_samples_total",
		Help:      "Location samples received, by whether they were stored",
	}, []string{"result"})

	presenceTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "presence_transitions_total",
		Help:      "Presence transitions applied, by resulting state",
	}, []string{"state"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nearby",
		Name:      "presence_sessions",
		Help:      "Open presence sessions",
	})

	nearbyQueries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "nearby_queries_total",
		Help:      "Proximity queries served, by mode",
	}, []string{"mode"})

	nearbyResults := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nearby",
		Name:      "nearby_results",
		Help:      "Number of users returned per proximity query",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	staleSweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "stale_sweeps_total",
		Help:      "Completed stale presence sweeps",
	})

	staleSweepErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "stale_sweep_errors_total",
		Help:      "Stale presence sweeps that failed",
	})

	staleUsers := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nearby",
		Name:      "stale_users_total",
		Help:      "Users marked inactive by the stale sweep",
	})

	subscribers := opts.Subscribers
	if subscribers == nil {
		subscribers = func() int { return 0 }
	}
	realtimeSubscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nearby",
		Name:      "realtime_subscribers",
		Help:      "Open realtime subscriptions",
	}, func() float64 { return float64(subscribers()) })

	gateSize := opts.GateUsers
	if gateSize == nil {
		gateSize = func() int { return 0 }
	}
	gateUsers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nearby",
		Name:      "location_gate_users",
		Help:      "Users with a remembered location sample",
	}, func() float64 { return float64(gateSize()) })

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		locationSamples,
		presenceTransitions,
		activeSessions,
		nearbyQueries,
		nearbyResults,
		staleSweeps,
		staleSweepErrors,
		staleUsers,
		realtimeSubscribers,
		gateUsers,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		locationSamples:     locationSamples,
		presenceTransitions: presenceTransitions,
		activeSessions:      activeSessions,
		nearbyQueries:       nearbyQueries,
		nearbyResults:       nearbyResults,
		staleSweeps:         staleSweeps,
		staleSweepErrors:    staleSweepErrors,
		staleUsers:          staleUsers,
		realtimeSubscribers: realtimeSubscribers,
		gateUsers:           gateUsers,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveLocationSample counts a location sample as accepted or dropped.
func (m *Metrics) ObserveLocationSample(accepted bool) {
	if m == nil {
		return
	}
	result := "dropped"
	if accepted {
		result = "accepted"
	}
	m.locationSamples.WithLabelValues(result).Inc()
}

// ObservePresence counts a presence write.
func (m *Metrics) ObservePresence(state string) {
	if m == nil {
		return
	}
	m.presenceTransitions.WithLabelValues(state).Inc()
}

// SetSessions sets the open session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// ObserveNearbyQuery records one proximity computation.
func (m *Metrics) ObserveNearbyQuery(mode string, results int) {
	if m == nil {
		return
	}
	m.nearbyQueries.WithLabelValues(mode).Inc()
	m.nearbyResults.Observe(float64(results))
}

// ObserveStaleSweep records the outcome of one stale presence sweep.
func (m *Metrics) ObserveStaleSweep(swept int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.staleSweepErrors.Inc()
		return
	}
	m.staleSweeps.Inc()
	m.staleUsers.Add(float64(swept))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
