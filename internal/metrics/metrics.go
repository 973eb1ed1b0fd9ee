package metrics

import (
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "wavepick/internal/opt"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // RateLimited counts wave submissions rejected by the limiter
    RateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "wave_submissions_rate_limited_total", Help: "Wave submissions rejected by the rate limiter."},
    )

    // WavesSolved counts finished solves by final status and strategy
    WavesSolved = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "waves_solved_total", Help: "Finished wave solves by status and strategy."},
        []string{"status", "strategy"},
    )
    // SolveDuration records wall time of whole solves in seconds
    SolveDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "wave_solve_duration_seconds", Help: "Wave solve duration in seconds.", Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600}},
        []string{"strategy", "oracle"},
    )
    // SolvesInFlight is the number of solves currently running
    SolvesInFlight = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "wave_solves_in_flight", Help: "Wave solves currently running."},
    )
    // WaveRatio records the units per aisle of solved waves
    WaveRatio = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "wave_ratio", Help: "Units per visited aisle of solved waves.", Buckets: prometheus.ExponentialBuckets(1, 2, 12)},
    )
    // OracleCalls counts search steps by outcome (solved, infeasible, skipped)
    OracleCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "oracle_calls_total", Help: "Aisle-count search steps by outcome."},
        []string{"outcome"},
    )
    // OracleCallDuration records time spent inside one oracle call in seconds
    OracleCallDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "oracle_call_duration_seconds", Help: "Oracle call duration in seconds.", Buckets: []float64{0.01, 0.1, 1, 5, 20, 50, 100}},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(RateLimited)
        Registry.MustRegister(WavesSolved)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(SolvesInFlight)
        Registry.MustRegister(WaveRatio)
        Registry.MustRegister(OracleCalls)
        Registry.MustRegister(OracleCallDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveStep is a solver observer recording one search step.
func ObserveStep(s opt.Step) {
    OracleCalls.WithLabelValues(s.Outcome).Inc()
    if s.Outcome != opt.OutcomeInsufficientTime.String() {
        OracleCallDuration.Observe(s.CallTime.Seconds())
    }
}

// ObserveSolve records a finished solve.
func ObserveSolve(status, strategy, oracle string, elapsed time.Duration, ratio float64) {
    WavesSolved.WithLabelValues(status, strategy).Inc()
    SolveDuration.WithLabelValues(strategy, oracle).Observe(elapsed.Seconds())
    if ratio > 0 {
        WaveRatio.Observe(ratio)
    }
}

// Middleware records request counts and durations. Paths are collapsed to
// their route prefix so wave ids do not become label values.
func Middleware(next http.Handler) http.Handler {
    RegisterDefault()
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(sw, r)
        labels := []string{r.Method, RoutePattern(r.URL.Path), strconv.Itoa(sw.status)}
        HTTPRequests.WithLabelValues(labels...).Inc()
        HTTPDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
    })
}
