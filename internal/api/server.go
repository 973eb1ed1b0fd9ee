// Package api implements HTTP handlers and helpers for the wavepick service.
package api

import (
    "context"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "wavepick/internal/auth"
    "wavepick/internal/config"
    "wavepick/internal/opt"
    "wavepick/internal/oracle/bnb"
    "wavepick/internal/oracle/cbc"
    "wavepick/internal/store"
    "wavepick/internal/webhooks"
)

type Server struct {
    Cfg    config.Config
    Store  store.Store
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Broker EventBroker
    Log    *logrus.Entry
    // Oracles by name; cbc is present only when its binary was found.
    Oracles map[string]opt.Oracle

    limMu    sync.Mutex
    limiters map[string]*rate.Limiter // tenant -> submission limiter
    slots    chan struct{}
    solves   sync.WaitGroup
}

// NewServer wires a Server from cfg. Without a database URL it uses the
// in-memory store; without a Redis URL it uses the in-process broker.
func NewServer(ctx context.Context, cfg config.Config, log *logrus.Entry) (*Server, error) {
    if log == nil { log = logrus.NewEntry(logrus.StandardLogger()) }
    var s store.Store
    if cfg.Server.DatabaseURL == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.Server.DatabaseURL)
        if err != nil { return nil, fmt.Errorf("postgres: %w", err) }
        if cfg.Server.Migrate {
            if err := sp.Migrate(ctx); err != nil { return nil, fmt.Errorf("migrate: %w", err) }
        }
        s = sp
    }
    var broker EventBroker = NewBroker()
    if cfg.Server.RedisURL != "" {
        rb, err := NewRedisBroker(cfg.Server.RedisURL)
        if err != nil {
            log.WithError(err).Warn("redis broker unavailable, using in-process broker")
        } else {
            broker = rb
        }
    }
    oracles := map[string]opt.Oracle{"bnb": bnb.New(log)}
    c := cbc.New(cfg.Oracle.CBCPath, cfg.Oracle.WorkDir, log)
    if c.Available() {
        oracles["cbc"] = c
    } else if cfg.Oracle.Default == "cbc" {
        return nil, fmt.Errorf("default oracle cbc: %q not found", cfg.Oracle.CBCPath)
    }
    srv := &Server{
        Cfg:      cfg,
        Store:    s,
        Pub:      webhooks.NewPublisher(s, log),
        Auth:     auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim),
        Broker:   broker,
        Log:      log,
        Oracles:  oracles,
        limiters: map[string]*rate.Limiter{},
        slots:    make(chan struct{}, cfg.Server.MaxConcurrentSolves),
    }
    return srv, nil
}

// Routes returns the service mux.
func (s *Server) Routes() *http.ServeMux {
    mux := http.NewServeMux()

    // Waves
    mux.HandleFunc("/v1/waves", s.WavesHandler)
    mux.HandleFunc("/v1/waves/", s.WaveByIDHandler) // includes /model.lp, /events/stream, /ws

    // Solver configuration
    mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)
    mux.HandleFunc("/v1/admin/solver/config", s.AdminSolverConfigHandler)
    mux.HandleFunc("/v1/admin/search-metrics", s.SearchMetricsHandler)

    // Subscriptions and deliveries
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

    // Health, docs, debug
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    mux.HandleFunc("/debug", s.DebugJSON)
    return mux
}

// allow applies the tenant's submission rate limit.
func (s *Server) allow(tenant string) bool {
    s.limMu.Lock()
    l, ok := s.limiters[tenant]
    if !ok {
        l = rate.NewLimiter(rate.Limit(s.Cfg.Server.RateRPS), s.Cfg.Server.RateBurst)
        s.limiters[tenant] = l
    }
    s.limMu.Unlock()
    return l.Allow()
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    wh := s.Cfg.Webhooks
    return webhooks.NewWorker(s.Store, wh.MaxAttempts, wh.Timeout, wh.Interval, s.Log)
}

// Close waits for running solves (bounded by ctx) and releases the store
// and broker connections.
func (s *Server) Close(ctx context.Context) error {
    done := make(chan struct{})
    go func() { s.solves.Wait(); close(done) }()
    select {
    case <-done:
    case <-ctx.Done():
        s.Log.Warn("shutdown with solves still running")
    }
    type closer interface{ Close() error }
    var firstErr error
    for _, c := range []any{s.Broker, s.Store} {
        if cl, ok := c.(closer); ok {
            if err := cl.Close(); err != nil && firstErr == nil { firstErr = err }
        }
    }
    return firstErr
}

// solveTimeout bounds a solve goroutine beyond its own time budget.
func solveTimeout(cfg opt.Config) time.Duration { return cfg.TimeLimit + time.Minute }
