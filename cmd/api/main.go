package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "wavepick/internal/api"
    "wavepick/internal/config"
    "wavepick/internal/logging"
    "wavepick/internal/metrics"
)

func main() {
    cfg, err := config.FromEnv()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
    if err != nil {
        log.Fatalf("failed to init logging: %v", err)
    }
    entry := logrus.NewEntry(logger)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg, entry)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    mux := srvDeps.Routes()
    mux.Handle("/metrics", metrics.Handler())

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           metrics.Middleware(logMiddleware(entry, mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    // Start webhook worker
    worker := srvDeps.NewWebhookWorker()
    worker.Start()

    finished := make(chan struct{})
    go func() {
        defer close(finished)
        <-ctx.Done()
        entry.Info("shutting down")
        close(worker.Stop)
        sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()
        if err := srv.Shutdown(sctx); err != nil { entry.WithError(err).Warn("http shutdown") }
        if err := srvDeps.Close(sctx); err != nil { entry.WithError(err).Warn("close dependencies") }
    }()

    entry.WithFields(logrus.Fields{"addr": srv.Addr, "oracle": cfg.Oracle.Default, "strategy": cfg.Solver.Strategy}).Info("API listening")
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatalf("server error: %v", err)
    }
    <-finished
}

func logMiddleware(log *logrus.Entry, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        log.WithFields(logrus.Fields{
            "remote": r.RemoteAddr,
            "method": r.Method,
            "path":   r.URL.Path,
            "dur":    time.Since(start).String(),
        }).Debug("request")
    })
}
