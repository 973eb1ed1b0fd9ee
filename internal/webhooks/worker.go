package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"wavepick/internal/metrics"
	"wavepick/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
	Log         *logrus.Entry
}

func NewWorker(s store.Store, maxAttempts int, timeout, interval time.Duration, log *logrus.Entry) *Worker {
	if maxAttempts <= 0 { maxAttempts = 10 }
	if timeout <= 0 { timeout = 5 * time.Second }
	if interval <= 0 { interval = time.Second }
	if log == nil { log = logrus.NewEntry(logrus.StandardLogger()) }
	return &Worker{
		Store: s, HTTP: &http.Client{Timeout: timeout}, Stop: make(chan struct{}),
		MaxAttempts: maxAttempts, Interval: interval, Log: log.WithField("component", "webhook-worker"),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		w.Log.WithError(err).Warn("fetch due deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	success := false
	next := time.Now().Add(nextBackoff(it.Attempts))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(it.Secret, it.Payload, time.Now()))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	if err == nil && resp != nil {
		code = resp.StatusCode
		if resp.Body != nil { _ = resp.Body.Close() }
		if code >= 200 && code < 300 { success = true }
	}
	lastErr := ""
	if !success {
		if err != nil { lastErr = err.Error() } else { lastErr = http.StatusText(code) }
	}
	log := w.Log.WithFields(logrus.Fields{"delivery": it.ID, "event": it.EventType, "code": code, "attempt": it.Attempts + 1})
	status := store.DeliveryDelivered
	switch {
	case success:
		log.Debug("webhook delivered")
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		log.WithField("error", lastErr).Warn("webhook delivery failed permanently")
	default:
		status = store.DeliveryRetry
		log.WithField("error", lastErr).Info("webhook delivery failed, will retry")
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
	if status == store.DeliveryFailed {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
		return
	}
	_ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 { attempts = 0 }
	if attempts > 10 { attempts = 10 }
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour { base = time.Hour }
	return base
}
