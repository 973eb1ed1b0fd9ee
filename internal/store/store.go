package store

import (
    "context"
    "errors"
    "time"

    "wavepick/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Waves
    CreateWave(ctx context.Context, w model.Wave) (model.Wave, error)
    UpdateWave(ctx context.Context, w model.Wave) error
    GetWave(ctx context.Context, tenantID, id string) (model.Wave, error)
    ListWaves(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Wave, string, error)

    // Search metrics, one record per wave
    SaveSearchMetrics(ctx context.Context, tenantID, waveID string, metrics map[string]any) error
    GetSearchMetrics(ctx context.Context, tenantID, waveID string) (map[string]any, error)

    // Solver config per tenant
    GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error)
    SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")
