package store

import "time"

// Webhook delivery states. pending and retry are picked up by the worker;
// failed deliveries are also copied to the dead-letter queue.
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)

// WebhookDelivery is one queued POST of an event payload to a subscriber.
type WebhookDelivery struct {
    ID             string
    TenantID       string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}

// Due reports whether the worker should attempt d at now given its next
// attempt time.
func (d WebhookDelivery) Due(next, now time.Time) bool {
    return (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !next.After(now)
}
