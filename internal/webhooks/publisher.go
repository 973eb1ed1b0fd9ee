package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wavepick/internal/model"
	"wavepick/internal/store"
)

// Event types delivered to subscriptions.
const (
	EventWaveSolved = "wave.solved"
	EventWaveFailed = "wave.failed"
)

type Publisher struct {
	Store store.Store
	Log   *logrus.Entry
}

func NewPublisher(s store.Store, log *logrus.Entry) *Publisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{Store: s, Log: log.WithField("component", "webhooks")}
}

// Emit sends an event to all subscriptions for the tenant and event type.
// It returns the number of deliveries enqueued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		p.Log.WithError(err).WithField("event", eventType).Warn("subscription lookup failed")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.NewString(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Log.WithError(err).WithField("event", eventType).Error("encode event")
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.WithError(err).WithFields(logrus.Fields{"event": eventType, "subscription": s.ID}).Warn("enqueue failed")
			continue
		}
		n++
	}
	return n
}

// EmitWave publishes the final state of a wave: wave.failed for failed
// solves, wave.solved otherwise (an empty wave is a solved one with no picks).
func (p *Publisher) EmitWave(ctx context.Context, w model.Wave) int {
	event := EventWaveSolved
	if w.Status == model.WaveFailed {
		event = EventWaveFailed
	}
	data := map[string]any{
		"waveId":   w.ID,
		"status":   w.Status,
		"strategy": w.Strategy,
		"orders":   w.Orders,
		"aisles":   w.Aisles,
		"units":    w.Units,
		"ratio":    w.Ratio,
	}
	if w.Error != "" {
		data["error"] = w.Error
	}
	return p.Emit(ctx, w.TenantID, event, data)
}
