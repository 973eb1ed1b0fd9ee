package store

import (
    "context"
    "errors"
    "testing"
    "time"

    "wavepick/internal/model"
)

func TestMemoryWaveLifecycle(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    w, err := m.CreateWave(ctx, model.Wave{TenantID: "t1", Strategy: "partition", InstanceText: "0 0 0\n0 0\n"})
    if err != nil {
        t.Fatal(err)
    }
    if w.ID == "" || w.Status != model.WaveQueued || w.CreatedAt.IsZero() {
        t.Fatalf("defaults not applied: %+v", w)
    }

    w.Status = model.WaveSolved
    w.Orders, w.Aisles = []int{2}, []int{0, 1}
    w.InstanceText = ""
    if err := m.UpdateWave(ctx, w); err != nil {
        t.Fatal(err)
    }
    got, err := m.GetWave(ctx, "t1", w.ID)
    if err != nil {
        t.Fatal(err)
    }
    if got.Status != model.WaveSolved || len(got.Aisles) != 2 {
        t.Fatalf("unexpected wave %+v", got)
    }
    if got.InstanceText == "" {
        t.Fatal("update dropped the stored instance text")
    }
    got.Orders[0] = 99
    again, _ := m.GetWave(ctx, "t1", w.ID)
    if again.Orders[0] != 2 {
        t.Fatal("GetWave returned shared slice")
    }

    if _, err := m.GetWave(ctx, "t2", w.ID); !errors.Is(err, ErrNotFound) {
        t.Fatalf("cross-tenant get: %v", err)
    }
    if err := m.UpdateWave(ctx, model.Wave{ID: w.ID, TenantID: "t2"}); !errors.Is(err, ErrNotFound) {
        t.Fatalf("cross-tenant update: %v", err)
    }
}

func TestMemoryListWavesPaging(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    for i := 0; i < 5; i++ {
        st := model.WaveSolved
        if i%2 == 1 {
            st = model.WaveEmpty
        }
        if _, err := m.CreateWave(ctx, model.Wave{TenantID: "t1", Status: st}); err != nil {
            t.Fatal(err)
        }
    }
    page, next, _ := m.ListWaves(ctx, "t1", "", "", 2)
    if len(page) != 2 || next == "" {
        t.Fatalf("first page: %d items, next %q", len(page), next)
    }
    rest, next, _ := m.ListWaves(ctx, "t1", "", next, 10)
    if len(rest) != 3 || next != "" {
        t.Fatalf("second page: %d items, next %q", len(rest), next)
    }
    empty, _, _ := m.ListWaves(ctx, "t1", model.WaveEmpty, "", 10)
    if len(empty) != 2 {
        t.Fatalf("status filter: %d", len(empty))
    }
}

func TestMemorySearchMetricsAndSolverConfig(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    if _, err := m.GetSearchMetrics(ctx, "t1", "w1"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("want ErrNotFound, got %v", err)
    }
    _ = m.SaveSearchMetrics(ctx, "t1", "w1", map[string]any{"oracleCalls": 4})
    mx, err := m.GetSearchMetrics(ctx, "t1", "w1")
    if err != nil || mx["oracleCalls"] != 4 {
        t.Fatalf("metrics %v %v", mx, err)
    }

    cfg, err := m.GetSolverConfig(ctx, "t1")
    if err != nil || cfg != nil {
        t.Fatalf("unset config: %v %v", cfg, err)
    }
    _ = m.SaveSolverConfig(ctx, "t1", map[string]any{"strategy": "scan"})
    cfg, _ = m.GetSolverConfig(ctx, "t1")
    if cfg["strategy"] != "scan" {
        t.Fatalf("config %v", cfg)
    }
}

func TestMemoryWebhookQueue(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    sub, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{"wave.solved"}})
    subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "wave.solved")
    if len(subs) != 1 || subs[0].ID != sub.ID {
        t.Fatalf("subscriptions %v", subs)
    }
    if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "wave.failed"); len(subs) != 0 {
        t.Fatalf("unexpected match %v", subs)
    }

    id, _ := m.EnqueueWebhook(ctx, "t1", sub.ID, "wave.solved", "http://x", "", []byte(`{}`))
    due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
    if len(due) != 1 || due[0].ID != id {
        t.Fatalf("due %v", due)
    }
    later := time.Now().Add(time.Hour)
    _ = m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3)
    if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
        t.Fatalf("delivery due before backoff: %v", due)
    }
    _ = m.RetryWebhookDelivery(ctx, "t1", id)
    if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 || due[0].Attempts != 1 {
        t.Fatalf("retry: %v", due)
    }
    _ = m.FailWebhookDelivery(ctx, id, "gone", 410, 2)
    items, _, _ := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, "", 10)
    if len(items) != 1 || items[0]["responseCode"] != 410 {
        t.Fatalf("failed deliveries %v", items)
    }
    if dl := m.DeadLetters("t1"); len(dl) != 1 || dl[0].ID != id || dl[0].Attempts != 2 {
        t.Fatalf("dead letters %+v", dl)
    }
    if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
        t.Fatalf("failed delivery still due: %v", due)
    }

    _ = m.DeleteSubscription(ctx, "t1", sub.ID)
    if list, _, _ := m.ListSubscriptions(ctx, "t1", "", 10); len(list) != 0 {
        t.Fatalf("subscription not deleted: %v", list)
    }
}

func TestMemoryListWebhookDeliveriesPaging(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    for i := 0; i < 3; i++ {
        _, _ = m.EnqueueWebhook(ctx, "t1", "", "wave.solved", "http://x", "", []byte(`{}`))
    }
    page, next, _ := m.ListWebhookDeliveries(ctx, "t1", "", "", 2)
    if len(page) != 2 || next != page[1]["id"] {
        t.Fatalf("first page %v next %q", page, next)
    }
    rest, next, _ := m.ListWebhookDeliveries(ctx, "t1", "", next, 2)
    if len(rest) != 1 || next != "" {
        t.Fatalf("second page %v next %q", rest, next)
    }
}
