package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "wavepick/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    waves  map[string]model.Wave                // id -> wave
    byTen  map[string][]string                  // tenant -> wave ids, creation order
    subs   map[string][]model.Subscription      // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery          // id -> delivery state
    deliveriesByTenant map[string][]string      // tenant -> delivery ids
    dlq    []WebhookDelivery                    // dead-lettered deliveries
    searchMx map[string]map[string]map[string]any // tenant -> waveId -> metrics
    solverCfg map[string]map[string]any           // tenant -> config
}

func NewMemory() *Memory {
    return &Memory{
        waves: map[string]model.Wave{},
        byTen: map[string][]string{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dlq: []WebhookDelivery{},
        searchMx: map[string]map[string]map[string]any{},
        solverCfg: map[string]map[string]any{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateWave(ctx context.Context, w model.Wave) (model.Wave, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if w.ID == "" { w.ID = uuid.New().String() }
    if w.CreatedAt.IsZero() { w.CreatedAt = time.Now().UTC() }
    if w.Status == "" { w.Status = model.WaveQueued }
    m.waves[w.ID] = copyWave(w)
    m.byTen[w.TenantID] = append(m.byTen[w.TenantID], w.ID)
    return w, nil
}

func (m *Memory) UpdateWave(ctx context.Context, w model.Wave) error {
    m.mu.Lock(); defer m.mu.Unlock()
    old, ok := m.waves[w.ID]
    if !ok || old.TenantID != w.TenantID { return ErrNotFound }
    if w.InstanceText == "" { w.InstanceText = old.InstanceText }
    m.waves[w.ID] = copyWave(w)
    return nil
}

func (m *Memory) GetWave(ctx context.Context, tenantID, id string) (model.Wave, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    w, ok := m.waves[id]
    if !ok || w.TenantID != tenantID { return model.Wave{}, ErrNotFound }
    return copyWave(w), nil
}

func (m *Memory) ListWaves(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Wave, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.byTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Wave{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        w := m.waves[ids[i]]
        if status == "" || w.Status == status { out = append(out, copyWave(w)) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func copyWave(w model.Wave) model.Wave {
    w.Orders = append([]int{}, w.Orders...)
    w.Aisles = append([]int{}, w.Aisles...)
    return w
}

func (m *Memory) SaveSearchMetrics(ctx context.Context, tenantID, waveID string, metrics map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.searchMx[tenantID] == nil { m.searchMx[tenantID] = map[string]map[string]any{} }
    m.searchMx[tenantID][waveID] = metrics
    return nil
}

func (m *Memory) GetSearchMetrics(ctx context.Context, tenantID, waveID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mx, ok := m.searchMx[tenantID][waveID]
    if !ok { return nil, ErrNotFound }
    return mx, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if cfg, ok := m.solverCfg[tenantID]; ok { return cfg, nil }
    return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.solverCfg[tenantID] = cfg
    return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if d.Due(d.NextAttemptAt, now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    m.dlq = append(m.dlq, d.WebhookDelivery)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids { if id == cursor { start = i + 1; break } }
    }
    next := ""
    for i := start; i < len(ids); i++ {
        d := m.deliveries[ids[i]]
        if d == nil || (status != "" && d.Status != status) { continue }
        if len(out) == limit { next = out[len(out)-1]["id"].(string); break }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
        if d.LastError != "" { item["lastError"] = d.LastError }
        if d.ResponseCode != 0 { item["responseCode"] = d.ResponseCode }
        out = append(out, item)
    }
    return out, next, nil
}

// DeadLetters returns the deliveries that exhausted their attempts, oldest
// first.
func (m *Memory) DeadLetters(tenantID string) []WebhookDelivery {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []WebhookDelivery{}
    for _, d := range m.dlq { if d.TenantID == tenantID { out = append(out, d) } }
    return out
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.TenantID == tenantID {
        d.Status = DeliveryPending
        d.NextAttemptAt = time.Now()
    }
    return nil
}

// helper: iterate delivery IDs by tenant, tenants sorted
func (m *Memory) iterDeliveryIDs() []string {
    tenants := make([]string, 0, len(m.deliveriesByTenant))
    for t := range m.deliveriesByTenant { tenants = append(tenants, t) }
    sort.Strings(tenants)
    ids := []string{}
    for _, t := range tenants {
        ids = append(ids, m.deliveriesByTenant[t]...)
    }
    return ids
}
