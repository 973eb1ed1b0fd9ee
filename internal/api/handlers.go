package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "wavepick/internal/metrics"
    "wavepick/internal/model"
    "wavepick/internal/opt"
    "wavepick/internal/wave"
)

// WavesHandler handles POST/GET /v1/waves
func (s *Server) WavesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/waves" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        s.submitWave(w, r, p)
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := queryInt(r, "limit", 100)
        items, next, err := s.Store.ListWaves(r.Context(), p.Tenant, status, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List waves failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) submitWave(w http.ResponseWriter, r *http.Request, p Principal) {
    if !p.CanSubmit() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
    if !s.allow(p.Tenant) {
        metrics.RateLimited.Inc()
        w.Header().Set("Retry-After", "1")
        writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "wave submission rate exceeded", r.URL.Path)
        return
    }
    var req model.WaveRequest
    body := http.MaxBytesReader(w, r.Body, s.Cfg.Server.MaxBodyBytes)
    if err := json.NewDecoder(body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID != "" && req.TenantID != p.Tenant {
        writeProblem(w, 403, "Forbidden", "tenantId does not match caller", r.URL.Path)
        return
    }
    if err := validateWaveRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid wave request", err.Error(), r.URL.Path)
        return
    }
    inst, err := requestInstance(&req, s.instanceLimits())
    if err != nil {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid instance", err.Error(), r.URL.Path)
        return
    }
    cfg, oracle, err := s.effectiveConfig(r.Context(), p.Tenant, req.Options)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
        return
    }
    wv, err := s.newWave(r.Context(), p.Tenant, req.Name, inst, cfg, oracle)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Create wave failed", err.Error(), r.URL.Path)
        return
    }
    job := solveJob{wave: wv, inst: inst, cfg: cfg, oracle: oracle}
    s.solves.Add(1)
    if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
        defer s.solves.Done()
        writeJSON(w, http.StatusOK, s.safeRunWave(job))
        return
    }
    go func() {
        defer s.solves.Done()
        s.safeRunWave(job)
    }()
    w.Header().Set("Location", "/v1/waves/"+wv.ID)
    writeJSON(w, http.StatusAccepted, map[string]any{"id": wv.ID, "status": wv.Status})
}

// WaveByIDHandler handles /v1/waves/{id} and its sub-resources.
func (s *Server) WaveByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    // Expected: /v1/waves/{id}, /v1/waves/{id}/model.lp, /v1/waves/{id}/events/stream, /v1/waves/{id}/ws
    rest := strings.TrimPrefix(path, "/v1/waves/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    parts := strings.Split(rest, "/")
    id := parts[0]
    sub := strings.Join(parts[1:], "/")
    switch sub {
    case "events/stream":
        s.streamWaveEvents(w, r, p.Tenant, id)
        return
    case "ws":
        s.WaveWSHandler(w, r, p.Tenant, id)
        return
    }
    wv, err := s.Store.GetWave(r.Context(), p.Tenant, id)
    if err != nil {
        writeStoreError(w, r, "Wave not found", err)
        return
    }
    switch sub {
    case "":
        writeJSON(w, http.StatusOK, wv)
    case "model.lp":
        s.writeModelLP(w, r, wv)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

// writeModelLP exports the wave's formulation in LP format. Aisle-count
// bounds are the full range [1, nAisles].
func (s *Server) writeModelLP(w http.ResponseWriter, r *http.Request, wv model.Wave) {
    inst, err := wave.Parse(strings.NewReader(wv.InstanceText))
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Stored instance unreadable", err.Error(), r.URL.Path)
        return
    }
    variant := opt.Variant(wv.Variant)
    if v := r.URL.Query().Get("variant"); v != "" { variant = opt.Variant(v) }
    if variant != opt.VariantPooled && variant != opt.VariantCapacity {
        writeProblem(w, http.StatusBadRequest, "Invalid variant", string(variant), r.URL.Path)
        return
    }
    f := opt.Build(inst, variant)
    if h := queryInt(r, "aisles", 0); h > 0 { f.SetAisleCount(h) }
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wv.ID+".lp"))
    w.WriteHeader(http.StatusOK)
    if err := f.WriteLP(w); err != nil {
        s.Log.WithError(err).WithField("wave", wv.ID).Warn("write lp")
    }
}

// streamWaveEvents serves step and status events as SSE until the wave
// finishes or the client goes away.
func (s *Server) streamWaveEvents(w http.ResponseWriter, r *http.Request, tenant, id string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    // subscribe before reading the status so no final event is missed
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    wv, err := s.Store.GetWave(r.Context(), tenant, id)
    if err != nil { writeStoreError(w, r, "Wave not found", err); return }

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    writeSSE(w, SSEEvent{Type: EventStatus, Data: statusData(wv)})
    flusher.Flush()
    if wv.Done() { return }

    heartbeat := time.NewTicker(15 * time.Second)
    defer heartbeat.Stop()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, ok := <-ch:
            if !ok { return }
            writeSSE(w, evt)
            flusher.Flush()
            if evt.Type == EventStatus && isFinal(evt.Data) { return }
        case <-heartbeat.C:
            writeSSE(w, SSEEvent{Type: "heartbeat", Data: map[string]any{"waveId": id, "ts": time.Now().Format(time.RFC3339)}})
            flusher.Flush()
        }
    }
}

func writeSSE(w http.ResponseWriter, evt SSEEvent) {
    b, _ := json.Marshal(evt.Data)
    fmt.Fprintf(w, "event: %s\n", evt.Type)
    fmt.Fprintf(w, "data: %s\n\n", string(b))
}

func isFinal(data map[string]any) bool {
    st, _ := data["status"].(string)
    return model.Wave{Status: st}.Done()
}

// SolverConfigHandler returns the effective solver configuration for the caller's tenant.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    cfg, oracle, err := s.effectiveConfig(r.Context(), p.Tenant, model.WaveOptions{})
    if err != nil { writeProblem(w, 500, "Solver config unavailable", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{
        "defaults":  configView(s.Cfg.Solver, s.Cfg.Oracle.Default),
        "effective": configView(cfg, oracle),
    })
}

// Admin get/set tenant solver overrides
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/solver/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetSolverConfig(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Load failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config map[string]any `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        o, err := decodeOptions(body.Config)
        if err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
        if o.Oracle != "" {
            if _, ok := s.Oracles[o.Oracle]; !ok { writeProblem(w, 400, "Invalid config", "oracle "+o.Oracle+" is not available", r.URL.Path); return }
        }
        if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SearchMetricsHandler returns the search trace of a wave, or of every wave
// recorded in this process when waveId is omitted.
func (s *Server) SearchMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/search-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    waveID := r.URL.Query().Get("waveId")
    if waveID == "" {
        items := []map[string]any{}
        for id, m := range opt.ListMetrics(p.Tenant) {
            item := m.ToMap()
            item["waveId"] = id
            delete(item, "steps")
            items = append(items, item)
        }
        writeJSON(w, 200, map[string]any{"items": items})
        return
    }
    // Prefer stored metrics; fall back to in-process
    mx, err := s.Store.GetSearchMetrics(r.Context(), p.Tenant, waveID)
    if err != nil {
        m, found := opt.GetMetrics(p.Tenant, waveID)
        if !found {
            writeStoreError(w, r, "Search metrics not found", err)
            return
        }
        mx = m.ToMap()
    }
    writeJSON(w, 200, mx)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.TenantID = p.Tenant
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := queryInt(r, "limit", 100)
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check store and broker connectivity when they are remote
    type pinger interface{ Ping(ctx context.Context) error }
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
        if pg, ok := dep.(pinger); ok {
            if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path); return }
        }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := queryInt(r, "limit", 100)
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

func queryInt(r *http.Request, key string, def int) int {
    if v := r.URL.Query().Get(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil { return n }
    }
    return def
}

