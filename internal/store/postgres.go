package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "embed"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "wavepick/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that are not yet recorded in
// schema_migrations, in file name order.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("schema_migrations: %w", err)
    }
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        var seen int
        if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE name=$1`, name).Scan(&seen); err != nil { return err }
        if seen > 0 { continue }
        body, err := migrations.ReadFile(name)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migrate %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

const waveColumns = `id::text, tenant_id, COALESCE(name,''), status, strategy, variant, oracle, n_orders, n_aisles, n_items, wave_lb, wave_ub, orders, aisles, units, ratio, COALESCE(error,''), instance_text, created_at, completed_at`

func (p *Postgres) CreateWave(ctx context.Context, w model.Wave) (model.Wave, error) {
    if w.ID == "" { w.ID = uuid.New().String() }
    if w.CreatedAt.IsZero() { w.CreatedAt = time.Now().UTC() }
    if w.Status == "" { w.Status = model.WaveQueued }
    orders, aisles := idsJSON(w.Orders), idsJSON(w.Aisles)
    _, err := p.db.ExecContext(ctx, `INSERT INTO waves (id, tenant_id, name, status, strategy, variant, oracle, n_orders, n_aisles, n_items, wave_lb, wave_ub, orders, aisles, units, ratio, error, instance_text, created_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
        w.ID, w.TenantID, nullIfEmpty(w.Name), w.Status, w.Strategy, w.Variant, w.Oracle, w.NOrders, w.NAisles, w.NItems, w.WaveSizeLB, w.WaveSizeUB,
        orders, aisles, w.Units, w.Ratio, nullIfEmpty(w.Error), w.InstanceText, w.CreatedAt, w.CompletedAt)
    if err != nil { return model.Wave{}, err }
    return w, nil
}

func (p *Postgres) UpdateWave(ctx context.Context, w model.Wave) error {
    res, err := p.db.ExecContext(ctx, `UPDATE waves SET status=$3, orders=$4, aisles=$5, units=$6, ratio=$7, error=$8, completed_at=$9 WHERE tenant_id=$1 AND id=$2`,
        w.TenantID, w.ID, w.Status, idsJSON(w.Orders), idsJSON(w.Aisles), w.Units, w.Ratio, nullIfEmpty(w.Error), w.CompletedAt)
    if err != nil { return err }
    if n, err := res.RowsAffected(); err == nil && n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetWave(ctx context.Context, tenantID, id string) (model.Wave, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Wave{}, ErrNotFound }
    row := p.db.QueryRowContext(ctx, `SELECT `+waveColumns+` FROM waves WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    w, err := scanWave(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Wave{}, ErrNotFound }
    return w, err
}

// ListWaves pages by id; cursor is the last id of the previous page.
func (p *Postgres) ListWaves(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Wave, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + waveColumns + ` FROM waves WHERE tenant_id=$1 AND id::text > $2`
    args := []any{tenantID, cursor}
    if status != "" {
        q += ` AND status=$3 ORDER BY id LIMIT $4`
        args = append(args, status, limit)
    } else {
        q += ` ORDER BY id LIMIT $3`
        args = append(args, limit)
    }
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Wave{}
    var last string
    for rows.Next() {
        w, err := scanWave(rows)
        if err != nil { return nil, "", err }
        out = append(out, w)
        last = w.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanWave(r rowScanner) (model.Wave, error) {
    var w model.Wave
    var orders, aisles []byte
    var completed sql.NullTime
    if err := r.Scan(&w.ID, &w.TenantID, &w.Name, &w.Status, &w.Strategy, &w.Variant, &w.Oracle, &w.NOrders, &w.NAisles, &w.NItems, &w.WaveSizeLB, &w.WaveSizeUB,
        &orders, &aisles, &w.Units, &w.Ratio, &w.Error, &w.InstanceText, &w.CreatedAt, &completed); err != nil {
        return model.Wave{}, err
    }
    w.Orders, w.Aisles = []int{}, []int{}
    _ = json.Unmarshal(orders, &w.Orders)
    _ = json.Unmarshal(aisles, &w.Aisles)
    if completed.Valid { t := completed.Time; w.CompletedAt = &t }
    return w, nil
}

func idsJSON(ids []int) []byte {
    if ids == nil { ids = []int{} }
    b, _ := json.Marshal(ids)
    return b
}

func (p *Postgres) SaveSearchMetrics(ctx context.Context, tenantID, waveID string, metrics map[string]any) error {
    js, err := json.Marshal(metrics)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO search_metrics (tenant_id, wave_id, metrics) VALUES ($1,$2,$3)
        ON CONFLICT (tenant_id, wave_id) DO UPDATE SET metrics=$3, created_at=now()`, tenantID, waveID, js)
    return err
}

func (p *Postgres) GetSearchMetrics(ctx context.Context, tenantID, waveID string) (map[string]any, error) {
    if _, err := uuid.Parse(waveID); err != nil { return nil, ErrNotFound }
    var js []byte
    err := p.db.QueryRowContext(ctx, `SELECT metrics FROM search_metrics WHERE tenant_id=$1 AND wave_id=$2`, tenantID, waveID).Scan(&js)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    var m map[string]any
    if err := json.Unmarshal(js, &m); err != nil { return nil, err }
    return m, nil
}

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM solver_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO solver_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
    return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[\"%s\"]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events any
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        if b, ok := events.([]byte); ok { _ = json.Unmarshal(b, &s.Events) }
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts 
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    status := DeliveryDelivered
    if !success {
        status = DeliveryRetry
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=$1, last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$5, latency_ms=$6 WHERE id=$4`, status, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    // move to DLQ
    _, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts+1, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        q += ` AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`
        rows, err = p.db.QueryContext(ctx, q, tenantID, status, cursor, limit)
    } else {
        q += ` AND id::text > $2 ORDER BY id LIMIT $3`
        rows, err = p.db.QueryContext(ctx, q, tenantID, cursor, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return err
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}


func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
