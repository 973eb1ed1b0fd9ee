package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
    Subscribe(waveID string) chan SSEEvent
    Unsubscribe(waveID string, ch chan SSEEvent)
    Publish(waveID string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so that progress
// reaches streams served by other replicas.
type RedisBroker struct {
    rdb *redis.Client
    mu  sync.Mutex
    ps  map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, err
    }
    return &RedisBroker{rdb: rdb, ps: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(waveID string) chan SSEEvent {
    ch := make(chan SSEEvent, 32)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    ps := b.rdb.Subscribe(ctx, b.chanName(waveID))
    // wait for the subscription confirmation so no publish is missed
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.ps[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub; its reader goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(waveID string, ch chan SSEEvent) {
    b.mu.Lock()
    ps, ok := b.ps[ch]
    delete(b.ps, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(waveID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(waveID), data).Err()
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(waveID string) string { return "wave:" + waveID }
