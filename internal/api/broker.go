package api

import (
    "sync"
)

// SSEEvent is one message on a wave's progress stream.
type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Progress event types.
const (
    EventStep   = "step"
    EventStatus = "status"
)

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // waveId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(waveID string) chan SSEEvent {
    ch := make(chan SSEEvent, 32)
    b.mu.Lock()
    if b.subs[waveID] == nil { b.subs[waveID] = map[chan SSEEvent]struct{}{} }
    b.subs[waveID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(waveID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if m := b.subs[waveID]; m != nil {
        if _, ok := m[ch]; !ok { return }
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, waveID) }
        close(ch)
    }
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(waveID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[waveID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
