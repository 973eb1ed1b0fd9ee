package api

import (
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

// WebSocket stream of wave progress. The server sends status, step and ping
// messages, then "complete" once the wave finishes; clients may send "ping".

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

func eventMessage(waveID string, evt SSEEvent) wsMessage {
    pl, _ := json.Marshal(evt.Data)
    return wsMessage{Type: evt.Type, ID: waveID, Payload: pl}
}

// WaveWSHandler handles GET /v1/waves/{id}/ws
func (s *Server) WaveWSHandler(w http.ResponseWriter, r *http.Request, tenant, id string) {
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    wv, err := s.Store.GetWave(r.Context(), tenant, id)
    if err != nil {
        writeStoreError(w, r, "Wave not found", err)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    var wmu sync.Mutex
    write := func(m wsMessage) error {
        wmu.Lock()
        defer wmu.Unlock()
        _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
        return conn.WriteJSON(m)
    }
    complete := func() {
        _ = write(wsMessage{Type: "complete", ID: id})
        wmu.Lock()
        _ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
        wmu.Unlock()
    }

    if err := write(eventMessage(id, SSEEvent{Type: EventStatus, Data: statusData(wv)})); err != nil {
        return
    }
    if wv.Done() {
        complete()
        return
    }

    // Read loop: answers pings and notices when the client goes away.
    closed := make(chan struct{})
    conn.SetReadLimit(1 << 16)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
    go func() {
        defer close(closed)
        for {
            var msg wsMessage
            if err := conn.ReadJSON(&msg); err != nil {
                return
            }
            _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
            if msg.Type == "ping" {
                _ = write(wsMessage{Type: "pong"})
            }
        }
    }()

    keepalive := time.NewTicker(20 * time.Second)
    defer keepalive.Stop()
    for {
        select {
        case <-closed:
            return
        case evt, ok := <-ch:
            if !ok {
                return
            }
            if err := write(eventMessage(id, evt)); err != nil {
                return
            }
            if evt.Type == EventStatus && isFinal(evt.Data) {
                complete()
                return
            }
        case <-keepalive.C:
            wmu.Lock()
            err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
            wmu.Unlock()
            if err != nil {
                return
            }
        }
    }
}
