package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wavepick/internal/logging"
	"wavepick/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3, 0, 0, logging.Discard())
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventWaveSolved, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventWaveSolved || !Verify("secret", []byte(`{"id":"evt1"}`), gotSig, time.Now(), time.Minute) {
		t.Fatalf("bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 1, 0, 0, logging.Discard())
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventWaveSolved, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
}

func TestWorkerProcessOnce_RetrySchedulesBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 5, 0, 0, logging.Discard())
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventWaveSolved, srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 503 {
		t.Fatalf("expected one failed mark with 503, got %+v", rs.marks)
	}
	if rs.marks[0].LastErr == "" {
		t.Fatalf("expected last error to be recorded")
	}
	// next attempt is in the future, so nothing is due now
	w.processOnce()
	if len(rs.marks) != 1 {
		t.Fatalf("delivery retried before its backoff elapsed: %+v", rs.marks)
	}
	items, _, _ := rs.ListWebhookDeliveries(context.Background(), "t1", "retry", "", 10)
	if len(items) != 1 {
		t.Fatalf("expected delivery in retry status, got %+v", items)
	}
}

func TestNextBackoff(t *testing.T) {
	cases := map[int]time.Duration{-1: time.Second, 0: time.Second, 3: 8 * time.Second, 10: 1024 * time.Second, 50: 1024 * time.Second}
	for attempts, want := range cases {
		if got := nextBackoff(attempts); got != want {
			t.Fatalf("nextBackoff(%d)=%v want %v", attempts, got, want)
		}
	}
}
