package store

import (
    "encoding/hex"
    "strings"
    "testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
    body := []byte(`{"id":"evt_123","type":"x"}`)
    got := computeDedupKey(body)
    if got != "evt_123" {
        t.Fatalf("want evt_123, got %s", got)
    }
}

func TestComputeDedupKeyFromHash(t *testing.T) {
    body := []byte(`{"notId":"x"}`)
    got := computeDedupKey(body)
    // hex-encoded first 8 bytes -> 16 hex chars
    b, err := hex.DecodeString(got)
    if err != nil {
        t.Fatalf("invalid hex: %v", err)
    }
    if len(b) != 8 {
        t.Fatalf("expected 8 bytes, got %d", len(b))
    }
}

func TestIDsJSON(t *testing.T) {
    if got := string(idsJSON(nil)); got != "[]" {
        t.Fatalf("nil ids -> [] expected, got %s", got)
    }
    if got := string(idsJSON([]int{3, 1})); got != "[3,1]" {
        t.Fatalf("want [3,1], got %s", got)
    }
}

func TestMigrationsEmbedded(t *testing.T) {
    body, err := migrations.ReadFile("migrations/001_init.sql")
    if err != nil {
        t.Fatalf("read migration: %v", err)
    }
    for _, table := range []string{"waves", "search_metrics", "solver_config", "subscriptions", "webhook_deliveries", "webhook_dlq"} {
        if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" (") {
            t.Fatalf("migration lacks table %s", table)
        }
    }
}
