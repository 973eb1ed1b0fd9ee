package model

import "time"

// Wave solve API types.

// InstanceIn is the JSON form of an instance. Item ids are map keys.
type InstanceIn struct {
    Orders     []map[int]int `json:"orders"`
    Aisles     []map[int]int `json:"aisles"`
    NItems     int           `json:"nItems"`
    WaveSizeLB int           `json:"waveSizeLB"`
    WaveSizeUB int           `json:"waveSizeUB"`
}

// WaveOptions override the tenant solver config for one request.
type WaveOptions struct {
    Strategy     string   `json:"strategy,omitempty"`
    Variant      string   `json:"variant,omitempty"`
    Oracle       string   `json:"oracle,omitempty"`
    TimeLimitSec float64  `json:"timeLimitSec,omitempty"`
    Gap          *float64 `json:"gap,omitempty"`
    Threads      int      `json:"threads,omitempty"`
    PruneAisles  *bool    `json:"pruneAisles,omitempty"`
}

type WaveRequest struct {
    TenantID     string      `json:"tenantId"`
    Name         string      `json:"name,omitempty"`
    Instance     *InstanceIn `json:"instance,omitempty"`
    InstanceText string      `json:"instanceText,omitempty"`
    Options      WaveOptions `json:"options"`
}

// Wave statuses.
const (
    WaveQueued  = "queued"
    WaveRunning = "running"
    WaveSolved  = "solved"
    WaveEmpty   = "empty"
    WaveFailed  = "failed"
)

// Wave is a stored solve request and, once finished, its result.
type Wave struct {
    ID          string     `json:"id"`
    TenantID    string     `json:"tenantId"`
    Name        string     `json:"name,omitempty"`
    Status      string     `json:"status"`
    Strategy    string     `json:"strategy"`
    Variant     string     `json:"variant"`
    Oracle      string     `json:"oracle"`
    NOrders     int        `json:"nOrders"`
    NAisles     int        `json:"nAisles"`
    NItems      int        `json:"nItems"`
    WaveSizeLB  int        `json:"waveSizeLB"`
    WaveSizeUB  int        `json:"waveSizeUB"`
    Orders      []int      `json:"orders"`
    Aisles      []int      `json:"aisles"`
    Units       int        `json:"units"`
    Ratio       float64    `json:"ratio"`
    Error       string     `json:"error,omitempty"`
    CreatedAt   time.Time  `json:"createdAt"`
    CompletedAt *time.Time `json:"completedAt,omitempty"`
    // InstanceText is the instance in challenge text format.
    InstanceText string `json:"-"`
}

// Done reports whether the wave reached a final status.
func (w Wave) Done() bool {
    return w.Status == WaveSolved || w.Status == WaveEmpty || w.Status == WaveFailed
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
