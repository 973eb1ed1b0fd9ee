package opt

import "sync"

type key struct {
	Tenant string
	WaveID string
}

var (
	mu    sync.Mutex
	store = map[key]SearchMetrics{}
)

// RecordMetrics keeps the last search metrics of a wave in process. It backs
// the admin endpoint when the configured store has none.
func RecordMetrics(tenant, waveID string, m SearchMetrics) {
	mu.Lock()
	store[key{Tenant: tenant, WaveID: waveID}] = m
	mu.Unlock()
}

func GetMetrics(tenant, waveID string) (SearchMetrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := store[key{Tenant: tenant, WaveID: waveID}]
	return m, ok
}

// ListMetrics returns every recorded wave of a tenant keyed by wave id.
func ListMetrics(tenant string) map[string]SearchMetrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]SearchMetrics{}
	for k, v := range store {
		if k.Tenant == tenant {
			out[k.WaveID] = v
		}
	}
	return out
}

// ToMap flattens m for JSON responses and storage.
func (m SearchMetrics) ToMap() map[string]any {
	return map[string]any{
		"strategy":     m.Strategy,
		"oracle":       m.Oracle,
		"oracleCalls":  m.OracleCalls,
		"skipped":      m.Skipped,
		"infeasible":   m.Infeasible,
		"improvements": m.Improvements,
		"bestRatio":    m.BestRatio,
		"bestUnits":    m.BestUnits,
		"bestAisles":   m.BestAisles,
		"elapsedMs":    m.Elapsed.Milliseconds(),
		"steps":        m.Steps,
	}
}
