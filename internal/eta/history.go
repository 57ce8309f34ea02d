package eta

import (
	"context"
	"sync"
)

// MemoryHistory is the default in-process sample store. A single mutex guards
// the map; predictions and updates may arrive from concurrent requests.
type MemoryHistory struct {
	mu sync.Mutex
	m  map[string][]float64
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{m: map[string][]float64{}}
}

func (h *MemoryHistory) Append(ctx context.Context, key string, minutes float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := append(h.m[key], minutes)
	if len(s) > MaxSamples {
		s = s[len(s)-MaxSamples:]
	}
	h.m[key] = s
	return nil
}

func (h *MemoryHistory) Samples(ctx context.Context, key string) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.m[key]...), nil
}
