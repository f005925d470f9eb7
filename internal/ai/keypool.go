package ai

import (
	"fmt"
	"sync"
)

// KeyPool is an ordered set of API keys with one current index.
// It is safe for concurrent use.
type KeyPool struct {
	mu      sync.Mutex
	keys    []string
	current int
}

func NewKeyPool(keys []string) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return &KeyPool{keys: append([]string(nil), keys...)}, nil
}

// Current returns the current index and key.
func (p *KeyPool) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.keys[p.current]
}

func (p *KeyPool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *KeyPool) Len() int { return len(p.keys) }

// Rotate advances to the next key, wrapping around, but only if the current
// index is still from. Concurrent callers that observed the same exhausted
// key therefore advance the pool once. It returns the index now current.
func (p *KeyPool) Rotate(from int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == from {
		p.current = (p.current + 1) % len(p.keys)
	}
	return p.current
}

// KeyStatus describes one configured key without exposing it.
type KeyStatus struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Masked    string `json:"masked"`
	IsPrimary bool   `json:"isPrimary"`
	Current   bool   `json:"current"`
}

// Status lists the keys in rotation order.
func (p *KeyPool) Status() []KeyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]KeyStatus, len(p.keys))
	for i, k := range p.keys {
		out[i] = KeyStatus{
			ID:        i + 1,
			Name:      fmt.Sprintf("Gemini Key %d", i+1),
			Status:    "Connected",
			Masked:    maskKey(k),
			IsPrimary: i == 0,
			Current:   i == p.current,
		}
	}
	return out
}

// maskKey keeps the first and last four characters. Short keys are hidden entirely.
func maskKey(k string) string {
	if len(k) <= 8 {
		return "****"
	}
	return k[:4] + "..." + k[len(k)-4:]
}
