// Package flight provides per-key in-flight tokens. A token rejects
// re-entrant invocation of the same operation (same key) while letting
// unrelated operations proceed, replacing a coarse single boolean guard.
package flight

import (
	"fmt"
	"sync"
)

// InFlightError reports that the operation for this key is already running.
type InFlightError struct {
	Key string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("operation %s already in flight", e.Key)
}

// Guard tracks held tokens by key.
type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// Acquire takes the token for key. It returns a release func on success, or
// an *InFlightError when the token is already held. Duplicate invocations are
// rejected, not queued and not coalesced.
func (g *Guard) Acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, &InFlightError{Key: key}
	}
	g.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}
	return release, nil
}
