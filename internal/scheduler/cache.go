package scheduler

import (
	"sync"
	"time"

	"github.com/burnwatch/burnwatch/internal/eval"
)

// PairState is the cached outcome of the latest evaluation attempt for
// one (service, metric) pair. Result is nil when the attempt failed.
type PairState struct {
	Result    *eval.PairResult
	Err       string
	UpdatedAt time.Time
}

// StateCache is a thread-safe cache of the latest evaluation state per
// pair, keyed "service/metric".
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*PairState
}

// NewStateCache creates a new state cache
func NewStateCache() *StateCache {
	return &StateCache{
		states: make(map[string]*PairState),
	}
}

// Get retrieves cached state for a pair key
func (c *StateCache) Get(key string) (*PairState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.states[key]
	return state, exists
}

// Set stores evaluation state for a pair key
func (c *StateCache) Set(key string, state *PairState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[key] = state
}

// GetAll returns a snapshot of all cached states
func (c *StateCache) GetAll() map[string]*PairState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*PairState, len(c.states))
	for k, v := range c.states {
		snapshot[k] = v
	}

	return snapshot
}

// Size returns the number of cached states
func (c *StateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.states)
}

// Clear removes all cached states
func (c *StateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states = make(map[string]*PairState)
}
