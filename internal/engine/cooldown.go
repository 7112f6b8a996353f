package engine

import (
	"sync"
	"time"
)

// CooldownController enforces a minimum silence interval between two triggers
// sharing the same key. Keys are rule ids, so one noisy rule cannot mask a
// real violation of another rule; the manual panic trigger uses a fixed key.
type CooldownController struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func NewCooldownController(window time.Duration) *CooldownController {
	return &CooldownController{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// IsAllowed reports whether a trigger for key may fire at now. A key that has
// never been recorded is always allowed.
func (c *CooldownController) IsAllowed(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= c.window
}

// Record marks a trigger for key at now, opening a new silence window.
func (c *CooldownController) Record(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = now
}
