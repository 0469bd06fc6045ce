package engine

import (
	"sync"
	"time"

	"ultraseeker/internal/model"
)

// Cooldown throttles escalation notifications so a sustained threat does
// not emit one per cycle.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(severity model.Severity, cooldown time.Duration) bool {
	return c.AllowKey(severity.String(), cooldown)
}

func (c *Cooldown) AllowKey(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	return true
}
