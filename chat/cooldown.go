package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldowns rate-limits chat commands per user: one command per interval, no burst.
type cooldowns struct {
	mu       sync.Mutex
	interval time.Duration
	users    map[string]*rate.Limiter
	now      func() time.Time
}

func newCooldowns(interval time.Duration) *cooldowns {
	return &cooldowns{interval: interval, users: map[string]*rate.Limiter{}, now: time.Now}
}

// Allow reports whether user may run a command now and records the attempt.
func (c *cooldowns) Allow(user string) bool {
	if c == nil || c.interval <= 0 || user == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.users[user]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.interval), 1)
		c.users[user] = l
	}
	if len(c.users) > 1024 {
		c.prune()
	}
	return l.AllowN(c.now(), 1)
}

// prune drops limiters that have fully refilled.
func (c *cooldowns) prune() {
	now := c.now()
	for u, l := range c.users {
		if l.TokensAt(now) >= 1 {
			delete(c.users, u)
		}
	}
}
