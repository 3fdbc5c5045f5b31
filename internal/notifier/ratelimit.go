package notifier

import (
	"sync"
	"time"
)

// RateLimiter caps whole notifications, not individual channel sends, over a
// sliding window. Each admitted notification holds a Ticket that can be
// refunded if nothing was delivered.
type RateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	enabled      bool
	now          func() time.Time

	// admitted is ordered by time; seq stays increasing so a ticket can find
	// its own entry after older ones have expired.
	admitted []admission
	seq      uint64
	dropped  int64
	refunded int64
}

type admission struct {
	seq uint64
	at  time.Time
}

// Ticket is one admitted notification.
type Ticket struct {
	limiter *RateLimiter
	seq     uint64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool
}

// DefaultRateLimitConfig returns default rate limit settings. Limiting is off
// unless explicitly enabled.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
	}
}

// NewRateLimiter creates a rate limiter. Non-positive limits fall back to the
// defaults.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = def.MaxPerWindow
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}

	return &RateLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		enabled:      config.Enabled,
		now:          time.Now,
	}
}

// Acquire admits one notification if the window has room. A nil or disabled
// limiter admits everything with a ticket whose Release is a no-op.
func (r *RateLimiter) Acquire() (Ticket, bool) {
	if r == nil || !r.enabled {
		return Ticket{}, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expireLocked(now.Add(-r.window))

	if len(r.admitted) >= r.maxPerWindow {
		r.dropped++
		return Ticket{}, false
	}

	r.seq++
	r.admitted = append(r.admitted, admission{seq: r.seq, at: now})
	return Ticket{limiter: r, seq: r.seq}, true
}

// Release refunds the ticket's slot. Releasing twice, or after the slot has
// expired, does nothing.
func (t Ticket) Release() {
	if t.limiter == nil {
		return
	}
	r := t.limiter
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, a := range r.admitted {
		if a.seq == t.seq {
			r.admitted = append(r.admitted[:i], r.admitted[i+1:]...)
			r.refunded++
			return
		}
	}
}

func (r *RateLimiter) expireLocked(cutoff time.Time) {
	idx := 0
	for idx < len(r.admitted) && r.admitted[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.admitted = append(r.admitted[:0], r.admitted[idx:]...)
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64
	Refunded     int64
	CurrentCount int
	MaxPerWindow int
	Window       time.Duration
	Enabled      bool
}

// Stats returns rate limiter statistics. Entries that have left the window
// are not counted.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(r.now().Add(-r.window))
	return RateLimitStats{
		Dropped:      r.dropped,
		Refunded:     r.refunded,
		CurrentCount: len(r.admitted),
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}
