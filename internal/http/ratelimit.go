package http

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-user request rate limits using a token bucket
// per key.
type RateLimiter struct {
	limiters sync.Map   // user ID → *limiterEntry
	r        rate.Limit // refill rate (requests per second)
	burst    int
	stop     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-user limiter. rpm is requests per minute;
// rpm <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	rl := &RateLimiter{r: r, burst: burst, stop: make(chan struct{})}
	go rl.cleanupLoop()
	return rl
}

// Stop halts the idle-entry sweeper.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

// Allow reports whether a request from the user is within the limit.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.r == 0 {
		return true
	}
	entry := rl.getOrCreate(userID)
	if !entry.limiter.Allow() {
		slog.Warn("api rate limited", "user", userID)
		return false
	}
	entry.lastSeen = time.Now()
	return true
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.r, rl.burst),
		lastSeen: time.Now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.limiters.Range(func(key, value any) bool {
				if value.(*limiterEntry).lastSeen.Before(cutoff) {
					rl.limiters.Delete(key)
				}
				return true
			})
		}
	}
}
