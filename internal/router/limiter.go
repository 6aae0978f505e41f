package router

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterWindow bounds how long idle per-destination limiters are kept.
const limiterWindow = time.Minute

// icmpLimiter applies a token bucket per ICMP error destination. The set of
// buckets is discarded every window so the map cannot grow without bound.
type icmpLimiter struct {
	mu          sync.Mutex
	buckets     map[netip.Addr]*rate.Limiter
	windowStart time.Time
	limit       rate.Limit
	burst       int
}

// newICMPLimiter returns nil (allow everything) when perSecond <= 0.
func newICMPLimiter(perSecond float64, burst int) *icmpLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	return &icmpLimiter{
		buckets: make(map[netip.Addr]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether an ICMP error may be sent to dst at now.
func (l *icmpLimiter) Allow(dst netip.Addr, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= limiterWindow {
		clear(l.buckets)
		l.windowStart = now
	}

	b, ok := l.buckets[dst]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[dst] = b
	}
	return b.AllowN(now, 1)
}

// Tracked returns the number of destinations in the current window.
func (l *icmpLimiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
