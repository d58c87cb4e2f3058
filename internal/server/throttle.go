package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/specqa-go/internal/logging"
)

const (
	// defaultRateLimit is the per-client request rate on the model-backed
	// routes when Config.RateLimit is zero.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when Config.RateBurst is zero.
	defaultRateBurst = 20

	// clientIdleTTL is how long an idle client keeps its bucket.
	clientIdleTTL = 5 * time.Minute
	sweepInterval = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle applies a per-client token bucket to the routes it wraps. Every
// route shares the same bucket for a client, so a burst of summaries eats
// into the same budget as a burst of queries.
type throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int
	now   func() time.Time

	// rejected is called for every request turned away.
	rejected func(r *http.Request)
}

// newThrottle returns a throttle and a stop function that ends its sweeper.
func newThrottle(rps float64, burst int, rejected func(*http.Request)) (*throttle, func()) {
	t := &throttle{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		rejected: rejected,
	}

	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(sweepInterval)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				t.sweep()
			}
		}
	}()

	var once sync.Once
	return t, func() { once.Do(func() { close(done) }) }
}

// allow takes one token from the client's bucket.
func (t *throttle) allow(client string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than clientIdleTTL.
func (t *throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-clientIdleTTL)
	for client, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, client)
		}
	}
}

// size reports how many clients currently hold a bucket.
func (t *throttle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// wrap answers 429 with Retry-After once the client's bucket is empty.
func (t *throttle) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !t.allow(client) {
			logging.FromContext(r.Context()).Warn("request throttled",
				slog.String("client", client),
				slog.String("route", routeLabel(r.Pattern)),
			)
			if t.rejected != nil {
				t.rejected(r)
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the remote address without its port. Forwarding headers are
// ignored.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	// "::1:8080" is not split by SplitHostPort.
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		return addr[:i]
	}
	return addr
}
