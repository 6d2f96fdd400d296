package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-key token bucket rate limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity: the number of requests a key may burst
	// before refill pacing kicks in. Tokens refill at Max per Window.
	Max int
	// Window is the period over which a full bucket refills.
	Window time.Duration
	// KeyFunc derives the bucket key from a request. Defaults to the
	// client IP when nil.
	KeyFunc func(*http.Request) string
}

// bucket holds the token count for one key. Refill is computed lazily from
// the time elapsed since the previous request.
type bucket struct {
	tokens float64
	seen   time.Time
}

type rateLimiter struct {
	cfg  RateLimitConfig
	rate float64 // tokens per second

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &rateLimiter{
		cfg:     cfg,
		rate:    float64(cfg.Max) / cfg.Window.Seconds(),
		buckets: make(map[string]*bucket),
	}
}

// take refills the key's bucket for elapsed time and spends one token.
// When the bucket is empty it reports the wait until the next token.
func (rl *rateLimiter) take(key string, now time.Time) (remaining int, wait time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, found := rl.buckets[key]
	if !found {
		b = &bucket{tokens: float64(rl.cfg.Max), seen: now}
		rl.buckets[key] = b
	} else {
		b.tokens = math.Min(float64(rl.cfg.Max), b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
		b.seen = now
	}

	if b.tokens < 1 {
		wait = time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
		return 0, wait, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// sweep drops buckets that have been idle long enough to refill completely.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key token bucket limit.
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get 429 with a JSON body and a
// Retry-After header.
//
// Idle buckets are never evicted; use RateLimitWithCleanup on servers with
// an unbounded key space.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limit(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that drops
// idle buckets every window. The goroutine exits when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.sweep(now)
			}
		}
	}()
	return limit(rl)
}

func limit(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, wait, ok := rl.take(rl.cfg.KeyFunc(r), now)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(rl.cfg.Window).Unix(), 10))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address: first hop of X-Forwarded-For,
// then X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
