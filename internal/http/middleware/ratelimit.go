package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// LoginLimiter throttles credential attempts with a token bucket per
// email/address pair. Keying on the pair keeps a guessing run against one
// account from locking that user out everywhere, while a single address
// still burns a bucket per account it tries.
type LoginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*attemptBucket
	rate    float64 // tokens per second
	burst   int     // max tokens
}

type attemptBucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLoginLimiter allows rate attempts/sec with the given burst per
// email/address pair.
func NewLoginLimiter(rate float64, burst int) *LoginLimiter {
	l := &LoginLimiter{
		buckets: make(map[string]*attemptBucket),
		rate:    rate,
		burst:   burst,
	}
	// Periodically evict stale entries to prevent memory growth.
	go l.evict()
	return l
}

// AllowAttempt reports whether a login attempt for email from addr is
// within the limit, consuming a token when it is.
func (l *LoginLimiter) AllowAttempt(email, addr string) bool {
	key := strings.ToLower(strings.TrimSpace(email)) + "|" + addr

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &attemptBucket{tokens: float64(l.burst), lastSeen: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *LoginLimiter) evict() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP extracts the caller address for throttling. chi's RealIP
// middleware rewrites RemoteAddr from X-Real-Ip upstream; the header check
// covers handlers exercised without it.
func ClientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}
