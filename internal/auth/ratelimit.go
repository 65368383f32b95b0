package auth

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config sets the request budget for one client.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig allows 10 requests per second with a burst of 20.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 10, Burst: 20}
}

// ConfigFromEnv reads TSK_RATE_LIMIT in "rate:burst" form, for example
// "10:20". Missing or malformed parts fall back to the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	val := os.Getenv("TSK_RATE_LIMIT")
	if val == "" {
		return cfg
	}
	rate, burst, _ := strings.Cut(val, ":")
	if r, err := strconv.ParseFloat(rate, 64); err == nil && r > 0 {
		cfg.RequestsPerSecond = r
	}
	if b, err := strconv.Atoi(burst); err == nil && b > 0 {
		cfg.Burst = b
	}
	return cfg
}

const (
	maxAuthFailures = 10
	failureWindow   = time.Minute
	blockDuration   = 5 * time.Minute
)

// Limiter applies per-client token buckets and tracks authentication
// failures so brute-force attempts get locked out.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	failMu   sync.Mutex
	failures map[string]*failureRecord
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

type failureRecord struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// NewLimiter creates a limiter with the given budget.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{
		cfg:      cfg,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
		failures: make(map[string]*failureRecord),
	}
}

// Allow reports whether one more request from key fits the budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.cfg.RequestsPerSecond
	if b.tokens > float64(l.cfg.Burst) {
		b.tokens = float64(l.cfg.Burst)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Failure records a failed authentication from ip. Crossing the failure
// threshold inside the window blocks the client for five minutes.
func (l *Limiter) Failure(ip string) {
	l.failMu.Lock()
	defer l.failMu.Unlock()

	now := l.now()
	rec, ok := l.failures[ip]
	if !ok || now.Sub(rec.windowStart) > failureWindow {
		rec = &failureRecord{windowStart: now}
		l.failures[ip] = rec
	}
	rec.count++
	if rec.count >= maxAuthFailures {
		rec.blockedUntil = now.Add(blockDuration)
	}

	if len(l.failures) > 1000 {
		l.evictStale(now)
	}
}

// Success clears failure tracking for ip.
func (l *Limiter) Success(ip string) {
	l.failMu.Lock()
	defer l.failMu.Unlock()
	delete(l.failures, ip)
}

// Blocked reports whether ip is locked out from authenticating.
func (l *Limiter) Blocked(ip string) bool {
	l.failMu.Lock()
	defer l.failMu.Unlock()

	rec, ok := l.failures[ip]
	if !ok {
		return false
	}
	now := l.now()
	if now.Before(rec.blockedUntil) {
		return true
	}
	if !rec.blockedUntil.IsZero() {
		delete(l.failures, ip)
	}
	return false
}

// RetryAfter returns whole seconds until ip's block expires, or zero.
func (l *Limiter) RetryAfter(ip string) int {
	l.failMu.Lock()
	defer l.failMu.Unlock()

	rec, ok := l.failures[ip]
	if !ok {
		return 0
	}
	remaining := rec.blockedUntil.Sub(l.now()).Seconds()
	if remaining <= 0 {
		return 0
	}
	return int(remaining + 0.5)
}

func (l *Limiter) evictStale(now time.Time) {
	for ip, rec := range l.failures {
		expired := !rec.blockedUntil.IsZero() && now.After(rec.blockedUntil)
		if expired || now.Sub(rec.windowStart) > 2*failureWindow {
			delete(l.failures, ip)
		}
	}
}

// Middleware enforces the request budget per client IP. Paths in skip
// stay open for probes and scrapes.
func (l *Limiter) Middleware(skip ...string) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipSet[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(1/l.cfg.RequestsPerSecond)+1))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
