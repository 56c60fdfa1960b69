// Package ratelimit throttles clients per route with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonathan/company-agent/internal/config"
)

// idleAfter is how long an unused bucket survives cleanup.
const idleAfter = time.Hour

// bucket refills at rate tokens per second up to capacity.
type bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
	seen     time.Time
}

func newBucket(capacity int, rate float64, now time.Time) *bucket {
	return &bucket{
		capacity: float64(capacity),
		rate:     rate,
		tokens:   float64(capacity),
		last:     now,
		seen:     now,
	}
}

func (b *bucket) refill(now time.Time) {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// take consumes one token if available and reports the resulting state.
func (b *bucket) take(now time.Time) (ok bool, remaining int, full time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	b.seen = now
	if b.tokens >= 1 {
		b.tokens--
		ok = true
	}

	full = now
	if missing := b.capacity - b.tokens; missing > 0 {
		full = now.Add(time.Duration(missing / b.rate * float64(time.Second)))
	}
	return ok, int(b.tokens), full
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen.Before(cutoff)
}

// Info describes the limit applied to one request. Limit is zero when the
// request was not metered.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds limiter settings.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Allow           map[string]bool
	Deny            map[string]bool
	Rules           []Rule
}

// NewConfig builds limiter settings from the service configuration.
func NewConfig(cfg config.RateLimitConfig) *Config {
	return &Config{
		Enabled:         cfg.Enabled,
		DefaultLimit:    cfg.DefaultLimit,
		DefaultWindow:   cfg.DefaultWindow,
		CleanupInterval: cfg.CleanupInterval,
		Allow:           toSet(cfg.Allow),
		Deny:            toSet(cfg.Deny),
		Rules:           DefaultRules(cfg.ChatLimit, cfg.ChatWindow),
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item != "" {
			set[item] = true
		}
	}
	return set
}

// Limiter keeps one bucket per client, route and method.
type Limiter struct {
	config  *Config
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a limiter. A nil config enables a generous default.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.sweepLoop(cfg.CleanupInterval)
	}
	return l
}

// Allow meters one request from clientID to path.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Allow[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Deny[clientID] {
		return false, Info{}
	}

	rule := Match(path, method, l.config.Rules)
	if rule == nil {
		rule = &Rule{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	b := l.bucketFor(clientID+" "+method+" "+rule.key(path), rule, now)
	ok, remaining, full := b.take(now)

	info := Info{
		Allowed:   ok,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetTime: full,
	}
	if !ok {
		// one token is back after window/limit
		info.RetryAfter = rule.Window / time.Duration(rule.Limit)
	}
	return ok, info
}

func (l *Limiter) bucketFor(key string, rule *Rule, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	burst := rule.Burst
	if burst <= 0 {
		burst = rule.Limit
	}
	b := newBucket(burst, float64(rule.Limit)/rule.Window.Seconds(), now)
	l.buckets[key] = b
	return b
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(l.now().Add(-idleAfter))
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets unused since cutoff.
func (l *Limiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
