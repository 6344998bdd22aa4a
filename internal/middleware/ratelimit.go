package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/linear-tutor/pkg/utils"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// IdleTTL drops the limiter of a client not seen for this long.
	IdleTTL time.Duration
	// OnReject is called for every rejected request.
	OnReject func()
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per client. Entries idle for longer than
// ttl are evicted by a background sweep started on first use.
type limiterPool struct {
	mu           sync.Mutex
	m            map[string]*limiterEntry
	cfg          RateLimitConfig
	ttl          time.Duration
	sweepEvery   time.Duration
	startCleanup sync.Once
	now          func() time.Time
}

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterPool{
		m:          make(map[string]*limiterEntry),
		cfg:        cfg,
		ttl:        ttl,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// evictIdle drops entries last seen before now-ttl and returns how many remain.
func (p *limiterPool) evictIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.ttl)
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	return len(p.m)
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(p.sweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		p.evictIdle()
	}
}

// RateLimit rejects clients that exceed cfg with 429. It keys on
// r.RemoteAddr, so it belongs after chi's RealIP.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limiters := newLimiterPool(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.Allow(clientIP(r)) {
				if cfg.OnReject != nil {
					cfg.OnReject()
				}
				w.Header().Set("Retry-After", "1")
				utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
