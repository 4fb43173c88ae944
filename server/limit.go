package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type limEntry struct {
	rlim *rate.Limiter
	exp  time.Time
}

// Limiter is a rate limiter keyed by a string.
type Limiter struct {
	r    rate.Limit
	b    int
	life time.Duration
	log  *zap.Logger

	mu        sync.Mutex
	lim       map[string]*limEntry
	lastClean time.Time
}

func newLimiter(r rate.Limit, b int, bucketLife time.Duration, log *zap.Logger) *Limiter {
	return &Limiter{
		r:         r,
		b:         b,
		life:      bucketLife,
		log:       log,
		lim:       make(map[string]*limEntry),
		lastClean: time.Now(),
	}
}

// cleanLocked drops expired buckets, at most once per bucket lifetime.
func (p *Limiter) cleanLocked(now time.Time) {
	if now.Sub(p.lastClean) < p.life {
		return
	}
	p.lastClean = now
	for k, lim := range p.lim {
		if lim.exp.Before(now) {
			delete(p.lim, k)
		}
	}
}

func (p *Limiter) Allow(k string) bool {
	now := time.Now()

	p.mu.Lock()
	p.cleanLocked(now)
	l := p.lim[k]
	if l == nil {
		l = &limEntry{rlim: rate.NewLimiter(p.r, p.b)}
		p.lim[k] = l
	}
	l.exp = now.Add(p.life)
	p.mu.Unlock()

	return l.rlim.AllowN(now, 1)
}

// clientKey identifies the caller, preferring the first X-Forwarded-For hop.
func clientKey(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func (p *Limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		k := clientKey(req)
		if !p.Allow(k) {
			p.log.Debug("server: rate limited", zap.String("client", k))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
