package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/veilhq/veil/internal/config"
)

const (
	limiterIdleTimeout  = time.Hour
	limiterCleanupEvery = 30 * time.Minute
)

// clientLimiter applies a per-client token bucket keyed by IP address.
type clientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rps      rate.Limit
	burst    int
	stopOnce sync.Once
	stop     chan struct{}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		stop:    make(chan struct{}),
	}
}

// Allow reports whether the client identified by ip may proceed.
func (l *clientLimiter) Allow(ip string) bool {
	l.mu.Lock()
	bucket, ok := l.clients[ip]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = bucket
	}
	bucket.lastSeen = time.Now()
	l.mu.Unlock()

	return bucket.limiter.Allow()
}

// StartCleanupRoutine evicts buckets for clients idle longer than an
// hour so the map does not grow without bound.
func (l *clientLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(limiterCleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-l.stop:
				return
			}
		}
	}()
}

func (l *clientLimiter) cleanup() {
	cutoff := time.Now().Add(-limiterIdleTimeout)
	l.mu.Lock()
	for ip, bucket := range l.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
	l.mu.Unlock()
}

// Stop terminates the cleanup routine.
func (l *clientLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
