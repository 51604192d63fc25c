package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters guarda um token bucket por cliente e descarta os inativos.
type Limiters struct {
	mu           sync.Mutex
	entries      map[string]*entry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LimitersOption func(*Limiters)

func WithIdleTTL(d time.Duration) LimitersOption {
	return func(l *Limiters) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LimitersOption {
	return func(l *Limiters) { l.cleanupEvery = d }
}

func withClock(now func() time.Time) LimitersOption {
	return func(l *Limiters) { l.now = now }
}

func NewLimiters(rps float64, burst int, opts ...LimitersOption) *Limiters {
	if burst < 1 {
		burst = 1
	}
	l := &Limiters{
		entries:      make(map[string]*entry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiters) RPS() float64 { return float64(l.rps) }
func (l *Limiters) Burst() int   { return l.burst }

// Allow consome um token de key. Quando nega, devolve quanto esperar até o
// próximo token; a reserva é cancelada para não punir o cliente duas vezes.
func (l *Limiters) Allow(key string) (bool, time.Duration) {
	now := l.now()
	lim := l.get(key, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

func (l *Limiters) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &entry{lim: lim, lastSeen: now}
	return lim
}

// Len conta os clientes em memória.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiters) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor roda Cleanup periodicamente até ctx encerrar.
func (l *Limiters) StartJanitor(ctx context.Context) {
	if l.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
