package infra

import (
	"context"
	"sync"

	"apikey-gateway/middleware/apikey/domain"
)

// OutcomeCounts conta eventos por resultado.
type OutcomeCounts map[domain.Outcome]int64

func (c OutcomeCounts) clone() OutcomeCounts {
	out := make(OutcomeCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryUsageStore é uma implementação simples em memória, sem expiração.
// Por key só entram keys que o gate reconheceu, indexadas por
// domain.Fingerprint; o mapa fica limitado ao número de contas já emitidas.
type MemoryUsageStore struct {
	mu      sync.Mutex
	total   OutcomeCounts
	byRoute map[string]OutcomeCounts
	byKey   map[string]OutcomeCounts

	trackKeys bool
}

type MemoryUsageOption func(*MemoryUsageStore)

func WithTrackKeys(track bool) MemoryUsageOption {
	return func(s *MemoryUsageStore) { s.trackKeys = track }
}

func NewMemoryUsageStore(opts ...MemoryUsageOption) *MemoryUsageStore {
	s := &MemoryUsageStore{
		total:   OutcomeCounts{},
		byRoute: make(map[string]OutcomeCounts),
		byKey:   make(map[string]OutcomeCounts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryUsageStore) Record(_ context.Context, ev domain.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	if ev.Route != "" {
		bump(s.byRoute, ev.Route, ev.Outcome)
	}
	if s.trackKeys && ev.Key != "" && ev.Outcome.Recognized() {
		bump(s.byKey, domain.Fingerprint(ev.Key), ev.Outcome)
	}
	return nil
}

func bump[K comparable](m map[K]OutcomeCounts, k K, o domain.Outcome) {
	c, ok := m[k]
	if !ok {
		c = OutcomeCounts{}
		m[k] = c
	}
	c[o]++
}

func (s *MemoryUsageStore) Total() OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryUsageStore) ByRoute() map[string]OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OutcomeCounts, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v.clone()
	}
	return out
}

// ByKey devolve os contadores indexados por domain.Fingerprint da key.
func (s *MemoryUsageStore) ByKey() map[string]OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OutcomeCounts, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v.clone()
	}
	return out
}
