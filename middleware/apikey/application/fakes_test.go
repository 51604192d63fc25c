package application

import (
	"context"
	"fmt"
	"sync"

	"apikey-gateway/middleware/apikey/domain"
)

type fakeLedger struct {
	mu      sync.Mutex
	snap    domain.Snapshot
	saveErr error
	saves   int
}

func newFakeLedger(accounts ...domain.Account) *fakeLedger {
	l := &fakeLedger{snap: domain.Snapshot{}}
	for _, a := range accounts {
		l.snap[a.Key] = a
	}
	return l
}

func (l *fakeLedger) View(_ context.Context, fn func(domain.Snapshot) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.snap)
}

func (l *fakeLedger) Update(_ context.Context, fn func(domain.Snapshot) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	work := l.snap.Clone()
	if err := fn(work); err != nil {
		return err
	}
	if l.saveErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, l.saveErr)
	}
	l.saves++
	l.snap = work
	return nil
}

func (l *fakeLedger) get(k domain.Key) (domain.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.snap[k]
	return a, ok
}

func (l *fakeLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snap)
}

// seqGenerator devolve as keys em ordem, repetindo a última quando acaba.
type seqGenerator struct {
	mu    sync.Mutex
	keys  []domain.Key
	calls int
}

func (g *seqGenerator) Generate() (domain.Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.keys) {
		i = len(g.keys) - 1
	}
	g.calls++
	return g.keys[i], nil
}

// counterGenerator gera keys sequenciais válidas: 4K1R40000000001, 4K1R40000000002, ...
type counterGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *counterGenerator) Generate() (domain.Key, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return domain.Key(fmt.Sprintf("%s%010d", domain.DefaultKeyPrefix, g.n)), nil
}
