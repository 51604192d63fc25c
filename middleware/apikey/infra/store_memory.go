package infra

import (
	"context"
	"sync"

	"apikey-gateway/middleware/apikey/domain"
)

// MemoryStore guarda o snapshot só em memória. Útil para testes e desenvolvimento;
// o estado some quando o processo termina.
type MemoryStore struct {
	mu    sync.Mutex
	snap  domain.Snapshot
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		s.snap = domain.Snapshot{}
		s.saves++
	}
	return s.snap.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap.Clone()
	s.saves++
	return nil
}

// Saves conta quantas vezes o snapshot foi gravado (incluindo a inicialização).
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
