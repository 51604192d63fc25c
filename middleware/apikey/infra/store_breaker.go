package infra

import (
	"context"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerStore coloca um circuit breaker na frente de outro SnapshotStore.
//
// Com o circuito aberto, Load/Save falham na hora com gobreaker.ErrOpenState em
// vez de esperar timeouts do backend (ex.: Redis fora do ar).
type BreakerStore struct {
	inner  domain.SnapshotStore
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

type BreakerConfig struct {
	Name string
	// MaxFailures falhas consecutivas abrem o circuito.
	MaxFailures uint32
	// OpenTimeout é quanto tempo o circuito fica aberto antes de meio-aberto.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

func NewBreakerStore(inner domain.SnapshotStore, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "snapshot-store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &BreakerStore{inner: inner, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("snapshot store circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

func (s *BreakerStore) Load(ctx context.Context) (domain.Snapshot, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(domain.Snapshot), nil
}

func (s *BreakerStore) Save(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Save(ctx, snap)
	})
	return err
}
