package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	"go.uber.org/zap"
)

// Ledger mantém o snapshot em memória atrás de um único mutex e grava no
// SnapshotStore a cada Update, antes de publicar a nova versão.
//
// Se o Save falhar, o estado em memória continua o anterior e o erro volta
// embrulhado em domain.ErrStorageUnavailable. O Save não herda o cancelamento
// da requisição: um cliente que desconecta no meio da gravação não pode deixar
// o backend com um snapshot que a memória descartou. O limite é saveTimeout.
type Ledger struct {
	mu          sync.Mutex
	store       domain.SnapshotStore
	snap        domain.Snapshot
	format      domain.KeyFormat
	saveTimeout time.Duration
	logger      *zap.Logger
}

// DefaultSaveTimeout limita cada gravação do snapshot.
const DefaultSaveTimeout = 5 * time.Second

type LedgerOption func(*Ledger)

func WithLedgerLogger(l *zap.Logger) LedgerOption {
	return func(s *Ledger) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeyFormat define o formato usado para sinalizar keys malformadas no load.
func WithKeyFormat(f domain.KeyFormat) LedgerOption {
	return func(s *Ledger) { s.format = f }
}

// WithSaveTimeout limita cada Save; <= 0 mantém DefaultSaveTimeout.
func WithSaveTimeout(d time.Duration) LedgerOption {
	return func(s *Ledger) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// OpenLedger carrega o snapshot atual do store (inicializando-o se preciso).
func OpenLedger(ctx context.Context, store domain.SnapshotStore, opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{store: store, saveTimeout: DefaultSaveTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshot: %v", domain.ErrStorageUnavailable, err)
	}
	l.snap = l.normalize(snap)
	l.logger.Info("api key snapshot loaded", zap.Int("accounts", len(l.snap)))
	return l, nil
}

func (l *Ledger) normalize(snap domain.Snapshot) domain.Snapshot {
	if snap == nil {
		return domain.Snapshot{}
	}
	malformed := 0
	for k, acc := range snap {
		acc.Key = k
		if acc.RequestsLeft < 0 {
			l.logger.Warn("negative quota found on load, clamping to zero",
				zap.String("key", domain.Mask(k)),
				zap.Int("requests_left", acc.RequestsLeft),
			)
			acc.RequestsLeft = 0
		}
		if !l.format.Valid(k) {
			malformed++
		}
		snap[k] = acc
	}
	if malformed > 0 {
		l.logger.Warn("snapshot contains keys outside the configured format", zap.Int("count", malformed))
	}
	return snap
}

// View executa fn com o snapshot atual. fn não pode modificar o mapa.
func (l *Ledger) View(ctx context.Context, fn func(domain.Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.snap)
}

// Update executa fn sobre uma cópia, persiste a cópia e só então a publica.
// Erro de fn aborta sem gravar nada. ctx só é consultado antes de fn; depois
// disso a gravação vai até o fim (ou até saveTimeout).
func (l *Ledger) Update(ctx context.Context, fn func(domain.Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// pode ter desistido enquanto esperava o lock
	if err := ctx.Err(); err != nil {
		return err
	}

	work := l.snap.Clone()
	if err := fn(work); err != nil {
		return err
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.saveTimeout)
	defer cancel()
	if err := l.store.Save(saveCtx, work); err != nil {
		l.logger.Error("snapshot save failed", zap.Error(err), zap.Int("accounts", len(work)))
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	l.snap = work
	return nil
}

// Len retorna o número de contas vivas.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snap)
}
