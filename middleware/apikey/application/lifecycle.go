package application

import (
	"context"
	"time"

	"apikey-gateway/middleware/apikey/domain"
)

// DefaultMaxAttempts limita as tentativas de gerar uma key livre.
const DefaultMaxAttempts = 1000

// Lifecycle concentra emissão, rotação e consulta de contas.
//
// Campos zerados assumem os padrões (cota 100, 1000 tentativas, time.Now).
type Lifecycle struct {
	Ledger       domain.Ledger
	Generator    domain.KeyGenerator
	InitialQuota int
	MaxAttempts  int
	Now          func() time.Time
}

func (l Lifecycle) withDefaults() Lifecycle {
	if l.InitialQuota <= 0 {
		l.InitialQuota = domain.DefaultQuota
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = DefaultMaxAttempts
	}
	if l.Now == nil {
		l.Now = time.Now
	}
	return l
}

// Issue cria uma conta nova com a cota cheia.
func (l Lifecycle) Issue(ctx context.Context) (domain.Account, error) {
	if l.Ledger == nil || l.Generator == nil {
		return domain.Account{}, domain.ErrStorageUnavailable
	}
	l = l.withDefaults()

	var acc domain.Account
	err := l.Ledger.Update(ctx, func(s domain.Snapshot) error {
		var err error
		acc, err = l.mint(s, "")
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

// Rotate invalida oldKey e emite uma key nova com a cota cheia, numa única
// gravação. Sem período de carência: oldKey deixa de valer na hora.
func (l Lifecycle) Rotate(ctx context.Context, oldKey domain.Key) (domain.Account, error) {
	if oldKey == "" {
		return domain.Account{}, domain.ErrMissingKey
	}
	if l.Ledger == nil || l.Generator == nil {
		return domain.Account{}, domain.ErrStorageUnavailable
	}
	l = l.withDefaults()

	var acc domain.Account
	err := l.Ledger.Update(ctx, func(s domain.Snapshot) error {
		if !s.Has(oldKey) {
			return domain.ErrOldKeyNotFound
		}
		delete(s, oldKey)

		var err error
		acc, err = l.mint(s, oldKey)
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

// Peek lê a cota restante sem efeitos colaterais.
func (l Lifecycle) Peek(ctx context.Context, key domain.Key) (domain.AccountView, error) {
	if key == "" {
		return domain.AccountView{}, domain.ErrMissingKey
	}
	if l.Ledger == nil {
		return domain.AccountView{}, domain.ErrStorageUnavailable
	}

	var view domain.AccountView
	err := l.Ledger.View(ctx, func(s domain.Snapshot) error {
		acc, ok := s[key]
		if !ok {
			return domain.ErrKeyNotFound
		}
		view = acc.View()
		return nil
	})
	if err != nil {
		return domain.AccountView{}, err
	}
	return view, nil
}

// mint gera uma key ainda não usada e a insere em s. Roda dentro do Update,
// então a checagem de unicidade e a inserção acontecem sob o mesmo lock.
// exclude impede que a rotação devolva a própria key antiga.
func (l Lifecycle) mint(s domain.Snapshot, exclude domain.Key) (domain.Account, error) {
	for i := 0; i < l.MaxAttempts; i++ {
		k, err := l.Generator.Generate()
		if err != nil {
			return domain.Account{}, err
		}
		if k == exclude || s.Has(k) {
			continue
		}
		acc := domain.Account{
			Key:          k,
			CreatedAt:    l.Now().UTC(),
			RequestsLeft: l.InitialQuota,
		}
		s[k] = acc
		return acc, nil
	}
	return domain.Account{}, domain.ErrExhaustedKeyspace
}
