package application

import (
	"context"

	"apikey-gateway/middleware/apikey/domain"
)

// Gate valida a key de uma chamada protegida e consome uma unidade da cota.
type Gate struct {
	Ledger domain.Ledger
}

// Authorize checa e decrementa dentro de um único Ledger.Update: duas chamadas
// concorrentes para a mesma key nunca observam o mesmo valor antes do decremento.
func (g Gate) Authorize(ctx context.Context, key domain.Key) (domain.AccountView, error) {
	if key == "" {
		return domain.AccountView{}, domain.ErrMissingKey
	}
	if g.Ledger == nil {
		return domain.AccountView{}, domain.ErrStorageUnavailable
	}

	var view domain.AccountView
	err := g.Ledger.Update(ctx, func(s domain.Snapshot) error {
		acc, ok := s[key]
		if !ok {
			return domain.ErrInvalidKey
		}
		if acc.RequestsLeft <= 0 {
			return domain.ErrQuotaExhausted
		}
		acc.RequestsLeft--
		s[key] = acc
		view = acc.View()
		return nil
	})
	if err != nil {
		return domain.AccountView{}, err
	}
	return view, nil
}
