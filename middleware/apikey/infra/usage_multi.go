package infra

import (
	"context"
	"errors"

	"apikey-gateway/middleware/apikey/domain"
)

// MultiUsage repassa cada evento para todos os recorders; os erros são agregados.
type MultiUsage []domain.UsageRecorder

func (m MultiUsage) Record(ctx context.Context, ev domain.UsageEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
