package apikey

import (
	"context"

	"apikey-gateway/middleware/apikey/domain"
)

type accountCtxKey struct{}

func withAccount(ctx context.Context, v domain.AccountView) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, v)
}

// AccountFromContext devolve a conta autorizada pelo gate, se houver.
func AccountFromContext(ctx context.Context) (domain.AccountView, bool) {
	v, ok := ctx.Value(accountCtxKey{}).(domain.AccountView)
	return v, ok
}
