package apikey

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apikey-gateway/middleware/apikey/application"
	"apikey-gateway/middleware/apikey/domain"

	"go.uber.org/zap"
)

// Authorizer é o que o middleware precisa do gate (application.Gate implementa).
type Authorizer interface {
	Authorize(ctx context.Context, key domain.Key) (domain.AccountView, error)
}

const (
	HeaderQuotaRemaining = "X-Quota-Remaining"
	HeaderKeyCreatedAt   = "X-Api-Key-Created-At"
)

type Options struct {
	Gate  Authorizer
	Usage domain.UsageRecorder
	KeyFn KeyFunc
	// QueryParam/Header só são usados quando KeyFn é nil.
	QueryParam string
	Header     string
	Logger     *zap.Logger
	// AddQuotaHeaders adiciona X-Quota-Remaining e X-Api-Key-Created-At nas
	// respostas autorizadas (inclusive as que vêm do upstream no modo proxy).
	AddQuotaHeaders bool
}

// Middleware protege next: cada chamada autorizada consome uma unidade da cota.
// Sem Gate configurado, toda chamada é recusada com 500.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Gate == nil {
		opts.Gate = application.Gate{}
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.QueryParam, opts.Header)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			view, err := opts.Gate.Authorize(r.Context(), key)
			if opts.Usage != nil {
				ev := domain.UsageEvent{
					Outcome: domain.OutcomeFor(err),
					Method:  r.Method,
					Route:   routeLabel(r),
					At:      time.Now(),
				}
				if ev.Outcome.Recognized() {
					ev.Key = key
				}
				if rerr := opts.Usage.Record(r.Context(), ev); rerr != nil {
					opts.Logger.Debug("usage record failed", zap.Error(rerr))
				}
			}
			if err != nil {
				respondError(w, opts.Logger, gateStatus(err), err)
				return
			}

			if opts.AddQuotaHeaders {
				w.Header().Set(HeaderQuotaRemaining, strconv.Itoa(view.RequestsLeft))
				w.Header().Set(HeaderKeyCreatedAt, view.CreatedAt.UTC().Format(time.RFC3339))
			}
			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), view)))
		})
	}
}

// routeLabel usa o padrão registrado no ServeMux em vez do path cru: sob um
// subtree como "/api/" o path é livre e explodiria a cardinalidade.
func routeLabel(r *http.Request) string {
	switch p := r.Pattern; {
	case p == "":
		return r.Method
	case strings.Contains(p, " "):
		return p
	default:
		return r.Method + " " + p
	}
}
