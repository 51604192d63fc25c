package throttle

import (
	"context"
	"net/http"
	"time"
)

type semaphore chan struct{}

func (s semaphore) acquire(ctx context.Context) (func(), bool) {
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	case <-ctx.Done():
		return nil, false
	}
}

type ConcurrencyOptions struct {
	Max          int
	RejectStatus int
	// AcquireTimeout <= 0 espera até o cliente desistir.
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita quantas requisições rodam ao mesmo tempo.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	sem := make(semaphore, opts.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if opts.AcquireTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.AcquireTimeout)
				defer cancel()
			}

			release, ok := sem.acquire(ctx)
			if !ok {
				reject(w, opts.RejectStatus, "overloaded", "server busy, try again")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
