package throttle

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// Limiters nil desliga o throttle.
	Limiters     *Limiters
	KeyFn        KeyFunc
	TrustXFF     bool
	RejectStatus int
	// AddHeaders expõe X-RateLimit-RPS e X-RateLimit-Burst.
	AddHeaders bool
	Logger     *zap.Logger
}

type rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiters == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIP(opts.TrustXFF)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.AddHeaders {
				w.Header().Set("X-RateLimit-RPS", strconv.FormatFloat(opts.Limiters.RPS(), 'f', -1, 64))
				w.Header().Set("X-RateLimit-Burst", strconv.Itoa(opts.Limiters.Burst()))
			}

			client := opts.KeyFn(r)
			ok, wait := opts.Limiters.Allow(client)
			if !ok {
				opts.Logger.Debug("throttled",
					zap.String("client", client),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", wait),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				reject(w, opts.RejectStatus, "rate_limited", "too many requests, slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds arredonda para cima; Retry-After nunca é 0 numa recusa.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func reject(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejection{Error: code, Message: msg})
}
