package accesslog

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const redacted = "REDACTED"

type Options struct {
	Logger *zap.Logger
	// SecretParams são parâmetros de query mascarados no log (padrão: "key").
	SecretParams []string
	// SecretHeaders são headers cuja presença é logada sem o valor (padrão: "X-Api-Key").
	SecretHeaders []string
	// SkipPaths não são logados (ex.: /healthz, /metrics).
	SkipPaths []string
}

type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap deixa http.ResponseController achar Flush no writer original (reverse proxy).
func (r *recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SecretParams == nil {
		opts.SecretParams = []string{"key"}
	}
	if opts.SecretHeaders == nil {
		opts.SecretHeaders = []string{"X-Api-Key"}
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			}
			if q := redactQuery(r.URL.Query(), opts.SecretParams); q != "" {
				fields = append(fields, zap.String("query", q))
			}
			for _, h := range opts.SecretHeaders {
				if r.Header.Get(h) != "" {
					fields = append(fields, zap.String("header_"+h, redacted))
				}
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				opts.Logger.Warn("request", fields...)
			default:
				opts.Logger.Info("request", fields...)
			}
		})
	}
}

func redactQuery(q url.Values, secrets []string) string {
	if len(q) == 0 {
		return ""
	}
	for _, name := range secrets {
		if _, ok := q[name]; ok {
			q.Set(name, redacted)
		}
	}
	return q.Encode()
}
