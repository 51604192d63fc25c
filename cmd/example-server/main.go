package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apikey-gateway/middleware/apikey"
	"apikey-gateway/middleware/apikey/application"
	"apikey-gateway/middleware/apikey/domain"
	"apikey-gateway/middleware/apikey/infra"
	"apikey-gateway/middleware/throttle"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := newHandler(ctx)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// newHandler monta o gate de API keys direto num webserver (sem proxy), com o
// snapshot só em memória. Sem proxy na frente, o IP vem do RemoteAddr: confiar
// no X-Forwarded-For deixaria qualquer cliente escapar do throttle.
func newHandler(ctx context.Context) (http.Handler, error) {
	ledger, err := infra.OpenLedger(ctx, infra.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	lifecycle := application.Lifecycle{
		Ledger:       ledger,
		Generator:    infra.NewRandomGenerator(domain.DefaultKeyPrefix),
		InitialQuota: 10,
	}

	limiters := throttle.NewLimiters(1, 3)
	limiters.StartJanitor(ctx)

	hello := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, _ := apikey.AccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok, " + domain.Mask(acc.Key) + "\n"))
	})

	mux := http.NewServeMux()
	apikey.Routes{
		Handler:    apikey.NewHandler(lifecycle),
		Gate:       apikey.Middleware(apikey.Options{Gate: application.Gate{Ledger: ledger}, AddQuotaHeaders: true}),
		IssueGuard: throttle.Middleware(throttle.Options{Limiters: limiters}),
		Protected:  map[string]http.Handler{"GET /hello": hello},
	}.Register(mux)

	return throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{Max: 50})(mux), nil
}
