package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"apikey-gateway/middleware/accesslog"
	"apikey-gateway/middleware/apikey"
	"apikey-gateway/middleware/apikey/application"
	"apikey-gateway/middleware/apikey/domain"
	"apikey-gateway/middleware/apikey/infra"
	"apikey-gateway/middleware/throttle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// app é o gateway montado: handler pronto e o que precisa ser fechado no fim.
type app struct {
	handler  http.Handler
	ledger   *infra.Ledger
	limiters *throttle.Limiters
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg config, logger *zap.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var rdb *redis.Client
	if cfg.redisAddr != "" && (cfg.storeBackend == backendRedis || cfg.usageStatsRedis) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	store, err := openStore(cfg, rdb, a)
	if err != nil {
		return nil, err
	}
	var breaker *infra.BreakerStore
	if cfg.breakerFailures > 0 {
		breaker = infra.NewBreakerStore(store, infra.BreakerConfig{
			Name:        cfg.storeBackend,
			MaxFailures: uint32(cfg.breakerFailures),
			OpenTimeout: cfg.breakerTimeout,
			Logger:      logger,
		})
		store = breaker
	}

	a.ledger, err = infra.OpenLedger(ctx, store,
		infra.WithLedgerLogger(logger),
		infra.WithKeyFormat(domain.KeyFormat{Prefix: cfg.keyPrefix}),
	)
	if err != nil {
		return nil, err
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	usage := infra.MultiUsage{infra.NewPrometheusUsage(reg, "")}
	infra.RegisterAccountsGauge(reg, "", a.ledger.Len)
	if cfg.usageStatsRedis {
		usage = append(usage, infra.NewRedisUsageStore(rdb,
			infra.WithUsagePrefix(cfg.usageStatsPrefix),
			infra.WithUsageTTL(cfg.usageStatsTTL),
			infra.WithUsageBucket(cfg.usageStatsBucket),
			infra.WithUsageTrackKeys(cfg.usageStatsTrackKeys),
		))
	}

	lifecycle := application.Lifecycle{
		Ledger:       a.ledger,
		Generator:    infra.NewRandomGenerator(cfg.keyPrefix),
		InitialQuota: cfg.initialQuota,
	}
	gate := apikey.Middleware(apikey.Options{
		Gate:            application.Gate{Ledger: a.ledger},
		Usage:           usage,
		Logger:          logger,
		AddQuotaHeaders: true,
	})

	routes := apikey.Routes{
		Handler:   apikey.NewHandler(lifecycle, apikey.WithLogger(logger)),
		Gate:      gate,
		Protected: map[string]http.Handler{},
	}
	if cfg.issueRPS > 0 {
		a.limiters = throttle.NewLimiters(cfg.issueRPS, cfg.issueBurst)
		a.limiters.StartJanitor(ctx)
		routes.IssueGuard = throttle.Middleware(throttle.Options{
			Limiters:   a.limiters,
			TrustXFF:   cfg.trustXFF,
			AddHeaders: true,
			Logger:     logger,
		})
	}
	if cfg.upstreamURL != "" {
		target, err := url.Parse(cfg.upstreamURL)
		if err != nil {
			return nil, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
		}
		routes.Protected["/api/"] = newUpstreamProxy(target, logger)
	}

	mux := http.NewServeMux()
	routes.Register(mux)
	mux.Handle("GET /healthz", healthHandler(a.ledger, breaker))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if cfg.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.staticDir)))
	}

	h := http.Handler(mux)
	h = throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = accesslog.Middleware(accesslog.Options{
		Logger:    logger,
		SkipPaths: []string{"/healthz", "/metrics"},
	})(h)
	a.handler = accesslog.RequestID(h)
	return a, nil
}

func openStore(cfg config, rdb *redis.Client, a *app) (domain.SnapshotStore, error) {
	switch cfg.storeBackend {
	case backendRedis:
		return infra.NewRedisStore(rdb, infra.WithSnapshotKey(cfg.redisKey)), nil
	case backendSQLite:
		s, err := infra.NewSQLiteStore(cfg.sqlitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case backendMemory:
		return infra.NewMemoryStore(), nil
	default:
		return infra.NewFileStore(cfg.storePath), nil
	}
}

// newUpstreamProxy repassa chamadas já autorizadas. A API key não segue para o upstream.
func newUpstreamProxy(target *url.URL, logger *zap.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			q := pr.Out.URL.Query()
			q.Del(apikey.DefaultQueryParam)
			pr.Out.URL.RawQuery = q.Encode()
			pr.Out.Header.Del(apikey.DefaultHeader)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("proxy error", zap.Error(err), zap.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(apikey.ErrorResponse{Error: "bad_gateway", Message: "upstream unavailable"})
		},
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Accounts int    `json:"accounts"`
	Store    string `json:"store,omitempty"`
}

// healthHandler responde 503 enquanto o circuito do store estiver aberto.
func healthHandler(ledger *infra.Ledger, breaker *infra.BreakerStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Accounts: ledger.Len()}
		status := http.StatusOK
		if breaker != nil {
			state := breaker.State()
			resp.Store = state.String()
			if state == gobreaker.StateOpen {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
