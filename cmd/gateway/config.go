package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr      string
	shutdownTimeout time.Duration

	storeBackend  string
	storePath     string
	sqlitePath    string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisKey      string

	keyPrefix    string
	initialQuota int

	upstreamURL string
	staticDir   string

	issueRPS           float64
	issueBurst         int
	trustXFF           bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	usageStatsRedis     bool
	usageStatsPrefix    string
	usageStatsTTL       time.Duration
	usageStatsBucket    string
	usageStatsTrackKeys bool

	breakerFailures int
	breakerTimeout  time.Duration

	logLevel  string
	logFormat string
}

const (
	backendFile   = "file"
	backendRedis  = "redis"
	backendSQLite = "sqlite"
	backendMemory = "memory"
)

// env resolve uma chave de configuração. Variáveis de ambiente sempre vencem
// os valores do CONFIG_FILE.
type env struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func (e env) get(k string) string {
	if v, ok := e.lookup(k); ok && v != "" {
		return v
	}
	return e.file[k]
}

// loadConfig lê o .env (se existir), depois o CONFIG_FILE (se definido) e por fim o ambiente.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	e := env{lookup: os.LookupEnv}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if e.file, err = parseConfigFile(b); err != nil {
			return config{}, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
		}
	}
	return readConfig(e)
}

// parseConfigFile aceita um mapa YAML plano com as mesmas chaves das variáveis
// de ambiente (LISTEN_ADDR: ":8080", INITIAL_QUOTA: 100, ...).
func parseConfigFile(b []byte) (map[string]string, error) {
	m := map[string]string{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out, nil
}

func readConfig(e env) (config, error) {
	cfg := config{}
	cfg.listenAddr = e.getDefault("LISTEN_ADDR", ":8080")
	cfg.shutdownTimeout = e.getDurationDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.storeBackend = strings.ToLower(e.getDefault("STORE_BACKEND", backendFile))
	cfg.storePath = e.getDefault("STORE_PATH", "db.json")
	cfg.sqlitePath = e.getDefault("SQLITE_PATH", "apikeys.db")
	cfg.redisAddr = e.get("REDIS_ADDR")
	cfg.redisPassword = e.get("REDIS_PASSWORD")
	cfg.redisDB = e.getIntDefault("REDIS_DB", 0)
	cfg.redisKey = e.getDefault("REDIS_KEY", "apikeys:snapshot")

	cfg.keyPrefix = e.getDefault("KEY_PREFIX", domain.DefaultKeyPrefix)
	cfg.initialQuota = e.getIntDefault("INITIAL_QUOTA", domain.DefaultQuota)

	cfg.upstreamURL = e.get("UPSTREAM_URL")
	cfg.staticDir = e.get("STATIC_DIR")

	// ISSUE_RPS=0 desliga o throttle de emissão.
	cfg.issueRPS = e.getFloatDefault("ISSUE_RPS", 1)
	cfg.issueBurst = e.getIntDefault("ISSUE_BURST", 5)
	cfg.trustXFF = e.getBoolDefault("TRUST_XFF", false)
	cfg.concurrencyMax = e.getIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = e.getDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.usageStatsRedis = e.getBoolDefault("USAGE_STATS_REDIS", false)
	cfg.usageStatsPrefix = e.getDefault("USAGE_STATS_PREFIX", "apikey:usage")
	cfg.usageStatsTTL = e.getDurationDefault("USAGE_STATS_TTL", 24*time.Hour)
	cfg.usageStatsBucket = e.getDefault("USAGE_STATS_BUCKET", "minute")
	cfg.usageStatsTrackKeys = e.getBoolDefault("USAGE_STATS_TRACK_KEYS", false)

	// BREAKER_FAILURES=0 desliga o circuit breaker do store.
	cfg.breakerFailures = e.getIntDefault("BREAKER_FAILURES", 5)
	cfg.breakerTimeout = e.getDurationDefault("BREAKER_TIMEOUT", 30*time.Second)

	cfg.logLevel = strings.ToLower(e.getDefault("LOG_LEVEL", "info"))
	cfg.logFormat = strings.ToLower(e.getDefault("LOG_FORMAT", "json"))

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	switch cfg.storeBackend {
	case backendFile, backendRedis, backendSQLite, backendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of file|redis|sqlite|memory, got %q", cfg.storeBackend)
	}
	if (cfg.storeBackend == backendRedis || cfg.usageStatsRedis) && strings.TrimSpace(cfg.redisAddr) == "" {
		return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis or USAGE_STATS_REDIS=true")
	}
	if cfg.keyPrefix == "" || strings.Trim(cfg.keyPrefix, domain.KeyAlphabet) != "" {
		return fmt.Errorf("KEY_PREFIX must be non-empty and use only %s", domain.KeyAlphabet)
	}
	if cfg.initialQuota <= 0 {
		return errors.New("INITIAL_QUOTA must be > 0")
	}
	if cfg.upstreamURL != "" {
		u, err := url.Parse(cfg.upstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid UPSTREAM_URL %q", cfg.upstreamURL)
		}
	}
	if cfg.issueRPS < 0 {
		return errors.New("ISSUE_RPS must be >= 0")
	}
	if cfg.issueBurst <= 0 {
		return errors.New("ISSUE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.breakerFailures < 0 {
		return errors.New("BREAKER_FAILURES must be >= 0")
	}
	if _, err := zapcore.ParseLevel(cfg.logLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.logFormat != "json" && cfg.logFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.logFormat)
	}
	return nil
}

func (e env) getDefault(k, def string) string {
	if v := e.get(k); v != "" {
		return v
	}
	return def
}

func (e env) getIntDefault(k string, def int) int {
	v := e.get(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (e env) getFloatDefault(k string, def float64) float64 {
	v := e.get(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (e env) getBoolDefault(k string, def bool) bool {
	v := e.get(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (e env) getDurationDefault(k string, def time.Duration) time.Duration {
	v := e.get(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
