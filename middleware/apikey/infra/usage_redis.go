package infra

import (
	"context"
	"strings"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	"github.com/redis/go-redis/v9"
)

// RedisUsageStore grava contadores de uso do gate em hashes Redis:
//
//	<prefix>:total                  outcome -> n (sem TTL)
//	<prefix>:minute:<YYYYmmddHHMM>  outcome -> n (TTL)
//	<prefix>:route                  "<rota>|<outcome>" -> n (sem TTL)
//	<prefix>:key:<fingerprint>      outcome -> n (opcional, TTL)
//
// A key nunca aparece em claro: o hash por key usa domain.Fingerprint e só é
// criado para keys que o gate reconheceu, então lixo enviado por clientes
// anônimos não cria chaves no Redis.
type RedisUsageStore struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

type RedisUsageOption func(*RedisUsageStore)

func WithUsagePrefix(prefix string) RedisUsageOption {
	return func(s *RedisUsageStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithUsageTTL vale para os hashes por minuto e por key.
func WithUsageTTL(d time.Duration) RedisUsageOption {
	return func(s *RedisUsageStore) { s.ttl = d }
}

// WithUsageBucket aceita "minute" (padrão) ou "none".
func WithUsageBucket(bucket string) RedisUsageOption {
	return func(s *RedisUsageStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

func WithUsageTrackKeys(track bool) RedisUsageOption {
	return func(s *RedisUsageStore) { s.trackKeys = track }
}

func NewRedisUsageStore(rdb *redis.Client, opts ...RedisUsageOption) *RedisUsageStore {
	s := &RedisUsageStore{
		rdb:       rdb,
		prefix:    "apikey:usage",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// counter é um HINCRBY; ttl > 0 acrescenta um EXPIRE na mesma pipeline.
type counter struct {
	hash  string
	field string
	ttl   time.Duration
}

func (s *RedisUsageStore) counters(ev domain.UsageEvent) []counter {
	outcome := string(ev.Outcome)
	out := []counter{{hash: s.prefix + ":total", field: outcome}}

	if s.perMinute {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		out = append(out, counter{
			hash:  s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field: outcome,
			ttl:   s.ttl,
		})
	}
	if ev.Route != "" {
		out = append(out, counter{hash: s.prefix + ":route", field: ev.Route + "|" + outcome})
	}
	if s.trackKeys && ev.Key != "" && ev.Outcome.Recognized() {
		out = append(out, counter{
			hash:  s.prefix + ":key:" + domain.Fingerprint(ev.Key),
			field: outcome,
			ttl:   s.ttl,
		})
	}
	return out
}

func (s *RedisUsageStore) Record(ctx context.Context, ev domain.UsageEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, c := range s.counters(ev) {
		pipe.HIncrBy(ctx, c.hash, c.field, 1)
		if c.ttl > 0 {
			pipe.Expire(ctx, c.hash, c.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
