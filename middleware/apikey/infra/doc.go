// Package infra contém as implementações concretas dos contratos do pacote domain.
//
//   - RandomGenerator: keys <prefixo><10 chars [A-Z0-9]> via crypto/rand
//   - FileStore, RedisStore, SQLiteStore, MemoryStore: persistência do snapshot inteiro
//   - BreakerStore: circuit breaker (gobreaker) na frente de qualquer SnapshotStore
//   - Ledger: mapa em memória protegido por mutex, com flush imediato a cada Update
//   - MemoryUsageStore, RedisUsageStore, PrometheusUsage: estatísticas de uso do gate
package infra
