package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Outcome é o resultado de uma tentativa de uso de key no gate.
type Outcome string

const (
	OutcomeAllowed     Outcome = "allowed"
	OutcomeMissingKey  Outcome = "missing_key"
	OutcomeInvalidKey  Outcome = "invalid_key"
	OutcomeExhausted   Outcome = "quota_exhausted"
	OutcomeStorageFail Outcome = "storage_error"
)

// Outcomes lista todos os resultados possíveis (útil para pré-criar séries de métricas).
var Outcomes = []Outcome{OutcomeAllowed, OutcomeMissingKey, OutcomeInvalidKey, OutcomeExhausted, OutcomeStorageFail}

// UsageEvent representa uma decisão do gate.
//
// Key só vem preenchida quando o gate reconheceu a key (ver Recognized); Route é
// o padrão do ServeMux que casou, não o path cru, para a cardinalidade ficar
// limitada pelas rotas registradas.
type UsageEvent struct {
	Key     Key
	Outcome Outcome

	Method string
	Route  string

	At time.Time
}

// Recognized diz se o outcome implica uma key existente no store.
func (o Outcome) Recognized() bool {
	return o == OutcomeAllowed || o == OutcomeExhausted
}

// Fingerprint identifica uma key em estatísticas sem expor o valor: os
// primeiros 8 bytes do sha256, em hex.
func Fingerprint(k Key) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

// UsageRecorder persiste estatísticas de uso. É best-effort: erro aqui nunca
// derruba a requisição.
type UsageRecorder interface {
	Record(ctx context.Context, ev UsageEvent) error
}

// OutcomeFor classifica o erro devolvido pelo gate.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAllowed
	case errors.Is(err, ErrMissingKey):
		return OutcomeMissingKey
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrKeyNotFound):
		return OutcomeInvalidKey
	case errors.Is(err, ErrQuotaExhausted):
		return OutcomeExhausted
	default:
		return OutcomeStorageFail
	}
}
