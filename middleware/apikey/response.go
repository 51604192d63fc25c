package apikey

import (
	"encoding/json"
	"errors"
	"net/http"

	"apikey-gateway/middleware/apikey/domain"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// gateStatus: tabela do gate (chamadas protegidas).
func gateStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingKey):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidKey):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	default:
		return serverStatus(err)
	}
}

// lookupStatus: tabela de consulta e rotação.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrKeyNotFound), errors.Is(err, domain.ErrOldKeyNotFound):
		return http.StatusNotFound
	default:
		return serverStatus(err)
	}
}

func serverStatus(err error) int {
	if errors.Is(err, domain.ErrExhaustedKeyspace) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingKey):
		return "missing_key"
	case errors.Is(err, domain.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, domain.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, domain.ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, domain.ErrOldKeyNotFound):
		return "old_key_not_found"
	case errors.Is(err, domain.ErrExhaustedKeyspace):
		return "exhausted_keyspace"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

// respondError escreve o erro e loga só o que é falha do servidor; a causa
// interna nunca vai para o corpo da resposta.
func respondError(w http.ResponseWriter, logger *zap.Logger, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err), zap.Int("status", status))
		msg = http.StatusText(status)
		if errors.Is(err, domain.ErrStorageUnavailable) {
			msg = domain.ErrStorageUnavailable.Error()
		}
	}
	writeError(w, status, errorCode(err), msg)
}
