package domain

import "errors"

var (
	// ErrMissingKey: o chamador não enviou nenhuma key.
	ErrMissingKey = errors.New("api key is required")
	// ErrInvalidKey: a key não existe (ou nem tem o formato de uma key emitida).
	ErrInvalidKey = errors.New("invalid api key")
	// ErrKeyNotFound é a variante de consulta (peek) de ErrInvalidKey.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrQuotaExhausted: key reconhecida, mas sem requisições restantes.
	ErrQuotaExhausted = errors.New("request quota exhausted for this api key")
	// ErrOldKeyNotFound: a key a ser rotacionada não existe.
	ErrOldKeyNotFound = errors.New("old api key not found")
	// ErrExhaustedKeyspace: o gerador só produziu colisões até o limite de tentativas.
	ErrExhaustedKeyspace = errors.New("could not generate an unused api key")
	// ErrStorageUnavailable embrulha falhas de I/O da persistência.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
