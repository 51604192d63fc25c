package apikey

import (
	"net/http"
	"strings"

	"apikey-gateway/middleware/apikey/domain"
)

const (
	DefaultQueryParam = "key"
	DefaultHeader     = "X-Api-Key"
)

type KeyFunc func(r *http.Request) domain.Key

// DefaultKeyFunc lê a key da query string e, se vazia, do header.
// Parâmetros vazios usam "key" e "X-Api-Key".
func DefaultKeyFunc(queryParam, header string) KeyFunc {
	if queryParam == "" {
		queryParam = DefaultQueryParam
	}
	if header == "" {
		header = DefaultHeader
	}
	return func(r *http.Request) domain.Key {
		if v := strings.TrimSpace(r.URL.Query().Get(queryParam)); v != "" {
			return domain.Key(v)
		}
		return domain.Key(strings.TrimSpace(r.Header.Get(header)))
	}
}
