package apikey

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Accounts é o que os handlers precisam do ciclo de vida (application.Lifecycle implementa).
type Accounts interface {
	Issue(ctx context.Context) (domain.Account, error)
	Rotate(ctx context.Context, oldKey domain.Key) (domain.Account, error)
	Peek(ctx context.Context, key domain.Key) (domain.AccountView, error)
}

type KeyResponse struct {
	APIKey       string `json:"apiKey"`
	RequestsLeft int    `json:"requestsLeft"`
}

type QuotaResponse struct {
	RequestsLeft int `json:"requestsLeft"`
}

type RotateRequest struct {
	OldKey string `json:"oldKey"`
}

type DataResponse struct {
	Message         string    `json:"message"`
	RequestsLeft    int       `json:"requestsLeft"`
	APIKeyCreatedAt time.Time `json:"apiKeyCreatedAt"`
}

type Handler struct {
	accounts Accounts
	keyFn    KeyFunc
	logger   *zap.Logger
}

type HandlerOption func(*Handler)

func WithKeyFunc(fn KeyFunc) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.keyFn = fn
		}
	}
}

func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(accounts Accounts, opts ...HandlerOption) *Handler {
	h := &Handler{
		accounts: accounts,
		keyFn:    DefaultKeyFunc("", ""),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IssueKey trata POST /generate-key.
func (h *Handler) IssueKey(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Issue(r.Context())
	if err != nil {
		respondError(w, h.logger, serverStatus(err), err)
		return
	}
	h.logger.Info("api key issued", zap.String("key", domain.Mask(acc.Key)))
	writeJSON(w, http.StatusOK, KeyResponse{APIKey: string(acc.Key), RequestsLeft: acc.RequestsLeft})
}

// RotateKey trata POST /reset-key com corpo {"oldKey": "..."}.
func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	var req RotateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with oldKey")
		return
	}

	oldKey := domain.Key(strings.TrimSpace(req.OldKey))
	acc, err := h.accounts.Rotate(r.Context(), oldKey)
	if err != nil {
		respondError(w, h.logger, lookupStatus(err), err)
		return
	}
	h.logger.Info("api key rotated",
		zap.String("old_key", domain.Mask(oldKey)),
		zap.String("key", domain.Mask(acc.Key)),
	)
	writeJSON(w, http.StatusOK, KeyResponse{APIKey: string(acc.Key), RequestsLeft: acc.RequestsLeft})
}

// RequestsLeft trata GET /requests-left (?key= ou X-Api-Key). Não consome cota.
func (h *Handler) RequestsLeft(w http.ResponseWriter, r *http.Request) {
	view, err := h.accounts.Peek(r.Context(), h.keyFn(r))
	if err != nil {
		respondError(w, h.logger, lookupStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, QuotaResponse{RequestsLeft: view.RequestsLeft})
}

// Data é o payload de exemplo da rota protegida; precisa estar atrás do Middleware.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	view, ok := AccountFromContext(r.Context())
	if !ok {
		h.logger.Error("protected handler reached without gate")
		writeError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{
		Message:         "Aqui estão os dados da API protegida!",
		RequestsLeft:    view.RequestsLeft,
		APIKeyCreatedAt: view.CreatedAt,
	})
}
