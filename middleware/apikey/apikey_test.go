package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apikey-gateway/middleware/apikey/application"
	"apikey-gateway/middleware/apikey/domain"
	"apikey-gateway/middleware/apikey/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterGenerator struct{ n atomic.Int64 }

func (g *counterGenerator) Generate() (domain.Key, error) {
	return domain.Key(fmt.Sprintf("%s%010d", domain.DefaultKeyPrefix, g.n.Add(1))), nil
}

type failingStore struct{ *infra.MemoryStore }

func (failingStore) Save(context.Context, domain.Snapshot) error { return errors.New("disk full") }

type testServer struct {
	mux    *http.ServeMux
	ledger *infra.Ledger
	usage  *infra.MemoryUsageStore
}

func newTestServer(t *testing.T, store domain.SnapshotStore) *testServer {
	t.Helper()
	ledger, err := infra.OpenLedger(context.Background(), store)
	require.NoError(t, err)

	lc := application.Lifecycle{Ledger: ledger, Generator: &counterGenerator{}}
	usage := infra.NewMemoryUsageStore(infra.WithTrackKeys(true))

	mux := http.NewServeMux()
	Routes{
		Handler: NewHandler(lc),
		Gate: Middleware(Options{
			Gate:            application.Gate{Ledger: ledger},
			Usage:           usage,
			AddQuotaHeaders: true,
		}),
	}.Register(mux)

	return &testServer{mux: mux, ledger: ledger, usage: usage}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) issue(t *testing.T) string {
	t.Helper()
	w := s.do(http.MethodPost, "/generate-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	return decode[KeyResponse](t, w).APIKey
}

func TestRoutes_EndToEndJourney(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())

	w := s.do(http.MethodPost, "/generate-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	issued := decode[KeyResponse](t, w)
	assert.Equal(t, 100, issued.RequestsLeft)
	assert.True(t, domain.KeyFormat{}.Valid(domain.Key(issued.APIKey)))

	w = s.do(http.MethodGet, "/data?key="+issued.APIKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode[DataResponse](t, w)
	assert.Equal(t, 99, data.RequestsLeft)
	assert.Equal(t, "Aqui estão os dados da API protegida!", data.Message)
	assert.False(t, data.APIKeyCreatedAt.IsZero())
	assert.Equal(t, "99", w.Header().Get("X-Quota-Remaining"))

	w = s.do(http.MethodGet, "/requests-left?key="+issued.APIKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 99, decode[QuotaResponse](t, w).RequestsLeft)

	w = s.do(http.MethodPost, "/reset-key", `{"oldKey":"`+issued.APIKey+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decode[KeyResponse](t, w)
	assert.NotEqual(t, issued.APIKey, rotated.APIKey)
	assert.Equal(t, 100, rotated.RequestsLeft)

	w = s.do(http.MethodGet, "/data?key="+issued.APIKey, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid_key", decode[ErrorResponse](t, w).Error)

	w = s.do(http.MethodGet, "/requests-left?key="+rotated.APIKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, decode[QuotaResponse](t, w).RequestsLeft)
}

func TestMiddleware_ExhaustsQuota(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())
	key := s.issue(t)

	for i := 0; i < domain.DefaultQuota; i++ {
		w := s.do(http.MethodGet, "/data?key="+key, "")
		require.Equal(t, http.StatusOK, w.Code, "call %d", i+1)
	}

	w := s.do(http.MethodGet, "/data?key="+key, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "quota_exhausted", decode[ErrorResponse](t, w).Error)

	w = s.do(http.MethodGet, "/requests-left?key="+key, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[QuotaResponse](t, w).RequestsLeft)

	total := s.usage.Total()
	assert.Equal(t, int64(domain.DefaultQuota), total[domain.OutcomeAllowed])
	assert.Equal(t, int64(1), total[domain.OutcomeExhausted])
}

func TestMiddleware_RejectionStatuses(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())

	w := s.do(http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_key", decode[ErrorResponse](t, w).Error)

	w = s.do(http.MethodGet, "/data?key=4K1R4XXXXXXXXXX", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, 0, s.ledger.Len())
}

func TestMiddleware_KeyFromHeader(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())
	key := s.issue(t)

	r := httptest.NewRequest(http.MethodGet, "/data", nil)
	r.Header.Set(DefaultHeader, key)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 99, decode[DataResponse](t, w).RequestsLeft)
}

func TestMiddleware_ConcurrentCallsNeverOverspend(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())
	key := s.issue(t)

	const callers = 150
	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch s.do(http.MethodGet, "/data?key="+key, "").Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusTooManyRequests:
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(domain.DefaultQuota), ok.Load())
	assert.Equal(t, int64(callers-domain.DefaultQuota), limited.Load())
}

func TestMiddleware_NoGateFailsClosed(t *testing.T) {
	called := false
	h := Middleware(Options{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?key=4K1R4ABCDEFGHIJ", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, called)
}

func TestHandler_StorageFailureReturns500(t *testing.T) {
	s := newTestServer(t, failingStore{infra.NewMemoryStore()})

	w := s.do(http.MethodPost, "/generate-key", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[ErrorResponse](t, w)
	assert.Equal(t, "storage_unavailable", body.Error)
	assert.NotContains(t, body.Message, "disk full")
	assert.Equal(t, 0, s.ledger.Len())
}

func TestHandler_RotateValidation(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"invalid json", `{"oldKey":`, http.StatusBadRequest, "invalid_request"},
		{"empty body", "", http.StatusBadRequest, "invalid_request"},
		{"missing oldKey", `{}`, http.StatusBadRequest, "missing_key"},
		{"unknown key", `{"oldKey":"4K1R4NOPE000000"}`, http.StatusNotFound, "old_key_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/reset-key", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.err, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestHandler_RequestsLeftValidation(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())

	w := s.do(http.MethodGet, "/requests-left", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_key", decode[ErrorResponse](t, w).Error)

	w = s.do(http.MethodGet, "/requests-left?key=4K1R4NOPE000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "key_not_found", decode[ErrorResponse](t, w).Error)
}

func TestRoutes_MethodMismatch(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())

	w := s.do(http.MethodGet, "/generate-key", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 0, s.ledger.Len())
}

func TestRoutes_IssueGuardAndProtected(t *testing.T) {
	ledger, err := infra.OpenLedger(context.Background(), infra.NewMemoryStore())
	require.NoError(t, err)
	lc := application.Lifecycle{Ledger: ledger, Generator: &counterGenerator{}}

	var guarded atomic.Int64
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, ok := AccountFromContext(r.Context())
		assert.True(t, ok)
		w.Header().Set("X-Seen-Left", fmt.Sprint(view.RequestsLeft))
		w.WriteHeader(http.StatusTeapot)
	})

	mux := http.NewServeMux()
	Routes{
		Handler: NewHandler(lc),
		Gate:    Middleware(Options{Gate: application.Gate{Ledger: ledger}}),
		IssueGuard: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				guarded.Add(1)
				next.ServeHTTP(w, r)
			})
		},
		Protected: map[string]http.Handler{"/api/": upstream},
	}.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/generate-key", nil))
	require.Equal(t, http.StatusOK, w.Code)
	key := decode[KeyResponse](t, w).APIKey
	assert.Equal(t, int64(1), guarded.Load())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/things?key="+key, nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "99", w.Header().Get("X-Seen-Left"))
	assert.Empty(t, w.Header().Get("X-Quota-Remaining"))

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/things", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_DataWithoutGate(t *testing.T) {
	h := NewHandler(application.Lifecycle{})
	w := httptest.NewRecorder()
	h.Data(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDefaultKeyFunc_QueryWinsOverHeader(t *testing.T) {
	fn := DefaultKeyFunc("", "")
	r := httptest.NewRequest(http.MethodGet, "/data?key=%20fromquery%20", nil)
	r.Header.Set("X-Api-Key", "fromheader")
	assert.Equal(t, domain.Key("fromquery"), fn(r))

	r = httptest.NewRequest(http.MethodGet, "/data", nil)
	r.Header.Set("X-Api-Key", "fromheader")
	assert.Equal(t, domain.Key("fromheader"), fn(r))

	custom := DefaultKeyFunc("k", "Authorization-Key")
	r = httptest.NewRequest(http.MethodGet, "/data?k=abc", nil)
	assert.Equal(t, domain.Key("abc"), custom(r))
}

func TestHandler_FilePersistenceAcrossRestart(t *testing.T) {
	path := t.TempDir() + "/db.json"

	s := newTestServer(t, infra.NewFileStore(path))
	key := s.issue(t)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/data?key="+key, "").Code)

	restarted := newTestServer(t, infra.NewFileStore(path))
	w := restarted.do(http.MethodGet, "/requests-left?key="+key, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 99, decode[QuotaResponse](t, w).RequestsLeft)
}


func TestMiddleware_UsageTracksOnlyRecognizedKeys(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())
	key := s.issue(t)

	for i := 0; i < 200; i++ {
		w := s.do(http.MethodGet, fmt.Sprintf("/data?key=garbage-%d", i), "")
		require.Equal(t, http.StatusForbidden, w.Code)
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/data?key="+key, "").Code)

	byKey := s.usage.ByKey()
	require.Len(t, byKey, 1)
	assert.Equal(t, int64(1), byKey[domain.Fingerprint(domain.Key(key))][domain.OutcomeAllowed])
	assert.Equal(t, int64(200), s.usage.Total()[domain.OutcomeInvalidKey])
	assert.Equal(t, 1, s.ledger.Len())
}

func TestMiddleware_UsageRoutesUsePattern(t *testing.T) {
	ledger, err := infra.OpenLedger(context.Background(), infra.NewMemoryStore())
	require.NoError(t, err)
	lc := application.Lifecycle{Ledger: ledger, Generator: &counterGenerator{}}
	usage := infra.NewMemoryUsageStore()

	mux := http.NewServeMux()
	Routes{
		Handler: NewHandler(lc),
		Gate:    Middleware(Options{Gate: application.Gate{Ledger: ledger}, Usage: usage}),
		Protected: map[string]http.Handler{
			"/api/": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		},
	}.Register(mux)

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/things/%d", i), nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	routes := usage.ByRoute()
	assert.Len(t, routes, 2)
	assert.Equal(t, int64(20), routes["GET /api/"][domain.OutcomeMissingKey])
	assert.Equal(t, int64(1), routes["GET /data"][domain.OutcomeMissingKey])
}

func TestMiddleware_ExposesCreatedAtHeader(t *testing.T) {
	s := newTestServer(t, infra.NewMemoryStore())
	key := s.issue(t)

	w := s.do(http.MethodGet, "/data?key="+key, "")
	require.Equal(t, http.StatusOK, w.Code)

	created, err := time.Parse(time.RFC3339, w.Header().Get(HeaderKeyCreatedAt))
	require.NoError(t, err)
	data := decode[DataResponse](t, w)
	assert.WithinDuration(t, data.APIKeyCreatedAt, created, time.Second)
}
