package apikey

import "net/http"

// Routes liga os handlers num ServeMux.
type Routes struct {
	Handler *Handler
	// Gate protege /data e as rotas em Protected.
	Gate func(http.Handler) http.Handler
	// IssueGuard envolve emissão e rotação (ex.: throttle por IP). Opcional.
	IssueGuard func(http.Handler) http.Handler
	// Protected são handlers extras atrás do gate, por padrão do ServeMux (ex.: "/api/").
	Protected map[string]http.Handler
}

func (rt Routes) Register(mux *http.ServeMux) {
	guard := rt.IssueGuard
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	gate := rt.Gate
	if gate == nil {
		gate = Middleware(Options{})
	}

	mux.Handle("POST /generate-key", guard(http.HandlerFunc(rt.Handler.IssueKey)))
	mux.Handle("POST /reset-key", guard(http.HandlerFunc(rt.Handler.RotateKey)))
	mux.HandleFunc("GET /requests-left", rt.Handler.RequestsLeft)
	mux.Handle("GET /data", gate(http.HandlerFunc(rt.Handler.Data)))

	for pattern, h := range rt.Protected {
		mux.Handle(pattern, gate(h))
	}
}
