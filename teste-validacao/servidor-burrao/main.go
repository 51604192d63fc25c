// servidor-burrao é um upstream de teste para o modo proxy do gateway
// (UPSTREAM_URL=http://localhost:8081). Ecoa o que recebeu, o que permite
// conferir que a API key não chega ao upstream.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type echo struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query"`
	APIKeyHeader  string `json:"apiKeyHeader"`
	ForwardedFor  string `json:"forwardedFor"`
	ForwardedHost string `json:"forwardedHost"`
}

func main() {
	http.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			APIKeyHeader:  r.Header.Get("X-Api-Key"),
			ForwardedFor:  r.Header.Get("X-Forwarded-For"),
			ForwardedHost: r.Header.Get("X-Forwarded-Host"),
		})
		fmt.Println("Log: upstream recebeu", r.Method, r.URL.Path)
	})
	fmt.Println("Servidor rodando em http://localhost:8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
