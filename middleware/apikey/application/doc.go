// Package application contém os casos de uso de API keys: emissão, rotação,
// consulta de cota (Lifecycle) e a checagem+decremento de cota por chamada (Gate).
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Toda mutação passa por domain.Ledger, que serializa leitura-checagem-escrita.
package application
