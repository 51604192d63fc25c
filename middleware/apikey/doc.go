// Package apikey fornece os adapters HTTP (net/http) para emissão de API keys e
// para o controle de cota por key.
//
// Visão geral (camadas):
//
//   - domain: tipos, erros e contratos (sem net/http)
//   - application: casos de uso (Gate.Authorize, Lifecycle.Issue/Rotate/Peek)
//   - infra: gerador de keys, persistência do snapshot, Ledger, estatísticas
//   - apikey (este pacote): handlers, middleware do gate, extração da key e
//     tradução de erros para status/JSON
//
// Fluxo de uma chamada protegida:
//
//  1. Extrai a key (?key= ou header X-Api-Key)
//  2. Gate.Authorize checa e decrementa a cota de forma atômica
//  3. Se negado, responde 401/403/429 (ou 500 se a persistência falhar)
//  4. Se permitido, anexa a conta ao contexto e chama o próximo handler
package apikey
