// Package throttle protege rotas baratas de abusar (emissão e rotação de keys)
// com um token bucket por IP de cliente e um teto de requisições simultâneas.
//
// Não tem relação com a cota das API keys: a cota é contada por key e
// persistida; o throttle é por IP, fica só em memória e some num restart.
//
// Variáveis do binário (cmd/gateway): ISSUE_RPS, ISSUE_BURST, TRUST_XFF,
// CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package throttle
