// Package domain define os tipos e contratos do ciclo de vida de API keys e da cota
// de requisições por key.
//
// Este pacote não depende de net/http nem de implementações concretas de
// persistência. As camadas application e infra dependem dele, nunca o contrário.
package domain
