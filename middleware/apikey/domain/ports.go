package domain

import "context"

// SnapshotStore é a persistência do mapa inteiro de contas.
//
// Load inicializa (e persiste) um mapa vazio quando ainda não há estado salvo.
// Save sobrescreve o estado inteiro; nunca é um patch/append.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// KeyGenerator produz keys candidatas. A unicidade é checada por quem chama.
type KeyGenerator interface {
	Generate() (Key, error)
}

// Ledger é a fronteira de serialização sobre o snapshot.
//
// Update executa fn sobre uma cópia mutável e persiste a cópia antes de torná-la
// visível. Se fn retornar erro, nada é gravado. Todas as chamadas (View e Update)
// são serializadas entre si.
type Ledger interface {
	View(ctx context.Context, fn func(Snapshot) error) error
	Update(ctx context.Context, fn func(Snapshot) error) error
}
