package domain

import "time"

// DefaultQuota é a cota inicial de cada key emitida ou rotacionada.
const DefaultQuota = 100

type Key string

// Account é o registro associado a uma key.
//
// RequestsLeft nunca fica negativo: só é decrementado quando > 0.
type Account struct {
	Key          Key       `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	RequestsLeft int       `json:"requestsLeft"`
}

// View devolve a parte do registro exposta ao chamador.
func (a Account) View() AccountView {
	return AccountView{
		Key:          a.Key,
		CreatedAt:    a.CreatedAt,
		RequestsLeft: a.RequestsLeft,
	}
}

type AccountView struct {
	Key          Key
	CreatedAt    time.Time
	RequestsLeft int
}

// Snapshot é o estado completo (key -> conta) num instante.
type Snapshot map[Key]Account

// Clone copia o mapa. Account é um valor, então a cópia é independente.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Snapshot) Has(k Key) bool {
	_, ok := s[k]
	return ok
}
