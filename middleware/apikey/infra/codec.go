package infra

import (
	"encoding/json"
	"fmt"

	"apikey-gateway/middleware/apikey/domain"
)

// snapshotDoc é o layout persistido: {"keys": {"<key>": {"createdAt": ..., "requestsLeft": ...}}}.
// Campos desconhecidos são ignorados na leitura.
type snapshotDoc struct {
	Keys map[domain.Key]domain.Account `json:"keys"`
}

func encodeSnapshot(s domain.Snapshot) ([]byte, error) {
	doc := snapshotDoc{Keys: make(map[domain.Key]domain.Account, len(s))}
	for k, acc := range s {
		acc.CreatedAt = acc.CreatedAt.UTC()
		doc.Keys[k] = acc
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeSnapshot(b []byte) (domain.Snapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out := make(domain.Snapshot, len(doc.Keys))
	for k, acc := range doc.Keys {
		acc.Key = k
		out[k] = acc
	}
	return out, nil
}
