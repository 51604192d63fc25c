package infra

import (
	"crypto/rand"
	"fmt"
	"io"

	"apikey-gateway/middleware/apikey/domain"
)

// maior múltiplo de len(KeyAlphabet) que cabe num byte; bytes >= isso são
// descartados para a escolha continuar uniforme.
const alphabetCutoff = 256 - 256%len(domain.KeyAlphabet)

type RandomGenerator struct {
	prefix string
	src    io.Reader
}

type GeneratorOption func(*RandomGenerator)

// WithRandSource troca a fonte de aleatoriedade (testes).
func WithRandSource(r io.Reader) GeneratorOption {
	return func(g *RandomGenerator) { g.src = r }
}

func NewRandomGenerator(prefix string, opts ...GeneratorOption) *RandomGenerator {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	g := &RandomGenerator{prefix: prefix, src: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RandomGenerator) Prefix() string { return g.prefix }

// Generate implementa domain.KeyGenerator.
func (g *RandomGenerator) Generate() (domain.Key, error) {
	want := len(g.prefix) + domain.KeyBodyLength
	out := make([]byte, 0, want)
	out = append(out, g.prefix...)

	buf := make([]byte, domain.KeyBodyLength*2)
	for len(out) < want {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= alphabetCutoff {
				continue
			}
			out = append(out, domain.KeyAlphabet[int(b)%len(domain.KeyAlphabet)])
			if len(out) == want {
				break
			}
		}
	}
	return domain.Key(out), nil
}
