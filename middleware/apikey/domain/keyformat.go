package domain

import "strings"

const (
	DefaultKeyPrefix = "4K1R4"
	KeyBodyLength    = 10
	KeyAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// KeyFormat descreve o formato <Prefix><KeyBodyLength chars de KeyAlphabet>.
type KeyFormat struct {
	Prefix string
}

func (f KeyFormat) prefix() string {
	if f.Prefix == "" {
		return DefaultKeyPrefix
	}
	return f.Prefix
}

// Valid informa se k tem o formato de uma key emitida por este formato.
func (f KeyFormat) Valid(k Key) bool {
	p := f.prefix()
	s := string(k)
	if len(s) != len(p)+KeyBodyLength || !strings.HasPrefix(s, p) {
		return false
	}
	for _, c := range s[len(p):] {
		if !strings.ContainsRune(KeyAlphabet, c) {
			return false
		}
	}
	return true
}

// Mask esconde o corpo da key para logs.
func Mask(k Key) string {
	s := string(k)
	if len(s) <= KeyBodyLength {
		return strings.Repeat("*", len(s))
	}
	return s[:len(s)-KeyBodyLength] + strings.Repeat("*", KeyBodyLength)
}
