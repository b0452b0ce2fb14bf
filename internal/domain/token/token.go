// Package token generates user credentials.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Length is the number of characters in a token.
	Length = 24

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// Bytes at or above this value would bias the modulo and are discarded.
	maxUnbiased = 256 - (256 % len(alphabet))
)

// Generator draws tokens from a random source.
type Generator struct {
	src io.Reader
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSource replaces crypto/rand as the entropy source.
func WithSource(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.src = r
		}
	}
}

// NewGenerator creates a Generator reading from crypto/rand by default.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{src: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New returns a fresh alphanumeric token of Length characters.
func (g *Generator) New() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}
