package engine

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// TokenGenerator produces login tokens for new registrations.
// Implemented by RandomTokens (production) and FixedTokens (tests).
type TokenGenerator interface {
	Generate() uint64
}

// RandomTokens draws 64-bit tokens from crypto/rand.
//
// Thread-safety: RandomTokens is stateless and safe for concurrent use.
type RandomTokens struct{}

// Generate returns a uniformly random non-zero token. crypto/rand.Read
// never returns an error on supported platforms; a failure panics.
func (RandomTokens) Generate() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("engine: crypto/rand: " + err.Error())
		}
		if tok := binary.BigEndian.Uint64(buf[:]); tok != 0 {
			return tok
		}
	}
}

// FixedTokens returns predetermined tokens for testing.
//
// Thread-safety: FixedTokens is safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []uint64
	idx    int
}

// NewFixedTokens creates a generator that returns tokens in order.
func NewFixedTokens(tokens ...uint64) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next predetermined token. Panics when exhausted so a
// test creating more registrations than expected fails fast.
func (g *FixedTokens) Generate() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedTokens: all tokens exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
