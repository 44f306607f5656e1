package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomTokens_Unique(t *testing.T) {
	gen := RandomTokens{}
	const iterations = 1000

	seen := make(map[uint64]bool, iterations)
	for i := 0; i < iterations; i++ {
		tok := gen.Generate()
		require.NotZero(t, tok)
		require.False(t, seen[tok], "token %d generated twice", tok)
		seen[tok] = true
	}
}

func TestRandomTokens_Concurrent(t *testing.T) {
	gen := RandomTokens{}
	const goroutines = 50

	tokens := make(chan uint64, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens <- gen.Generate()
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[uint64]bool)
	for tok := range tokens {
		seen[tok] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedTokens_Sequential(t *testing.T) {
	gen := NewFixedTokens(1, 2, 3)

	assert.Equal(t, uint64(1), gen.Generate())
	assert.Equal(t, uint64(2), gen.Generate())
	assert.Equal(t, uint64(3), gen.Generate())
	assert.Panics(t, func() { gen.Generate() }, "should panic when all tokens exhausted")
}

func TestFixedTokens_Empty(t *testing.T) {
	assert.Panics(t, func() { NewFixedTokens().Generate() })
}
