package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubCounter struct {
	n   int
	err error
}

func (s stubCounter) Count(string) (int, error) { return s.n, s.err }
func (s stubCounter) Name() string              { return "stub" }

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short ascii rounds up to one", "hi", 1},
		{"ascii", "abcdefghijklmnop", 4},
		{"cjk", "你好世界你好", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := e.Count(tt.text)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRegistry_ForPrefersLongestPrefix(t *testing.T) {
	r := &Registry{counters: map[string]Counter{}, fallback: NewEstimator()}
	r.Register("gpt-4", stubCounter{n: 1})
	r.Register("gpt-4o", stubCounter{n: 2})

	n, _ := r.For("gpt-4o-2024-08-06").Count("x")
	assert.Equal(t, 2, n)

	n, _ = r.For("gpt-4-0613").Count("x")
	assert.Equal(t, 1, n)

	assert.Equal(t, "estimator", r.For("gemini-2.0-flash").Name())
}

func TestRegistry_EstimateFallsBack(t *testing.T) {
	r := &Registry{counters: map[string]Counter{}, fallback: NewEstimator()}
	r.Register("broken", stubCounter{err: errors.New("no encoding data")})

	assert.Equal(t, 4, r.Estimate("broken", "abcdefghijklmnop"))
	assert.Equal(t, 4, r.Estimate("unknown", "abcdefghijklmnop"))
}

func TestNewTiktoken_Encoding(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktoken("gpt-4o").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktoken("some-model").Name())
}
