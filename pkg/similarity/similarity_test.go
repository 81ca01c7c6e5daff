package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "identical strings",
			a:        "The sky is blue today.",
			b:        "The sky is blue today.",
			expected: 1.0,
		},
		{
			name:     "punctuation only difference",
			a:        "The sky is blue today.",
			b:        "The sky is blue today!!",
			expected: 1.0,
		},
		{
			name:     "case only difference",
			a:        "The Sky Is Blue",
			b:        "the sky is blue",
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        "quantum computing",
			b:        "medieval agriculture",
			expected: 0.0,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "one empty",
			a:        "something",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "punctuation only text treated as empty",
			a:        "...!!!",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "half overlap",
			a:        "alpha beta",
			b:        "alpha gamma",
			expected: 1.0 / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Score(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScoreSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"The bridge collapsed in 1940 due to aeroelastic flutter.", "The bridge collapsed in 1940."},
		{"alpha beta gamma", "beta gamma delta"},
		{"", "non-empty text"},
	}

	for _, p := range pairs {
		assert.Equal(t, Score(p[0], p[1]), Score(p[1], p[0]))
	}
}

func TestScoreDeterministic(t *testing.T) {
	a := "Solar capacity doubled between 2020 and 2023."
	b := "Solar capacity roughly doubled from 2020 to 2023."

	first := Score(a, b)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Score(a, b))
	}
}

func TestScoreRange(t *testing.T) {
	texts := []string{
		"The sky is blue today.",
		"Revenue grew 12% year over year.",
		"",
		"a",
		"a b c d e f g",
	}

	for _, a := range texts {
		for _, b := range texts {
			s := Score(a, b)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "strips punctuation",
			text:     "The sky, is blue!",
			expected: []string{"the", "sky", "is", "blue"},
		},
		{
			name:     "keeps stop words",
			text:     "it is a fact",
			expected: []string{"it", "is", "a", "fact"},
		},
		{
			name:     "keeps digits",
			text:     "collapsed in 1940",
			expected: []string{"collapsed", "in", "1940"},
		},
		{
			name:     "empty",
			text:     "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.expected, Tokenize(tt.text))
		})
	}
}
