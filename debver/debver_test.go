package debver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	testCases := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{
			name:     "equal versions",
			a:        "2.9.4+dfsg1-2",
			b:        "2.9.4+dfsg1-2",
			expected: Equal,
		},
		{
			name:     "older revision",
			a:        "2.9.4+dfsg1-1",
			b:        "2.9.4+dfsg1-2",
			expected: Less,
		},
		{
			name:     "newer revision",
			a:        "2.9.4+dfsg1-8",
			b:        "2.9.4+dfsg1-2",
			expected: Greater,
		},
		{
			name:     "upstream version wins over revision",
			a:        "1.2.0-9",
			b:        "1.10.0-1",
			expected: Less,
		},
		{
			name:     "epoch beats upstream version",
			a:        "1:1.0-1",
			b:        "2.0-1",
			expected: Greater,
		},
		{
			name:     "implicit zero epoch",
			a:        "0:1.0-1",
			b:        "1.0-1",
			expected: Equal,
		},
		{
			name:     "tilde sorts before release",
			a:        "1.0~rc1-1",
			b:        "1.0-1",
			expected: Less,
		},
		{
			name:     "tilde sorts before empty",
			a:        "1.0~",
			b:        "1.0",
			expected: Less,
		},
		{
			name:     "digit runs compare numerically",
			a:        "1.0a",
			b:        "1.01",
			expected: Less,
		},
		{
			name:     "letter suffix is newer than none",
			a:        "1.0a",
			b:        "1.0",
			expected: Greater,
		},
		{
			name:     "missing revision is older",
			a:        "1.0",
			b:        "1.0-1",
			expected: Less,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)

			// The ordering is antisymmetric.
			flipped, err := Compare(tc.b, tc.a)
			require.NoError(t, err)
			assert.Equal(t, -tc.expected, flipped)
		})
	}
}

func TestCompare_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "empty left operand",
			a:    "",
			b:    "1.0-1",
		},
		{
			name: "empty right operand",
			a:    "1.0-1",
			b:    "",
		},
		{
			name: "upstream version must start with a digit",
			a:    "not.a.version",
			b:    "1.0-1",
		},
		{
			name: "non numeric epoch",
			a:    "a:1.0-1",
			b:    "1.0-1",
		},
		{
			name: "forbidden character",
			a:    "1.0 beta",
			b:    "1.0-1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compare(tc.a, tc.b)
			assert.ErrorIs(t, err, ErrMalformedVersion)
		})
	}
}
