package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchZipPattern(t *testing.T) {
	tests := []struct {
		pattern string
		zip     string
		want    bool
	}{
		{"*", "90210", true},
		{"*", "", true},
		{"90210", "90210", true},
		{"90210", "90211", false},
		{"900*", "90012", true},
		{"900*", "90112", false},
		{"900*", "900", true},
		{"9*", "94110", true},
		{"SW1A*", "SW1A 1AA", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, MatchZipPattern(tc.pattern, tc.zip),
			"pattern %q against %q", tc.pattern, tc.zip)
	}
}

func TestZipPatterns_Matches(t *testing.T) {
	patterns := ZipPatterns{"90210", "941*"}

	assert.True(t, patterns.Matches("90210"))
	assert.True(t, patterns.Matches("94110"))
	assert.False(t, patterns.Matches("10001"))
	assert.False(t, ZipPatterns{}.Matches("90210"), "no patterns means no match at the pattern level")
}

func TestZipPatterns_ScanRoundTrip(t *testing.T) {
	var z ZipPatterns
	require.NoError(t, z.Scan("90210, 941*,  *"))
	assert.Equal(t, ZipPatterns{"90210", "941*", "*"}, z)

	val, err := z.Value()
	require.NoError(t, err)
	assert.Equal(t, "90210,941*,*", val)
}

func TestZipPatterns_ScanEmptyAndNil(t *testing.T) {
	var z ZipPatterns
	require.NoError(t, z.Scan(""))
	assert.Nil(t, z)

	require.NoError(t, z.Scan(nil))
	assert.Nil(t, z)
}
