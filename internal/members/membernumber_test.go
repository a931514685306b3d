package members

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	gen, err := NewNumberGenerator("test-salt")
	require.NoError(t, err)

	num, err := gen.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(num, "SCO-"))
	body := strings.TrimPrefix(num, "SCO-")
	assert.GreaterOrEqual(t, len(body), 6)
	for _, r := range body {
		assert.Contains(t, alphabet, string(r))
	}
}

func TestGenerateUnique(t *testing.T) {
	gen, err := NewNumberGenerator("test-salt")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		num, err := gen.Generate()
		require.NoError(t, err)
		assert.False(t, seen[num], "duplicate member number %s", num)
		seen[num] = true
	}
}
