package uuidtok

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUUIDsAreUnique(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestParsePreservesToken(t *testing.T) {
	u, err := Parse("abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", u.String())
}

func TestZeroValueIsZero(t *testing.T) {
	var u UUID
	assert.True(t, u.IsZero())
}
