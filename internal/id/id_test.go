package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUniqueAndValid(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.True(t, Valid(a))
	assert.Len(t, a, 36)
}

func TestValidRejectsGarbage(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("job-1"))
}
