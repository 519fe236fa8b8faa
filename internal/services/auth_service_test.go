package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("correct horse battery")
	assert.NoError(t, err)
	assert.Contains(t, hash, "$")

	assert.True(t, verifyPassword("correct horse battery", hash))
	assert.False(t, verifyPassword("wrong password", hash))
	assert.False(t, verifyPassword("correct horse battery", "not-a-valid-hash"))

	// Fresh salt each time.
	hash2, err := hashPassword("correct horse battery")
	assert.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestGeneratePaymentHandle(t *testing.T) {
	handle := generatePaymentHandle("jane@campus.edu")
	assert.True(t, strings.HasPrefix(handle, "jane"))
	assert.True(t, strings.HasSuffix(handle, ".campus"))

	// Local part only, no domain leakage.
	assert.NotContains(t, handle, "@")
	assert.NotContains(t, handle, "edu")
}
