package relational

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCipherRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := NewCredentialCipher(key)
	require.NoError(t, err)

	sealed, err := c.seal([]byte(`{"access_key_id":"AKIA...","secret_access_key":"shh"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "shh")

	opened, err := c.open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"access_key_id":"AKIA...","secret_access_key":"shh"}`, string(opened))
}

func TestCredentialCipherRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	c, err := NewCredentialCipher(key)
	require.NoError(t, err)

	sealed, err := c.seal([]byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.open(sealed)
	assert.Error(t, err)
}

func TestCredentialCipherRejectsShortCiphertext(t *testing.T) {
	key := make([]byte, 32)
	c, err := NewCredentialCipher(key)
	require.NoError(t, err)

	_, err = c.open([]byte("too-short"))
	assert.Error(t, err)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	require.NotNil(t, nullIfEmpty("x"))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}
