package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := []byte("client-secret")
	sealed, err := Seal([]byte(`{"token":"abc"}`), key)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "token", "sealed value must not leak plaintext")

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc"}`, string(opened))
}

func TestSealIsNonDeterministic(t *testing.T) {
	key := []byte("client-secret")
	a, err := Seal([]byte("same input"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("same input"), key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "every seal uses a fresh nonce")
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := Seal([]byte("secret data"), []byte("key-one"))
	require.NoError(t, err)

	_, err = Open(sealed, []byte("key-two"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	key := []byte("client-secret")
	sealed, err := Seal([]byte("secret data"), key)
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-5] ^= 1
	_, err = Open(string(tampered), key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Open("not base64 at all!!!", key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Open("", key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
