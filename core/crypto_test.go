package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aad := []byte("frame-header")
	box, err := Seal(key, []byte("secret payload"), aad)
	require.NoError(t, err)

	pt, err := Open(key, box, aad)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(pt))
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	box, err := Seal(key, []byte("secret"), nil)
	require.NoError(t, err)

	box.Ciphertext[0] ^= 0xFF
	_, err = Open(key, box, nil)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key := make([]byte, 32)
	box, err := Seal(key, []byte("secret"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = Open(key, box, []byte("aad-b"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDeriveSessionKeyDeterministicAndBoundToTranscript(t *testing.T) {
	shared := []byte("shared-secret-material")
	transcript := HashBlake3([]byte("hello"), []byte("response"), []byte("finish"))

	k1, err := DeriveSessionKey(shared, transcript, "UHP-v1")
	require.NoError(t, err)
	k2, err := DeriveSessionKey(shared, transcript, "UHP-v1")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	otherTranscript := HashBlake3([]byte("different"))
	k3, err := DeriveSessionKey(shared, otherTranscript, "UHP-v1")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "session key must change if the transcript it is bound to changes")
}
