package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncapsulateDecapsulateSharedSecretMatches(t *testing.T) {
	pub, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ct, ssSender, err := Encapsulate(pub)
	require.NoError(t, err)

	ssReceiver, err := Decapsulate(priv, ct)
	require.NoError(t, err)

	assert.Equal(t, ssSender, ssReceiver)
}

func TestDecapsulateRejectsTamperedCiphertext(t *testing.T) {
	pub, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	ct, honestSS, err := Encapsulate(pub)
	require.NoError(t, err)
	ct[0] ^= 0xFF

	// Kyber's IND-CCA2 transform returns an (implicitly rejected) pseudorandom
	// secret rather than an error on a tampered ciphertext; the contract this
	// test pins down is that the recovered secret diverges from the honest
	// one rather than silently matching it.
	tamperedSS, err := Decapsulate(priv, ct)
	require.NoError(t, err)
	assert.NotEqual(t, honestSS, tamperedSS)
}
