package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeypairSelfTest(t *testing.T) {
	for _, level := range []SecurityLevel{Lvl2, Lvl5} {
		pub, priv, err := GenerateKeypair(level)
		require.NoError(t, err)
		defer priv.Destroy()

		assert.False(t, pub.KeyID.IsZero())
		sig, err := Sign(priv, []byte("payload"))
		require.NoError(t, err)
		assert.True(t, Verify(pub, []byte("payload"), sig))
		assert.False(t, Verify(pub, []byte("tampered"), sig))
	}
}

func TestDestroyIsIdempotentAndBlocksSigning(t *testing.T) {
	_, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	priv.Destroy()
	priv.Destroy() // must not panic

	_, err = Sign(priv, []byte("after destroy"))
	assert.Error(t, err)
}

func TestWithPrivateKeyAlwaysDestroys(t *testing.T) {
	_, priv, err := GenerateKeypair(Lvl2)
	require.NoError(t, err)

	_ = WithPrivateKey(priv, func(sk *PrivateKey) error {
		return nil
	})

	priv.mu.Lock()
	destroyed := priv.destroyed
	priv.mu.Unlock()
	assert.True(t, destroyed)
}

func TestPublicKeyJSONRoundTrip(t *testing.T) {
	for _, level := range []SecurityLevel{Lvl2, Lvl5} {
		pub, priv, err := GenerateKeypair(level)
		require.NoError(t, err)
		defer priv.Destroy()

		b, err := json.Marshal(pub)
		require.NoError(t, err)

		var decoded PublicKey
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, pub.KeyID, decoded.KeyID)
		assert.Equal(t, pub.Level, decoded.Level)

		sig, err := Sign(priv, []byte("round-trip"))
		require.NoError(t, err)
		assert.True(t, Verify(&decoded, []byte("round-trip"), sig), "unmarshaled public key must still verify signatures made by the original private key")
	}
}
