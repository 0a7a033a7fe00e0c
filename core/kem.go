package core

import (
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
)

// Encapsulate runs Kyber768 encapsulation against peerPK, returning the
// ciphertext to send and the shared secret to feed into DeriveSessionKey.
// Used by message 2 of the Unified Handshake Protocol (spec.md §4.2).
func Encapsulate(peerPK *PublicKey) (ciphertext, sharedSecret []byte, err error) {
	scheme := kyber768.Scheme()
	kpk, ok := peerPK.KemPK.(*kyber768.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("core: peer kem key is not kyber768")
	}
	ct, ss, err := scheme.Encapsulate(kpk)
	if err != nil {
		return nil, nil, fmt.Errorf("core: kem encapsulate: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret on the receiving side of message 2.
func Decapsulate(sk *PrivateKey, ciphertext []byte) ([]byte, error) {
	scheme := kyber768.Scheme()
	ksk, ok := sk.KemSK.(*kyber768.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("core: key is not kyber768")
	}
	ss, err := scheme.Decapsulate(ksk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("core: kem decapsulate: %w", err)
	}
	return ss, nil
}
