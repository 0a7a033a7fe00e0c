package core

import (
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// SignatureAlgo identifies which scheme produced a Signature, so Verify can
// dispatch without the caller tracking key levels out of band.
type SignatureAlgo uint8

const (
	AlgoDilithium2 SignatureAlgo = iota
	AlgoDilithium5
	AlgoEd25519Legacy
)

// Signature is an opaque, algorithm-tagged signature blob.
type Signature struct {
	Algo  SignatureAlgo
	Bytes []byte
}

// Sign produces a lattice signature over msg using sk's level. It is the
// lone path by which a Signature is minted for a non-legacy key, keeping
// the algorithm tag and key level always in sync.
func Sign(sk *PrivateKey, msg []byte) (Signature, error) {
	sk.mu.Lock()
	destroyed := sk.destroyed
	sk.mu.Unlock()
	if destroyed {
		return Signature{}, fmt.Errorf("core: sign with destroyed key")
	}

	var algo SignatureAlgo
	var sig []byte
	switch sk.Level {
	case Lvl5:
		algo = AlgoDilithium5
		sig = make([]byte, mode5.SignatureSize)
		mode5.SignTo(sk.LatticeSK.(*mode5.PrivateKey), msg, sig)
	default:
		algo = AlgoDilithium2
		sig = make([]byte, mode2.SignatureSize)
		mode2.SignTo(sk.LatticeSK.(*mode2.PrivateKey), msg, sig)
	}
	return Signature{Algo: algo, Bytes: sig}, nil
}

// Verify checks sig against msg using pk. It never panics on malformed
// signature bytes — a length or type mismatch is simply a failed
// verification, matching spec.md §7's closed error taxonomy (verification
// failure is a bool/error outcome, not a crash).
func Verify(pk *PublicKey, msg []byte, sig Signature) bool {
	switch sig.Algo {
	case AlgoDilithium5:
		lpk, ok := pk.LatticePK.(*mode5.PublicKey)
		if !ok || len(sig.Bytes) != mode5.SignatureSize {
			return false
		}
		return mode5.Verify(lpk, msg, sig.Bytes)
	case AlgoDilithium2:
		lpk, ok := pk.LatticePK.(*mode2.PublicKey)
		if !ok || len(sig.Bytes) != mode2.SignatureSize {
			return false
		}
		return mode2.Verify(lpk, msg, sig.Bytes)
	default:
		return false
	}
}

// SignLegacy signs with a classical Ed25519 key, for interop with peers
// still on the pre-migration identity scheme.
func SignLegacy(lk *Ed25519LegacyKey, msg []byte) Signature {
	return Signature{Algo: AlgoEd25519Legacy, Bytes: signEd25519(lk, msg)}
}

// VerifyLegacy checks an Ed25519 legacy signature.
func VerifyLegacy(lk *Ed25519LegacyKey, msg []byte, sig Signature) bool {
	if sig.Algo != AlgoEd25519Legacy {
		return false
	}
	return verifyEd25519(lk.Public, msg, sig.Bytes)
}
