package core

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// SecurityLevel selects which lattice parameter set backs a keypair. The
// platform carries two, matching spec.md §2's "two security levels": Lvl2 is
// the everyday signer (smaller, faster — mesh handshakes, transaction
// signing) and Lvl5 is reserved for validator identities and long-lived
// trust anchors.
type SecurityLevel uint8

const (
	Lvl2 SecurityLevel = iota
	Lvl5
)

func (l SecurityLevel) scheme() sign.Scheme {
	if l == Lvl5 {
		return mode5.Scheme()
	}
	return mode2.Scheme()
}

// PublicKey is the composite public identity used across the mesh: a
// lattice-based signature verification key plus a KEM encapsulation key.
// key_id binds the two together so a peer can't be impersonated by mixing a
// stolen signature key with a different KEM key (spec.md §3).
type PublicKey struct {
	Level     SecurityLevel
	LatticePK sign.PublicKey
	KemPK     kem.PublicKey
	KeyID     Hash
}

// PrivateKey is the composite secret half of a keypair. MasterSeed is 64
// bytes of random entropy drawn at generation; the lattice and KEM keys are
// generated independently and are not derived from it. Destroy zeroizes
// MasterSeed; see Destroy for what it does to the lattice and KEM secrets.
type PrivateKey struct {
	Level      SecurityLevel
	LatticeSK  sign.PrivateKey
	KemSK      kem.PrivateKey
	MasterSeed [64]byte

	mu        sync.Mutex
	destroyed bool
}

// publicKeyWire is PublicKey's on-the-wire/on-disk form: the lattice and
// KEM keys don't implement json.Marshaler themselves (they're circl
// interface types backed by unexported struct fields), so persistence
// layers like PeerRegistry need this explicit binary encoding instead.
type publicKeyWire struct {
	Level     SecurityLevel
	LatticePK []byte
	KemPK     []byte
	KeyID     Hash
}

// MarshalJSON encodes the lattice and KEM keys via their MarshalBinary
// form so PublicKey round-trips through goleveldb-backed stores.
func (pk *PublicKey) MarshalJSON() ([]byte, error) {
	lpkBytes, err := pk.LatticePK.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("core: marshal lattice public key: %w", err)
	}
	kemBytes, err := pk.KemPK.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("core: marshal kem public key: %w", err)
	}
	return json.Marshal(publicKeyWire{Level: pk.Level, LatticePK: lpkBytes, KemPK: kemBytes, KeyID: pk.KeyID})
}

// UnmarshalJSON reconstructs the lattice and KEM keys from their binary
// encoding, selecting the lattice scheme by the encoded security level.
func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var wire publicKeyWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	lpk, err := wire.Level.scheme().UnmarshalBinaryPublicKey(wire.LatticePK)
	if err != nil {
		return fmt.Errorf("core: unmarshal lattice public key: %w", err)
	}
	kemPK, err := kyber768.Scheme().UnmarshalBinaryPublicKey(wire.KemPK)
	if err != nil {
		return fmt.Errorf("core: unmarshal kem public key: %w", err)
	}
	pk.Level = wire.Level
	pk.LatticePK = lpk
	pk.KemPK = kemPK
	pk.KeyID = wire.KeyID
	return nil
}

// ErrWeakKey is returned by key construction when secret material is all
// zero — a coding-error or fault-injection signal, never a valid key.
var ErrWeakKey = fmt.Errorf("core: weak key (all-zero secret material)")

// ErrInvalidKeyLength is returned when raw key bytes don't match the scheme's
// expected sizes.
var ErrInvalidKeyLength = fmt.Errorf("core: invalid key length")

// GenerateKeypair creates a fresh lattice signing key and KEM key bound
// together by key_id = Blake3(lattice_pk ‖ kem_pk), then runs the mandatory
// sign-verify self-test (spec.md §3 invariant). It fails closed: any
// all-zero secret material, or a self-test failure, discards the key and
// returns an error rather than a usable-looking but broken keypair.
func GenerateKeypair(level SecurityLevel) (*PublicKey, *PrivateKey, error) {
	scheme := level.scheme()
	lpk, lsk, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("core: lattice keygen: %w", err)
	}

	kemPK, kemSK, err := kyber768.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("core: kem keygen: %w", err)
	}

	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, nil, fmt.Errorf("core: seed: %w", err)
	}
	if allZero(seed[:]) {
		return nil, nil, ErrWeakKey
	}

	lpkBytes, _ := lpk.MarshalBinary()
	kemPKBytes, _ := kemPK.MarshalBinary()
	keyID := HashBlake3(lpkBytes, kemPKBytes)

	pub := &PublicKey{Level: level, LatticePK: lpk, KemPK: kemPK, KeyID: keyID}
	priv := &PrivateKey{Level: level, LatticeSK: lsk, KemSK: kemSK, MasterSeed: seed}

	lskBytes, _ := lsk.MarshalBinary()
	if allZero(lskBytes) {
		priv.Destroy()
		return nil, nil, ErrWeakKey
	}
	kskBytes, _ := kemSK.MarshalBinary()
	if allZero(kskBytes) {
		priv.Destroy()
		return nil, nil, ErrWeakKey
	}

	// Mandatory self-test: the keypair must be able to sign and verify at
	// least one nontrivial message before it is handed to a caller.
	const selfTestMsg = "core-keypair-self-test"
	sig, err := Sign(priv, []byte(selfTestMsg))
	if err != nil {
		priv.Destroy()
		return nil, nil, fmt.Errorf("core: self-test sign failed: %w", err)
	}
	if !Verify(pub, []byte(selfTestMsg), sig) {
		priv.Destroy()
		return nil, nil, fmt.Errorf("core: self-test verify failed")
	}

	return pub, priv, nil
}

// Destroy zeroizes MasterSeed and marks the key destroyed so Sign refuses
// it. The lattice and KEM secrets live inside circl key objects and are not
// overwritten in place: only the MarshalBinary copies of them are zeroed.
// Safe to call multiple times and from any defer.
func (pk *PrivateKey) Destroy() {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	if pk.destroyed {
		return
	}
	zero(pk.MasterSeed[:])
	if pk.LatticeSK != nil {
		if b, err := pk.LatticeSK.MarshalBinary(); err == nil {
			zero(b)
		}
	}
	if pk.KemSK != nil {
		if b, err := pk.KemSK.MarshalBinary(); err == nil {
			zero(b)
		}
	}
	pk.destroyed = true
}

// WithPrivateKey scopes access to sk, guaranteeing Destroy runs on every exit
// path (including panics propagated through fn); see Destroy for what it
// clears.
func WithPrivateKey(sk *PrivateKey, fn func(*PrivateKey) error) error {
	defer sk.Destroy()
	return fn(sk)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func allZero(b []byte) bool {
	return bytes.Equal(b, make([]byte, len(b)))
}

// Ed25519LegacyKey wraps a classical Ed25519 key for interop with legacy
// peers during migration windows (spec.md §2 "Ed25519 legacy").
type Ed25519LegacyKey struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateEd25519Legacy creates a classical keypair. It is never used for new
// node identities — only for verifying signatures from peers that have not
// yet migrated.
func GenerateEd25519Legacy() (*Ed25519LegacyKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519LegacyKey{Public: pub, Private: priv}, nil
}
