package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

func signEd25519(lk *Ed25519LegacyKey, msg []byte) []byte {
	return ed25519.Sign(lk.Private, msg)
}

func verifyEd25519(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}

// DeriveSessionKey expands a shared KEM secret plus the handshake transcript
// hash into a 32-byte AEAD key via HKDF-SHA3-256, binding the resulting
// session key to the exact 3-message exchange that produced it (spec.md
// §4.2's "session key derivation bound to transcript hash" invariant).
func DeriveSessionKey(sharedSecret []byte, transcript Hash, info string) ([]byte, error) {
	h := hkdf.New(sha3.New256, sharedSecret, transcript[:], []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := fillFromReader(h, key); err != nil {
		return nil, fmt.Errorf("core: hkdf expand: %w", err)
	}
	return key, nil
}

func fillFromReader(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("core: short hkdf read")
		}
	}
	return total, nil
}

// SealedBox is an AEAD ciphertext produced by Seal, carrying the nonce
// alongside it so Open is self-contained given only the key.
type SealedBox struct {
	Nonce      [chacha20poly1305.NonceSize]byte
	Ciphertext []byte
}

// Seal encrypts plaintext under key with aad bound in, using
// ChaCha20-Poly1305 — the AEAD used for every encrypted mesh frame and
// encrypted storage chunk (spec.md §4.2, §4.6).
func Seal(key, plaintext, aad []byte) (SealedBox, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return SealedBox{}, fmt.Errorf("core: aead init: %w", err)
	}
	var box SealedBox
	if _, err := rand.Read(box.Nonce[:]); err != nil {
		return SealedBox{}, fmt.Errorf("core: nonce: %w", err)
	}
	box.Ciphertext = aead.Seal(nil, box.Nonce[:], plaintext, aad)
	return box, nil
}

// Open decrypts a SealedBox, returning an error for any authentication
// failure — tamper and forgery both surface identically so callers cannot
// distinguish corruption from attack (spec.md §7).
func Open(key []byte, box SealedBox, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("core: aead init: %w", err)
	}
	pt, err := aead.Open(nil, box.Nonce[:], box.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("core: %w: %v", ErrAuthenticationFailed, err)
	}
	return pt, nil
}

// ErrAuthenticationFailed is the closed error returned whenever an AEAD
// open fails, regardless of underlying cause.
var ErrAuthenticationFailed = fmt.Errorf("core: authentication failed")

// TranscriptHash folds an ordered list of handshake messages into the
// single Blake3 digest that session keys and signatures are bound to.
func TranscriptHash(messages ...[]byte) Hash {
	return HashBlake3(messages...)
}

// FingerprintSHA256 is used only where a peer's wire format requires a
// classical digest for legacy interop (e.g. certificate pinning during
// the Ed25519 migration window); new code should use HashBlake3.
func FingerprintSHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}
