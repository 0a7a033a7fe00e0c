package core

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the fixed width of every content-addressed identifier in the
// system: block hashes, transaction ids, node ids, and DHT keys all share it.
const HashSize = 32

// Hash is an immutable 32-byte digest. The zero value is the well known
// "zero hash" sentinel used by genesis blocks and empty Merkle roots.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel hash.
var ZeroHash = Hash{}

// NewHash copies exactly HashSize bytes into a Hash. It errors if the input
// is not exactly 32 bytes so callers can't silently truncate real digests.
func NewHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("core: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromSlice zero-pads or truncates b to HashSize. Used when adapting
// externally supplied identifiers (e.g. DID fragments) that aren't
// guaranteed to be exactly 32 bytes.
func HashFromSlice(b []byte) Hash {
	var h Hash
	n := copy(h[:], b)
	_ = n
	return h
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("core: invalid hash hex: %w", err)
	}
	return NewHash(b)
}

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// Bytes returns a copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the zero-hash sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// HashBlake3 hashes data with Blake3, the primitive used throughout the
// system for content addressing and transcript binding (spec.md §4.1).
func HashBlake3(data ...[]byte) Hash {
	hasher := blake3.New(HashSize, nil)
	for _, d := range data {
		hasher.Write(d)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
