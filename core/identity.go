package core

import (
	"fmt"
	"strings"
	"time"
)

// NodeID is the content-addressed identifier of a mesh participant:
// Blake3(DID ‖ device_label). It doubles as the node's position in the
// DHT's XOR keyspace (spec.md §3, §4.3).
type NodeID Hash

// String implements fmt.Stringer.
func (n NodeID) String() string { return Hash(n).Hex() }

// Bytes returns the raw identifier bytes.
func (n NodeID) Bytes() []byte { return Hash(n).Bytes() }

// DIDPrefix identifies a meshchain decentralized identifier. A DID is
// content-addressed from its owner's public-key bundle (did:key style), so
// the binding between a DID and the key that may sign on its behalf can be
// checked by any peer without consulting an external registry.
const DIDPrefix = "did:zhtp:"

// DeriveDID computes the content-addressed DID for a signing public key:
// did:zhtp:<blake3(public_key_bundle)>.
func DeriveDID(pk *PublicKey) string {
	lpkBytes, _ := pk.LatticePK.MarshalBinary()
	kemPKBytes, _ := pk.KemPK.MarshalBinary()
	h := HashBlake3([]byte("meshchain-did"), lpkBytes, kemPKBytes)
	return DIDPrefix + h.Hex()
}

// Identity binds a NodeID to its DID, the device label that distinguishes
// this session/device from others acting under the same DID, its full
// public-key bundle, and declared capabilities. It is what peers exchange
// and persist after a successful handshake (spec.md §3 "Identity").
type Identity struct {
	ID           NodeID
	DID          string
	DeviceLabel  string
	SigningKey   *PublicKey
	BLSKey       []byte // serialized BLS12-381 public key, optional (validators only)
	Capabilities []string
	IssuedAt     time.Time
}

// DeriveNodeID computes the NodeID for a DID and device label pair:
// Blake3(DID ‖ device_label) (spec.md §3).
func DeriveNodeID(did, deviceLabel string) NodeID {
	return NodeID(HashBlake3([]byte(did), []byte(deviceLabel)))
}

// DeriveNodeIDForKey is a convenience wrapper that derives the DID from pk
// before computing the NodeID, for callers that only have a keypair and a
// device label on hand.
func DeriveNodeIDForKey(pk *PublicKey, deviceLabel string) NodeID {
	return DeriveNodeID(DeriveDID(pk), deviceLabel)
}

// NewIdentity builds an Identity for a freshly generated keypair and device
// label.
func NewIdentity(pk *PublicKey, deviceLabel string, capabilities []string, now time.Time) *Identity {
	did := DeriveDID(pk)
	return &Identity{
		ID:           DeriveNodeID(did, deviceLabel),
		DID:          did,
		DeviceLabel:  deviceLabel,
		SigningKey:   pk,
		Capabilities: capabilities,
		IssuedAt:     now,
	}
}

// HasCapability reports whether id declares cap among its capabilities
// (e.g. "storage-provider", "validator", "relay").
func (id *Identity) HasCapability(cap string) bool {
	for _, c := range id.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ErrIdentityMismatch is returned when a claimed NodeID doesn't match
// Blake3(DID ‖ device_label) for the DID and device label presented
// alongside it.
var ErrIdentityMismatch = fmt.Errorf("core: identity id does not match did and device label")

// ErrInvalidDID is returned when an identity's DID is missing meshchain's
// did:zhtp: prefix (spec.md §7 "InvalidDid").
var ErrInvalidDID = fmt.Errorf("core: identity did is malformed")

// ErrNodeIDForgery is returned when an identity's DID does not actually
// content-address the signing key presented alongside it — the case of a
// peer claiming, say, did=did:zhtp:alice while signing with bob's key
// (spec.md §7/§9 "NodeIdForgery").
var ErrNodeIDForgery = fmt.Errorf("core: node id forgery: did does not bind to signing key")

// VerifyIdentity checks that id.ID is consistent with id.DID and
// id.DeviceLabel, that id.DID is well-formed, and that id.DID actually
// content-addresses id.SigningKey — rejecting an identity that claims
// someone else's DID while presenting its own key. It is a standalone
// check: the handshake functions in handshake.go do not call it.
func VerifyIdentity(id *Identity) error {
	if !strings.HasPrefix(id.DID, DIDPrefix) {
		return ErrInvalidDID
	}
	if want := DeriveNodeID(id.DID, id.DeviceLabel); want != id.ID {
		return ErrIdentityMismatch
	}
	if want := DeriveDID(id.SigningKey); want != id.DID {
		return ErrNodeIDForgery
	}
	return nil
}

// XORDistance returns the XOR distance between two NodeIDs used throughout
// the Kademlia DHT for bucket placement and closest-node queries.
func XORDistance(a, b NodeID) Hash {
	var d Hash
	for i := 0; i < HashSize; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether distance d1 is strictly closer than d2 (lexicographic
// comparison of the XOR distance, matching standard Kademlia ordering).
func (d Hash) Less(other Hash) bool {
	for i := 0; i < HashSize; i++ {
		if d[i] != other[i] {
			return d[i] < other[i]
		}
	}
	return false
}
