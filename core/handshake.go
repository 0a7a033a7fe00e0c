package core

import (
	"fmt"
	"strings"
	"time"
)

// CurrentProtocolVersion is the UHP version this build speaks. A peer
// announcing any other version fails the handshake with
// ErrVersionMismatch before any cryptographic material is exchanged
// (spec.md §4.3 verification step 1).
const CurrentProtocolVersion uint32 = 1

// HandshakeContext carries the tunable parameters of the Unified Handshake
// Protocol. AllowedSkew relaxes the timestamp-skew check for local test
// networks — the dev_mode supplemented feature from
// `original_source/lib-crypto/src/verification/dev_mode.rs` (SPEC_FULL.md
// §C), wired through config rather than hardcoded.
type HandshakeContext struct {
	Epoch       uint64
	AllowedSkew time.Duration
	Nonces      *NonceCache
}

// DefaultAllowedSkew is the production timestamp-skew tolerance; dev
// networks override this via config to something much larger.
const DefaultAllowedSkew = 30 * time.Second

// HandshakeHello is UHP message 1: initiator announces its identity,
// capabilities, a fresh nonce, and a timestamp.
type HandshakeHello struct {
	Initiator       NodeID
	InitPK          *PublicKey
	Nonce           Hash
	Timestamp       time.Time
	Epoch           uint64
	ProtocolVersion uint32
	Capabilities    []string
	Sig             Signature
}

// HandshakeResponse is UHP message 2: responder KEM-encapsulates a shared
// secret to the initiator's KEM key, adds its own nonce, and signs the
// running transcript (which includes the initiator's hello and nonce).
type HandshakeResponse struct {
	Responder       NodeID
	RespPK          *PublicKey
	KemCT           []byte
	ResponderNC     Hash
	Timestamp       time.Time
	ProtocolVersion uint32
	Capabilities    []string
	Sig             Signature
}

// HandshakeFinish is UHP message 3: initiator confirms by signing the full
// transcript hash, proving possession of its signing key. The derived
// session key is not used in this message.
type HandshakeFinish struct {
	Transcript Hash
	Sig        Signature
}

// Session is the result of a completed handshake: a derived AEAD key bound
// to the exact transcript that produced it, plus the peer identity it was
// negotiated with.
type Session struct {
	Peer       NodeID
	Key        []byte
	Transcript Hash
	EstablishedAt time.Time
}

func encodeCapabilities(caps []string) []byte {
	return []byte(strings.Join(caps, "\x00"))
}

func encodeHello(h *HandshakeHello) []byte {
	lpk, _ := h.InitPK.LatticePK.MarshalBinary()
	kpk, _ := h.InitPK.KemPK.MarshalBinary()
	ts := []byte(h.Timestamp.UTC().Format(time.RFC3339Nano))
	return concatBytes(h.Initiator.Bytes(), lpk, kpk, h.Nonce[:], ts, uint64ToBytes(uint64(h.ProtocolVersion)), encodeCapabilities(h.Capabilities))
}

func encodeResponse(r *HandshakeResponse) []byte {
	lpk, _ := r.RespPK.LatticePK.MarshalBinary()
	kpk, _ := r.RespPK.KemPK.MarshalBinary()
	ts := []byte(r.Timestamp.UTC().Format(time.RFC3339Nano))
	return concatBytes(r.Responder.Bytes(), lpk, kpk, r.KemCT, r.ResponderNC[:], ts, uint64ToBytes(uint64(r.ProtocolVersion)), encodeCapabilities(r.Capabilities))
}

func concatBytes(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// BuildHello constructs and signs message 1 for a fresh handshake attempt,
// announcing this build's protocol version and declared capabilities.
func BuildHello(ctx *HandshakeContext, selfID NodeID, selfPK *PublicKey, selfSK *PrivateKey, nonce Hash, capabilities []string, now time.Time) (*HandshakeHello, error) {
	h := &HandshakeHello{
		Initiator:       selfID,
		InitPK:          selfPK,
		Nonce:           nonce,
		Timestamp:       now,
		Epoch:           ctx.Epoch,
		ProtocolVersion: CurrentProtocolVersion,
		Capabilities:    capabilities,
	}
	sig, err := Sign(selfSK, encodeHello(h))
	if err != nil {
		return nil, fmt.Errorf("core: sign hello: %w", err)
	}
	h.Sig = sig
	return h, nil
}

// ErrHandshakeSkew is returned when a peer's timestamp falls outside the
// allowed clock-skew window.
var ErrHandshakeSkew = fmt.Errorf("core: handshake timestamp outside allowed skew")

// ErrVersionMismatch is returned when a peer announces a UHP protocol
// version other than CurrentProtocolVersion (spec.md §4.3 verification
// step 1).
var ErrVersionMismatch = fmt.Errorf("core: handshake protocol version mismatch")

// AcceptHello validates message 1: protocol version, signature, clock
// skew, and replay protection via ctx.Nonces. On success it
// KEM-encapsulates a shared secret and returns message 2 plus the shared
// secret for session-key derivation.
func AcceptHello(ctx *HandshakeContext, h *HandshakeHello, selfID NodeID, selfPK *PublicKey, selfSK *PrivateKey, responderNonce Hash, capabilities []string, now time.Time) (*HandshakeResponse, []byte, error) {
	if h.ProtocolVersion != CurrentProtocolVersion {
		return nil, nil, ErrVersionMismatch
	}
	if !Verify(h.InitPK, encodeHello(h), h.Sig) {
		return nil, nil, fmt.Errorf("core: hello signature invalid")
	}
	skew := ctx.AllowedSkew
	if skew <= 0 {
		skew = DefaultAllowedSkew
	}
	if absDuration(now.Sub(h.Timestamp)) > skew {
		return nil, nil, ErrHandshakeSkew
	}
	if err := ctx.Nonces.CheckAndStore(h.Epoch, h.Nonce, now); err != nil {
		return nil, nil, err
	}

	ct, ss, err := Encapsulate(h.InitPK)
	if err != nil {
		return nil, nil, fmt.Errorf("core: encapsulate: %w", err)
	}

	resp := &HandshakeResponse{
		Responder:       selfID,
		RespPK:          selfPK,
		KemCT:           ct,
		ResponderNC:     responderNonce,
		Timestamp:       now,
		ProtocolVersion: CurrentProtocolVersion,
		Capabilities:    capabilities,
	}
	sig, err := Sign(selfSK, concatBytes(encodeHello(h), encodeResponse(resp)))
	if err != nil {
		return nil, nil, fmt.Errorf("core: sign response: %w", err)
	}
	resp.Sig = sig
	return resp, ss, nil
}

// CompleteHandshake runs the initiator's side of message 2/3: verifies the
// response, decapsulates the shared secret, derives the session key bound
// to the full transcript hash, and produces message 3.
func CompleteHandshake(ctx *HandshakeContext, h *HandshakeHello, resp *HandshakeResponse, selfSK *PrivateKey) (*HandshakeFinish, *Session, error) {
	if resp.ProtocolVersion != CurrentProtocolVersion {
		return nil, nil, ErrVersionMismatch
	}
	transcriptInput := concatBytes(encodeHello(h), encodeResponse(resp))
	if !Verify(resp.RespPK, transcriptInput, resp.Sig) {
		return nil, nil, fmt.Errorf("core: response signature invalid")
	}
	if err := ctx.Nonces.CheckAndStore(h.Epoch, resp.ResponderNC, resp.Timestamp); err != nil {
		return nil, nil, err
	}

	ss, err := Decapsulate(selfSK, resp.KemCT)
	if err != nil {
		return nil, nil, fmt.Errorf("core: decapsulate: %w", err)
	}

	transcript := TranscriptHash(transcriptInput)
	key, err := DeriveSessionKey(ss, transcript, "meshchain-uhp-session")
	if err != nil {
		return nil, nil, fmt.Errorf("core: derive session key: %w", err)
	}

	finSig, err := Sign(selfSK, transcript[:])
	if err != nil {
		return nil, nil, fmt.Errorf("core: sign finish: %w", err)
	}

	session := &Session{
		Peer:          resp.Responder,
		Key:           key,
		Transcript:    transcript,
		EstablishedAt: resp.Timestamp,
	}
	return &HandshakeFinish{Transcript: transcript, Sig: finSig}, session, nil
}

// FinalizeResponder verifies message 3 on the responder side and derives
// the same session key the initiator derived, completing the handshake.
func FinalizeResponder(h *HandshakeHello, resp *HandshakeResponse, fin *HandshakeFinish, sharedSecret []byte, initiatorPK *PublicKey) (*Session, error) {
	transcriptInput := concatBytes(encodeHello(h), encodeResponse(resp))
	transcript := TranscriptHash(transcriptInput)
	if transcript != fin.Transcript {
		return nil, fmt.Errorf("core: finish transcript mismatch")
	}
	if !Verify(initiatorPK, transcript[:], fin.Sig) {
		return nil, fmt.Errorf("core: finish signature invalid")
	}
	key, err := DeriveSessionKey(sharedSecret, transcript, "meshchain-uhp-session")
	if err != nil {
		return nil, fmt.Errorf("core: derive session key: %w", err)
	}
	return &Session{Peer: h.Initiator, Key: key, Transcript: transcript, EstablishedAt: resp.Timestamp}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
