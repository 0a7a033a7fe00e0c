package zk

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// CircuitKind identifies which statement a ProvingKey/VerifyingKey pair was
// generated for, so a node can hold one key set per circuit type rather
// than regenerating trusted setup per proof.
type CircuitKind uint8

const (
	CircuitRange CircuitKind = iota
	CircuitTxValidity
	CircuitIdentityAttribute
	CircuitMerkleInclusion
	CircuitStateTransition
	CircuitRecursiveAggregation
)

// curve is the pairing-friendly curve every circuit in this package is
// compiled over. BN254 matches certenIO's bls_zkp circuits.
const curve = ecc.BN254

// KeySet holds the Groth16 proving/verifying key pair and compiled
// constraint system for one circuit kind, produced once by Setup and
// reused across every Prove/Verify call for that statement.
type KeySet struct {
	Kind CircuitKind
	CCS  frontend.CompiledConstraintSystem
	PK   groth16.ProvingKey
	VK   groth16.VerifyingKey
}

// Setup compiles circuit and runs the Groth16 trusted setup, returning the
// key set needed to prove and verify statements of that shape. Grounded on
// `certenIO-certen-validator/pkg/crypto/bls_zkp`'s setup routine. Library:
// `github.com/consensys/gnark` + `github.com/consensys/gnark-crypto`.
func Setup(kind CircuitKind, circuit frontend.Circuit) (*KeySet, error) {
	ccs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("zk: compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("zk: groth16 setup: %w", err)
	}
	return &KeySet{Kind: kind, CCS: ccs, PK: pk, VK: vk}, nil
}

// Proof is a serialized Groth16 proof plus the public witness it was
// produced against, ready to be attached to a Transaction or BlockHeader.
type Proof struct {
	Kind      CircuitKind
	Bytes     []byte
	PublicVal []byte
}

// Prove produces a Groth16 proof for assignment (a fully-populated
// instance of the circuit struct, secret and public fields both set)
// against ks.
func Prove(ks *KeySet, assignment frontend.Circuit) (*Proof, error) {
	witness, err := frontend.NewWitness(assignment, curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("zk: build witness: %w", err)
	}
	proof, err := groth16.Prove(ks.CCS, ks.PK, witness)
	if err != nil {
		return nil, fmt.Errorf("zk: groth16 prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("zk: serialize proof: %w", err)
	}

	pubWitness, err := witness.Public()
	if err != nil {
		return nil, fmt.Errorf("zk: build public witness: %w", err)
	}
	var pubBuf bytes.Buffer
	if _, err := pubWitness.WriteTo(&pubBuf); err != nil {
		return nil, fmt.Errorf("zk: serialize public witness: %w", err)
	}

	return &Proof{Kind: ks.Kind, Bytes: buf.Bytes(), PublicVal: pubBuf.Bytes()}, nil
}

// ErrSoundnessFailure is returned when a proof fails Groth16 verification
// — the single closed error for every failed ZK check, regardless of
// which circuit kind produced it (spec.md §7 and §8 "ZK soundness"
// testable property: no proof for a false statement verifies).
var ErrSoundnessFailure = fmt.Errorf("zk: proof failed verification")

// Verify checks a Proof against ks's verifying key and the given public
// witness bytes (as produced by Prove).
func Verify(ks *KeySet, p *Proof) error {
	if p.Kind != ks.Kind {
		return fmt.Errorf("zk: proof kind %d does not match key set kind %d", p.Kind, ks.Kind)
	}

	proof := groth16.NewProof(curve)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Bytes)); err != nil {
		return fmt.Errorf("zk: deserialize proof: %w", err)
	}

	pubWitness, err := frontend.NewWitness(nil, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("zk: build empty public witness: %w", err)
	}
	if _, err := pubWitness.ReadFrom(bytes.NewReader(p.PublicVal)); err != nil {
		return fmt.Errorf("zk: deserialize public witness: %w", err)
	}

	if err := groth16.Verify(proof, ks.VK, pubWitness); err != nil {
		return fmt.Errorf("%w: %v", ErrSoundnessFailure, err)
	}
	return nil
}
