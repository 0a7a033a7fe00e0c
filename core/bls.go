package core

import (
	"fmt"
	"sync"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

var blsInitOnce sync.Once
var blsInitErr error

func initBLS() error {
	blsInitOnce.Do(func() {
		blsInitErr = bls.Init(bls.BLS12_381)
		if blsInitErr == nil {
			blsInitErr = bls.SetETHmode(bls.EthModeDraft07)
		}
	})
	return blsInitErr
}

// BLSKeypair is a validator's aggregate-signature identity, used for BFT
// vote aggregation and for attribute disclosure where many signers jointly
// attest in one aggregate signature; verifying it takes every signer's
// public key (spec.md §4.1, §4.9).
type BLSKeypair struct {
	Secret bls.SecretKey
	Public bls.PublicKey
}

// GenerateBLSKeypair creates a fresh BLS12-381 keypair.
func GenerateBLSKeypair() (*BLSKeypair, error) {
	if err := initBLS(); err != nil {
		return nil, fmt.Errorf("core: bls init: %w", err)
	}
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return &BLSKeypair{Secret: sk, Public: *sk.GetPublicKey()}, nil
}

// BLSSign signs msg with the validator's BLS secret key.
func BLSSign(kp *BLSKeypair, msg []byte) []byte {
	return kp.Secret.SignByte(msg).Serialize()
}

// BLSVerify checks a single BLS signature.
func BLSVerify(pub *bls.PublicKey, msg, sig []byte) bool {
	var s bls.Sign
	if err := s.Deserialize(sig); err != nil {
		return false
	}
	return s.VerifyByte(pub, msg)
}

// AggregateBLS combines N validator signatures over possibly-distinct
// messages into one aggregate signature, the wire-efficient form of a BFT
// quorum certificate (spec.md §4.9 "quorum tracking").
func AggregateBLS(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, fmt.Errorf("core: cannot aggregate zero signatures")
	}
	var agg bls.Sign
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("core: aggregate sig %d: %w", i, err)
		}
		if i == 0 {
			agg = s
		} else {
			agg.Add(&s)
		}
	}
	return agg.Serialize(), nil
}

// VerifyAggregateBLS checks an aggregate signature against the matching
// ordered sets of public keys and messages (non-aggregated-message form —
// each signer attests to its own message, as BFT votes do).
func VerifyAggregateBLS(aggSig []byte, pubs []*bls.PublicKey, msgs [][]byte) bool {
	if len(pubs) != len(msgs) || len(pubs) == 0 {
		return false
	}
	var s bls.Sign
	if err := s.Deserialize(aggSig); err != nil {
		return false
	}
	pubSlice := make([]bls.PublicKey, len(pubs))
	for i, p := range pubs {
		pubSlice[i] = *p
	}
	return s.AggregateVerifyNoCheck(pubSlice, msgs)
}
