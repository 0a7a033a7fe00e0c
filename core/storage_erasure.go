package core

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// StorageTier classifies a content object by access frequency, driving
// both erasure-coding parameters and pricing (spec.md §4.6).
type StorageTier uint8

const (
	TierHot StorageTier = iota
	TierWarm
	TierCold
	TierArchive
)

// ecParams returns (dataShards, parityShards) per tier: hot data favors
// fast reconstruction (more parity, lower per-shard latency sensitivity),
// archive data favors storage efficiency (fewer parity shards, acceptable
// given its low retrieval frequency).
func (t StorageTier) ecParams() (data, parity int) {
	switch t {
	case TierHot:
		return 10, 6
	case TierWarm:
		return 12, 4
	case TierCold:
		return 14, 3
	default: // TierArchive
		return 16, 2
	}
}

// ErasureSet is the erasure-coded representation of one stored object:
// the original size (needed to trim padding on reconstruction) and the
// resulting shards, any subset of `data` shards of which is sufficient to
// reconstruct.
type ErasureSet struct {
	Tier       StorageTier
	DataShards int
	ParShards  int
	OrigSize   int
	Shards     [][]byte
}

// EncodeObject erasure-codes data into shards sized for tier, using
// Reed-Solomon (spec.md §4.6 "economic storage engine"). Grounded on
// teacher `core/storage.go`'s chunk-store wrapper; the teacher has no
// erasure coder of its own (SPEC_FULL.md §B notes this explicitly), so
// `github.com/klauspost/reedsolomon` is adopted as the real ecosystem
// library for this concern.
func EncodeObject(tier StorageTier, data []byte) (*ErasureSet, error) {
	dShards, pShards := tier.ecParams()
	enc, err := reedsolomon.New(dShards, pShards)
	if err != nil {
		return nil, fmt.Errorf("core: reedsolomon init: %w", err)
	}

	shardSize := (len(data) + dShards - 1) / dShards
	shards := make([][]byte, dShards+pShards)
	for i := range shards {
		shards[i] = make([]byte, shardSize)
	}
	for i := 0; i < dShards; i++ {
		start := i * shardSize
		end := start + shardSize
		if start < len(data) {
			if end > len(data) {
				end = len(data)
			}
			copy(shards[i], data[start:end])
		}
	}

	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("core: reedsolomon encode: %w", err)
	}

	return &ErasureSet{
		Tier:       tier,
		DataShards: dShards,
		ParShards:  pShards,
		OrigSize:   len(data),
		Shards:     shards,
	}, nil
}

// ErrInsufficientShards is returned when fewer than DataShards shards
// survive to reconstruct an object.
var ErrInsufficientShards = fmt.Errorf("core: insufficient shards to reconstruct object")

// Reconstruct rebuilds the original object from an ErasureSet whose shards
// slice may contain nils for missing/unavailable shards. It requires at
// least DataShards non-nil entries (spec.md §8 "erasure-coded recovery"
// testable property).
func Reconstruct(set *ErasureSet) ([]byte, error) {
	present := 0
	for _, s := range set.Shards {
		if s != nil {
			present++
		}
	}
	if present < set.DataShards {
		return nil, ErrInsufficientShards
	}

	enc, err := reedsolomon.New(set.DataShards, set.ParShards)
	if err != nil {
		return nil, fmt.Errorf("core: reedsolomon init: %w", err)
	}
	if err := enc.Reconstruct(set.Shards); err != nil {
		return nil, fmt.Errorf("core: reedsolomon reconstruct: %w", err)
	}

	out := make([]byte, 0, set.OrigSize)
	for i := 0; i < set.DataShards; i++ {
		out = append(out, set.Shards[i]...)
	}
	if len(out) > set.OrigSize {
		out = out[:set.OrigSize]
	}
	return out, nil
}

// VerifyShards reports whether enough shards are present that Reconstruct
// would succeed, without doing the actual (expensive) reconstruction.
func VerifyShards(set *ErasureSet) bool {
	present := 0
	for _, s := range set.Shards {
		if s != nil {
			present++
		}
	}
	return present >= set.DataShards
}
