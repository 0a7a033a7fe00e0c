package core

import (
	"fmt"
	"time"
)

// StorageOffer is a provider's published willingness to store data: price
// per gigabyte-epoch and available capacity for a tier (spec.md §4.6
// "provider pricing/market").
type StorageOffer struct {
	Provider     NodeID
	Tier         StorageTier
	PricePerGBEp float64
	CapacityGB   float64
	Reputation   float64
}

// StorageDeal is an agreed contract between a client and a provider: the
// object hash, tier, agreed price, duration, and escrowed funds.
type StorageDeal struct {
	ID          Hash
	Client      NodeID
	Provider    NodeID
	ObjectHash  Hash
	Tier        StorageTier
	PricePerGBEp float64
	SizeGB      float64
	StartEpoch  uint64
	DurationEps uint64
	Escrowed    uint64 // smallest currency unit held until proofs are satisfied
	Released    uint64
	Active      bool
}

// TotalCost returns the full deal cost in smallest currency units.
func (d *StorageDeal) TotalCost() uint64 {
	return uint64(d.PricePerGBEp * d.SizeGB * float64(d.DurationEps))
}

// ErrInsufficientEscrow is returned when a deal is proposed with escrowed
// funds below its computed total cost.
var ErrInsufficientEscrow = fmt.Errorf("core: escrow below total deal cost")

// NewStorageDeal validates and constructs a deal, requiring the client to
// have escrowed at least TotalCost() up front — storage providers are
// never asked to serve on credit (spec.md §4.6 escrow invariant).
func NewStorageDeal(client, provider NodeID, objectHash Hash, offer StorageOffer, sizeGB float64, startEpoch, durationEps uint64, escrowed uint64) (*StorageDeal, error) {
	d := &StorageDeal{
		Client:       client,
		Provider:     provider,
		ObjectHash:   objectHash,
		Tier:         offer.Tier,
		PricePerGBEp: offer.PricePerGBEp,
		SizeGB:       sizeGB,
		StartEpoch:   startEpoch,
		DurationEps:  durationEps,
		Escrowed:     escrowed,
		Active:       true,
	}
	if escrowed < d.TotalCost() {
		return nil, ErrInsufficientEscrow
	}
	d.ID = HashBlake3(client.Bytes(), provider.Bytes(), objectHash[:], []byte(fmt.Sprintf("%d:%d", startEpoch, durationEps)))
	return d, nil
}

// StorageChallenge is a Merkle-proof challenge issued to a provider to
// verify continued possession of a stored shard set (the
// `[supplemented]` feature from `original_source/lib-consensus/src/proofs/storage_proof.rs`,
// SPEC_FULL.md §C).
type StorageChallenge struct {
	DealID     Hash
	Epoch      uint64
	LeafIndices []int
	IssuedAt   time.Time
}

// StorageProof is a provider's response: one Merkle inclusion proof per
// challenged leaf index. ChallengesPassed must be at least as long as the
// challenge's LeafIndices for the proof to be considered complete
// (spec.md §3 invariant).
type StorageProof struct {
	DealID           Hash
	Epoch            uint64
	ChallengesPassed []MerkleProof
}

// ErrIncompleteProof is returned when a provider's proof answers fewer
// leaves than were challenged.
var ErrIncompleteProof = fmt.Errorf("core: storage proof answers fewer leaves than challenged")

// VerifyStorageProof checks a provider's response against the challenge and
// the object's Merkle root, releasing payment only when every challenged
// leaf verifies.
func VerifyStorageProof(challenge *StorageChallenge, proof *StorageProof, root Hash) error {
	if len(proof.ChallengesPassed) < len(challenge.LeafIndices) {
		return ErrIncompleteProof
	}
	for i, idx := range challenge.LeafIndices {
		mp := proof.ChallengesPassed[i]
		if mp.LeafIndex != idx {
			return fmt.Errorf("core: proof leaf %d does not match challenge index %d", mp.LeafIndex, idx)
		}
		if !VerifyMerkleProof(root, mp) {
			return fmt.Errorf("core: merkle proof failed for leaf %d", idx)
		}
	}
	return nil
}

// StorageMarket tracks open offers and active deals for a node's local
// view of the storage economy. Grounded on teacher `core/storage.go`'s
// resource-allocator/pricing logic and `core/resource_allocator.go`'s
// reputation-weighted selection, generalized to the spec's tiered,
// escrow-backed deal model.
type StorageMarket struct {
	offers []StorageOffer
	deals  map[Hash]*StorageDeal
}

// NewStorageMarket creates an empty market view.
func NewStorageMarket() *StorageMarket {
	return &StorageMarket{deals: make(map[Hash]*StorageDeal)}
}

// PublishOffer adds or replaces a provider's offer.
func (m *StorageMarket) PublishOffer(offer StorageOffer) {
	for i, o := range m.offers {
		if o.Provider == offer.Provider && o.Tier == offer.Tier {
			m.offers[i] = offer
			return
		}
	}
	m.offers = append(m.offers, offer)
}

// SelectProvider picks the best offer for a tier by a reputation-weighted
// price score (lower price and higher reputation both improve the score),
// matching the teacher's `resource_allocator.go` selection heuristic.
func (m *StorageMarket) SelectProvider(tier StorageTier, minCapacityGB float64) (*StorageOffer, error) {
	var best *StorageOffer
	var bestScore float64
	for i := range m.offers {
		o := &m.offers[i]
		if o.Tier != tier || o.CapacityGB < minCapacityGB {
			continue
		}
		score := (1 + o.Reputation) / (o.PricePerGBEp + 0.0001)
		if best == nil || score > bestScore {
			best = o
			bestScore = score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("core: no provider available for tier %d with %.2fGB free", tier, minCapacityGB)
	}
	return best, nil
}

// RecordDeal stores an agreed deal.
func (m *StorageMarket) RecordDeal(d *StorageDeal) { m.deals[d.ID] = d }

// SettleEpoch releases a pro-rata share of escrow for a successfully
// proven epoch, closing the deal once the full duration has been served.
func (m *StorageMarket) SettleEpoch(dealID Hash, currentEpoch uint64) (released uint64, err error) {
	d, ok := m.deals[dealID]
	if !ok {
		return 0, fmt.Errorf("core: unknown deal %s", dealID.Hex())
	}
	if !d.Active {
		return 0, fmt.Errorf("core: deal %s already closed", dealID.Hex())
	}
	perEpoch := d.TotalCost() / d.DurationEps
	d.Released += perEpoch
	if currentEpoch >= d.StartEpoch+d.DurationEps || d.Released >= d.Escrowed {
		d.Active = false
	}
	return perEpoch, nil
}
