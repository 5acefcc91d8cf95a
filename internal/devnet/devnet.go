// Package devnet simulates the validators and collators of a development
// network. Keys are derived from the network name, so every run of the
// same configuration produces the same chain.
package devnet

import (
	"fmt"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/relay"
	"ShardRelay/internal/signing"
)

// Network holds the validator keys and collator behaviour of a devnet.
type Network struct {
	name         string
	keys         []*signing.ValidatorKey
	ids          []primitives.ValidatorID
	offline      map[primitives.ValidatorIndex]bool // offline validators neither sign bitfields nor back
	silent       map[primitives.ShardID]bool        // silent shards never produce candidates
	upgradeEvery primitives.Round                   // upgradeEvery > 0 makes collators ship new code on those rounds
}

// Option configures the Network during creation.
type Option func(*Network)

// WithOffline marks validators as offline.
func WithOffline(indices ...primitives.ValidatorIndex) Option {
	return func(n *Network) {
		for _, i := range indices {
			n.offline[i] = true
		}
	}
}

// WithSilentShards stops the collators of the given shards.
func WithSilentShards(ids ...primitives.ShardID) Option {
	return func(n *Network) {
		for _, id := range ids {
			n.silent[id] = true
		}
	}
}

// WithUpgradeEvery makes collators ship new validation code every k rounds.
func WithUpgradeEvery(k primitives.Round) Option {
	return func(n *Network) {
		n.upgradeEvery = k
	}
}

// New derives the keys of a devnet with the given number of validators.
func New(name string, validators int, opts ...Option) (*Network, error) {
	n := &Network{
		name:    name,
		offline: make(map[primitives.ValidatorIndex]bool),
		silent:  make(map[primitives.ShardID]bool),
	}

	for i := range validators {
		k, err := signing.DevValidatorKey(name, i)
		if err != nil {
			return nil, fmt.Errorf("derive validator %d:\n%w", i, err)
		}

		n.keys = append(n.keys, k)
		n.ids = append(n.ids, k.ID())
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// Validators returns the same validator set for every session.
func (n *Network) Validators(primitives.SessionIndex) []primitives.ValidatorID {
	out := make([]primitives.ValidatorID, len(n.ids))
	copy(out, n.ids)

	return out
}

// Bitfields has every online validator attest to each candidate backed
// in an earlier round.
func (n *Network) Bitfields(c *relay.Chain) []primitives.SignedAvailabilityBitfield {
	ctx, err := c.SigningContext()
	if err != nil {
		logger.Warn("devnet signing context", "error", err)
		return nil
	}

	pending, err := c.Engine().AllPending()
	if err != nil {
		logger.Warn("devnet pending candidates", "error", err)
		return nil
	}

	var cores []int
	for _, p := range pending {
		if p.BackedInNumber < c.Round() {
			cores = append(cores, int(p.Core))
		}
	}

	if len(cores) == 0 {
		return nil
	}

	bits := bitfield.FromIndices(c.Scheduler().NumCores(), cores...)
	payload := primitives.BitfieldPayload(bits, ctx)

	var out []primitives.SignedAvailabilityBitfield
	for i, key := range n.keys {
		v := primitives.ValidatorIndex(i)
		if n.offline[v] {
			continue
		}

		out = append(out, primitives.SignedAvailabilityBitfield{
			Payload:        bits.Clone(),
			ValidatorIndex: v,
			Signature:      key.Sign(payload),
		})
	}

	return out
}

// Candidates produces a backed candidate for each scheduled core whose
// collator is running and whose group can reach a backing majority.
func (n *Network) Candidates(c *relay.Chain, scheduled []primitives.CoreAssignment) []primitives.BackedCandidate {
	ctx, err := c.SigningContext()
	if err != nil {
		logger.Warn("devnet signing context", "error", err)
		return nil
	}

	var out []primitives.BackedCandidate
	for _, a := range scheduled {
		if n.silent[a.ShardID] {
			continue
		}

		receipt, ok := n.collate(c, a)
		if !ok {
			continue
		}

		backed, ok := n.back(c, a, receipt, ctx)
		if !ok {
			continue
		}

		out = append(out, backed)
	}

	return out
}

// collate builds the collator-signed candidate for an assignment.
func (n *Network) collate(c *relay.Chain, a primitives.CoreAssignment) (primitives.CommittedCandidateReceipt, bool) {
	collator := signing.DevCollatorKey(n.name, a.ShardID)
	if a.RequiredCollator != nil && *a.RequiredCollator != collator.ID() {
		return primitives.CommittedCandidateReceipt{}, false
	}

	round := c.Round()
	relayParentNumber := round.SaturatingSub(1)

	pvd, ok, err := c.Paras().PersistedValidationData(a.ShardID, relayParentNumber)
	if err != nil {
		logger.Warn("devnet validation data", "shard", a.ShardID, "error", err)
		return primitives.CommittedCandidateReceipt{}, false
	}
	if !ok {
		return primitives.CommittedCandidateReceipt{}, false
	}

	parent := c.ParentHash()
	head := primitives.HashBytes(pvd.ParentHead, parent[:])
	pov := primitives.HashBytes([]byte("pov"), head[:])

	r := primitives.CommittedCandidateReceipt{
		Descriptor: primitives.CandidateDescriptor{
			ShardID:                     a.ShardID,
			RelayParent:                 parent,
			PersistedValidationDataHash: pvd.Hash(),
			PoVHash:                     pov,
		},
		Commitments: primitives.CandidateCommitments{
			HeadData: head[:],
		},
	}

	if n.upgradeEvery > 0 && round%n.upgradeEvery == 0 && n.canUpgrade(c, a.ShardID, relayParentNumber) {
		code := primitives.HashBytes([]byte("code"), head[:])
		r.Commitments.NewValidationCode = code[:]
	}

	collator.SignDescriptor(&r.Descriptor)

	return r, true
}

// canUpgrade mirrors the upgrade-frequency rule so the devnet never ships
// a premature upgrade.
func (n *Network) canUpgrade(c *relay.Chain, id primitives.ShardID, relayParentNumber primitives.Round) bool {
	last, ok := c.Paras().LastCodeUpgrade(id, true)
	if !ok {
		return true
	}

	freq := c.Config().Config().ValidationUpgradeFrequency

	return last <= relayParentNumber && relayParentNumber-last >= freq
}

// back collects votes from the online members of the assignment's group.
func (n *Network) back(c *relay.Chain, a primitives.CoreAssignment, r primitives.CommittedCandidateReceipt, ctx primitives.SigningContext) (primitives.BackedCandidate, bool) {
	group, ok := c.Scheduler().GroupValidators(a.Group)
	if !ok {
		return primitives.BackedCandidate{}, false
	}

	hash := r.Hash()
	indices := bitfield.New(len(group))

	var votes []primitives.ValidityAttestation
	for pos, v := range group {
		if n.offline[v] || int(v) >= len(n.keys) {
			continue
		}

		kind := primitives.AttestationExplicit
		if len(votes) == 0 {
			kind = primitives.AttestationImplicit
		}

		indices.Set(pos, true)
		votes = append(votes, primitives.ValidityAttestation{
			Kind:      kind,
			Signature: n.keys[v].Sign(primitives.StatementPayload(kind, hash, ctx)),
		})
	}

	if len(votes)*2 <= len(group) {
		return primitives.BackedCandidate{}, false
	}

	return primitives.BackedCandidate{
		Candidate:        r,
		ValidityVotes:    votes,
		ValidatorIndices: indices,
	}, true
}
