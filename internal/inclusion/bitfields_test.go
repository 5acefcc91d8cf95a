package inclusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/primitives"
)

func TestSupermajorityThreshold(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 6: 4, 7: 5, 10: 7, 100: 67}
	for n, want := range cases {
		assert.Equal(t, want, SupermajorityThreshold(n), "n=%d", n)
	}
}

func TestBitfieldChecks(t *testing.T) {
	const chainA, chainB primitives.ShardID = 1, 2

	h := newHarness(t, 5, 0, chainA, chainB)
	h.seedPending(chainA, 0, 9, &primitives.CandidateCommitments{HeadData: primitives.HeadData{9}})

	t.Run("wrong size", func(t *testing.T) {
		bits := bitfield.FromIndices(3, 0)
		bf := primitives.SignedAvailabilityBitfield{
			Payload:   bits,
			Signature: h.keys[0].Sign(primitives.BitfieldPayload(bits, h.ctx())),
		}

		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{bf}, h.chainLookup)
		require.ErrorIs(t, err, ErrWrongBitfieldSize)

		p, ok := h.pending(chainA)
		require.True(t, ok)
		assert.Zero(t, p.AvailabilityVotes.CountOnes())

		_, recorded, err := h.engine.AttestationRecord(0)
		require.NoError(t, err)
		assert.False(t, recorded)
	})

	t.Run("duplicate", func(t *testing.T) {
		bf := h.signBitfield(0, 0)
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{bf, bf}, h.chainLookup)
		require.ErrorIs(t, err, ErrBitfieldDuplicateOrUnordered)
	})

	t.Run("unordered", func(t *testing.T) {
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(1, 0), h.signBitfield(0, 0)}, h.chainLookup)
		require.ErrorIs(t, err, ErrBitfieldDuplicateOrUnordered)
	})

	t.Run("validator out of bounds", func(t *testing.T) {
		bf := h.signBitfield(0, 0)
		bf.ValidatorIndex = 5
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{bf}, h.chainLookup)
		require.ErrorIs(t, err, ErrValidatorIndexOutOfBounds)
	})

	t.Run("unoccupied core", func(t *testing.T) {
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(0, 1)}, h.chainLookup)
		require.ErrorIs(t, err, ErrUnoccupiedBitInBitfield)
	})

	t.Run("bad signature", func(t *testing.T) {
		bf := h.signBitfield(0, 0)
		bf.Signature = h.keys[1].Sign(primitives.BitfieldPayload(bf.Payload, h.ctx()))
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{bf}, h.chainLookup)
		require.ErrorIs(t, err, ErrInvalidBitfieldSignature)
	})

	t.Run("signature from another session", func(t *testing.T) {
		bits := bitfield.FromIndices(h.nCores(), 0)
		ctx := h.ctx()
		ctx.SessionIndex++
		bf := primitives.SignedAvailabilityBitfield{Payload: bits, Signature: h.keys[0].Sign(primitives.BitfieldPayload(bits, ctx))}

		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{bf}, h.chainLookup)
		require.ErrorIs(t, err, ErrInvalidBitfieldSignature)
	})

	t.Run("one bad entry rejects the batch", func(t *testing.T) {
		bad := h.signBitfield(3, 0)
		bad.Signature = primitives.ValidatorSignature{}

		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(0, 0), h.signBitfield(1, 0), bad}, h.chainLookup)
		require.ErrorIs(t, err, ErrInvalidBitfieldSignature)

		p, ok := h.pending(chainA)
		require.True(t, ok)
		assert.Zero(t, p.AvailabilityVotes.CountOnes())

		_, recorded, err := h.engine.AttestationRecord(0)
		require.NoError(t, err)
		assert.False(t, recorded)
	})

	t.Run("empty bitfield accepted", func(t *testing.T) {
		freed, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(2)}, h.chainLookup)
		require.NoError(t, err)
		assert.Empty(t, freed)

		rec, ok, err := h.engine.AttestationRecord(2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, h.nCores(), rec.Bitfield.Len())
		assert.Equal(t, h.host.round, rec.SubmittedAt)
	})

	t.Run("votes are recorded", func(t *testing.T) {
		_, err := h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(1, 0), h.signBitfield(4, 0)}, h.chainLookup)
		require.NoError(t, err)

		p, ok := h.pending(chainA)
		require.True(t, ok)
		assert.Equal(t, []int{1, 4}, p.AvailabilityVotes.Ones())
	})
}

func TestSupermajorityBitfieldsTriggerAvailability(t *testing.T) {
	const chainA, chainB primitives.ShardID = 1, 2

	h := newHarness(t, 5, 0, chainA, chainB)
	require.Equal(t, 4, SupermajorityThreshold(5))

	aCommitments := primitives.CandidateCommitments{
		HeadData:          primitives.HeadData{1, 2, 3, 4},
		NewValidationCode: primitives.ValidationCode{0xC0, 0xDE},
	}
	bCommitments := primitives.CandidateCommitments{HeadData: primitives.HeadData{5, 6, 7, 8}}

	aPending := h.seedPending(chainA, 0, 8, &aCommitments)
	h.seedPending(chainB, 1, 8, &bCommitments)

	bitfields := []primitives.SignedAvailabilityBitfield{
		h.signBitfield(0, 0, 1),
		h.signBitfield(1, 0, 1),
		h.signBitfield(2, 0, 1),
		h.signBitfield(3, 0),
	}

	freed, err := h.engine.ProcessBitfields(bitfields, h.chainLookup)
	require.NoError(t, err)
	assert.Equal(t, []primitives.CoreIndex{0}, freed)

	// A reached 4 of 5 and was enacted.
	_, ok := h.pending(chainA)
	assert.False(t, ok)
	assert.False(t, h.hasCommitments(chainA))
	assert.Equal(t, primitives.HeadData{1, 2, 3, 4}, h.paras.heads[chainA])
	assert.Equal(t, aPending.RelayParentNumber, h.paras.headRounds[chainA])

	require.Len(t, h.paras.upgrades, 1)
	assert.Equal(t, chainA, h.paras.upgrades[0].shard)
	assert.Equal(t, aPending.RelayParentNumber+5, h.paras.upgrades[0].at)

	// B has 3 of 5 and stays pending.
	b, ok := h.pending(chainB)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, b.AvailabilityVotes.Ones())
	assert.True(t, h.hasCommitments(chainB))

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventCandidateIncluded, events[0].Kind)
	assert.Equal(t, chainA, events[0].Receipt.Descriptor.ShardID)
	assert.Equal(t, aCommitments.Hash(), events[0].Receipt.CommitmentsHash)

	// A fourth vote pushes B over.
	freed, err = h.engine.ProcessBitfields([]primitives.SignedAvailabilityBitfield{h.signBitfield(4, 1)}, func(c primitives.CoreIndex) (primitives.ShardID, bool) {
		if c == 1 {
			return chainB, true
		}
		return 0, false
	})
	require.NoError(t, err)
	assert.Equal(t, []primitives.CoreIndex{1}, freed)
	assert.Equal(t, primitives.HeadData{5, 6, 7, 8}, h.paras.heads[chainB])
}

func TestDesyncedPendingIsSkipped(t *testing.T) {
	const chainA primitives.ShardID = 1

	h := newHarness(t, 5, 0, chainA)
	h.seedPending(chainA, 0, 8, nil)

	bitfields := []primitives.SignedAvailabilityBitfield{
		h.signBitfield(0, 0),
		h.signBitfield(1, 0),
		h.signBitfield(2, 0),
		h.signBitfield(3, 0),
	}

	freed, err := h.engine.ProcessBitfields(bitfields, h.chainLookup)
	require.NoError(t, err)
	assert.Empty(t, freed)
	assert.Empty(t, h.events.Events())
	assert.Equal(t, primitives.HeadData{byte(chainA)}, h.paras.heads[chainA])
}

func TestParathreadCoreCountsTowardBitfieldSize(t *testing.T) {
	const chainA, thread primitives.ShardID = 1, 50

	h := newHarness(t, 3, 1, chainA)
	h.seedPending(thread, 1, 9, &primitives.CandidateCommitments{HeadData: primitives.HeadData{7}})

	lookup := func(c primitives.CoreIndex) (primitives.ShardID, bool) {
		switch c {
		case 0:
			return chainA, true
		case 1:
			return thread, true
		}
		return 0, false
	}

	require.Equal(t, 2, h.nCores())

	bitfields := []primitives.SignedAvailabilityBitfield{
		h.signBitfield(0, 1),
		h.signBitfield(1, 1),
		h.signBitfield(2, 1),
	}

	freed, err := h.engine.ProcessBitfields(bitfields, lookup)
	require.NoError(t, err)
	assert.Equal(t, []primitives.CoreIndex{1}, freed)
	assert.Equal(t, primitives.HeadData{7}, h.paras.heads[thread])
}
