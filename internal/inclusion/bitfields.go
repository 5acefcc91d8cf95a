package inclusion

import (
	"fmt"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/primitives"
)

// coreRecord is the pending candidate found on a core during a bitfield batch.
type coreRecord struct {
	shard   primitives.ShardID
	pending PendingCandidate
}

// ProcessBitfields validates a batch of signed availability bitfields,
// folds them into the votes of pending candidates, and enacts every
// candidate that reaches a supermajority. It returns the cores freed by
// enactment.
//
// Bitfields must be sorted by strictly increasing validator index and
// have one bit per core.
func (e *Engine) ProcessBitfields(bitfields []primitives.SignedAvailabilityBitfield, lookup CoreLookup) ([]primitives.CoreIndex, error) {
	freed, err := e.processBitfields(bitfields, lookup)
	if err != nil {
		e.metrics.reject(err)
		return nil, err
	}

	return freed, nil
}

func (e *Engine) processBitfields(bitfields []primitives.SignedAvailabilityBitfield, lookup CoreLookup) ([]primitives.CoreIndex, error) {
	validators, err := e.store.validators()
	if err != nil {
		return nil, err
	}

	ctx, err := e.signingContext()
	if err != nil {
		return nil, err
	}

	nBits := len(e.paras.Parachains()) + int(e.cfg.Config().ParathreadCores)

	// records[i] is the pending candidate on core i, if any.
	records := make([]*coreRecord, nBits)
	occupied := bitfield.New(nBits)
	seen := make(map[primitives.ShardID]bool)

	for i := range nBits {
		id, ok := lookup(primitives.CoreIndex(i))
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		p, ok, err := e.store.pending(id)
		if err != nil {
			return nil, err
		}

		if ok {
			records[i] = &coreRecord{shard: id, pending: p}
			occupied.Set(i, true)
		}
	}

	if err := e.checkBitfields(bitfields, validators, occupied, nBits, ctx); err != nil {
		return nil, err
	}

	now := e.host.Round()

	b := e.store.db.NewBatch()
	defer b.Close()

	for _, bf := range bitfields {
		for _, core := range bf.Payload.Ones() {
			rec := records[core]

			if !rec.pending.AvailabilityVotes.Set(int(bf.ValidatorIndex), true) {
				if debugAssertions {
					return nil, fmt.Errorf("vote bitmap of shard %d has %d bits, validator %d:\n%w",
						rec.shard, rec.pending.AvailabilityVotes.Len(), bf.ValidatorIndex, ErrInternal)
				}

				e.log.Warn("validator index outside vote bitmap", "shard", rec.shard, "validator", bf.ValidatorIndex)
			}
		}

		record := AttestationRecord{Bitfield: bf.Payload, SubmittedAt: now}
		if err := b.Set(validatorKey(bf.ValidatorIndex), encodeAttestation(record)); err != nil {
			return nil, fmt.Errorf("queue attestation:\n%w", err)
		}
	}

	threshold := SupermajorityThreshold(len(validators))

	type available struct {
		pending     PendingCandidate
		commitments primitives.CandidateCommitments
	}

	var ready []available

	for _, rec := range records {
		if rec == nil {
			continue
		}

		if rec.pending.AvailabilityVotes.CountOnes() < threshold {
			if err := b.Set(shardKey(pendingPrefix, rec.shard), encodePending(rec.pending)); err != nil {
				return nil, fmt.Errorf("queue votes:\n%w", err)
			}

			continue
		}

		if err := b.Delete(shardKey(pendingPrefix, rec.shard)); err != nil {
			return nil, fmt.Errorf("queue pending removal:\n%w", err)
		}

		commitments, ok, err := e.store.commitments(rec.shard)
		if err != nil {
			return nil, err
		}

		if !ok {
			e.log.Warn("pending candidate without commitments", "shard", rec.shard, "core", rec.pending.Core)
			e.metrics.incDesync()

			continue
		}

		if err := b.Delete(shardKey(commitmentsPrefix, rec.shard)); err != nil {
			return nil, fmt.Errorf("queue commitments removal:\n%w", err)
		}

		ready = append(ready, available{pending: rec.pending, commitments: commitments})
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("commit bitfields:\n%w", err)
	}

	e.metrics.addBitfields(len(bitfields))

	// The cores are free once the batch commits, even if enactment fails.
	freed := make([]primitives.CoreIndex, 0, len(ready))
	for _, r := range ready {
		freed = append(freed, r.pending.Core)

		if err := e.enact(r.pending, r.commitments); err != nil {
			e.log.Error("enactment failed", "shard", r.pending.Descriptor.ShardID, "core", r.pending.Core, "error", err)
			e.metrics.incDesync()
		}
	}

	e.refreshPendingGauge()

	return freed, nil
}

// checkBitfields runs every per-bitfield check over the whole batch.
func (e *Engine) checkBitfields(
	bitfields []primitives.SignedAvailabilityBitfield,
	validators []primitives.ValidatorID,
	occupied bitfield.Bitfield,
	nBits int,
	ctx primitives.SigningContext,
) error {
	var last primitives.ValidatorIndex

	for i, bf := range bitfields {
		if bf.Payload.Len() != nBits {
			return fmt.Errorf("bitfield %d has %d bits, want %d:\n%w", i, bf.Payload.Len(), nBits, ErrWrongBitfieldSize)
		}

		if i > 0 && bf.ValidatorIndex <= last {
			return fmt.Errorf("validator %d after %d:\n%w", bf.ValidatorIndex, last, ErrBitfieldDuplicateOrUnordered)
		}

		if int(bf.ValidatorIndex) >= len(validators) {
			return fmt.Errorf("validator %d of %d:\n%w", bf.ValidatorIndex, len(validators), ErrValidatorIndexOutOfBounds)
		}

		if !bf.Payload.IsSubsetOf(occupied) {
			return fmt.Errorf("validator %d:\n%w", bf.ValidatorIndex, ErrUnoccupiedBitInBitfield)
		}

		payload := primitives.BitfieldPayload(bf.Payload, ctx)
		if !e.verifier.VerifyValidator(bf.Signature, payload, validators[bf.ValidatorIndex]) {
			return fmt.Errorf("validator %d:\n%w", bf.ValidatorIndex, ErrInvalidBitfieldSignature)
		}

		last = bf.ValidatorIndex
	}

	return nil
}
