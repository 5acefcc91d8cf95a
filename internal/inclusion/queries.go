package inclusion

import "ShardRelay/internal/primitives"

// PendingAvailability returns the shard's pending candidate.
func (e *Engine) PendingAvailability(id primitives.ShardID) (PendingCandidate, bool, error) {
	return e.store.pending(id)
}

// CandidatePendingAvailability returns the full receipt of the shard's
// pending candidate. Both the candidate and its commitments must exist.
func (e *Engine) CandidatePendingAvailability(id primitives.ShardID) (primitives.CommittedCandidateReceipt, bool, error) {
	p, ok, err := e.store.pending(id)
	if err != nil || !ok {
		return primitives.CommittedCandidateReceipt{}, false, err
	}

	c, ok, err := e.store.commitments(id)
	if err != nil || !ok {
		return primitives.CommittedCandidateReceipt{}, false, err
	}

	return primitives.CommittedCandidateReceipt{Descriptor: p.Descriptor, Commitments: c}, true, nil
}

// AllPending returns every pending candidate in ascending shard order.
func (e *Engine) AllPending() ([]PendingCandidate, error) {
	return e.store.allPending()
}

// AttestationRecord returns the validator's latest accepted bitfield.
func (e *Engine) AttestationRecord(v primitives.ValidatorIndex) (AttestationRecord, bool, error) {
	return e.store.attestation(v)
}

// Validators returns the current validator set.
func (e *Engine) Validators() ([]primitives.ValidatorID, error) {
	return e.store.validators()
}

// SessionIndex returns the current session index.
func (e *Engine) SessionIndex() (primitives.SessionIndex, error) {
	return e.store.sessionIndex()
}
