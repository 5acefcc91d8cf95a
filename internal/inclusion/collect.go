package inclusion

import (
	"fmt"

	"ShardRelay/internal/primitives"
)

// CollectPending evicts every pending candidate for which pred(core,
// backedIn) holds and returns the freed cores in ascending shard order.
// A candidate whose commitments are missing is still evicted, without an event.
func (e *Engine) CollectPending(pred func(primitives.CoreIndex, primitives.Round) bool) ([]primitives.CoreIndex, error) {
	all, err := e.store.allPending()
	if err != nil {
		return nil, err
	}

	b := e.store.db.NewBatch()
	defer b.Close()

	var (
		freed  []primitives.CoreIndex
		events []Event
	)

	for _, p := range all {
		if !pred(p.Core, p.BackedInNumber) {
			continue
		}

		id := p.Descriptor.ShardID

		commitments, ok, err := e.store.commitments(id)
		if err != nil {
			return nil, err
		}

		if err := b.Delete(shardKey(pendingPrefix, id)); err != nil {
			return nil, fmt.Errorf("queue pending removal:\n%w", err)
		}

		if err := b.Delete(shardKey(commitmentsPrefix, id)); err != nil {
			return nil, fmt.Errorf("queue commitments removal:\n%w", err)
		}

		freed = append(freed, p.Core)

		if !ok {
			e.log.Warn("timed out candidate without commitments", "shard", id, "core", p.Core)
			e.metrics.incDesync()

			continue
		}

		events = append(events, Event{
			Kind:     EventCandidateTimedOut,
			Receipt:  primitives.CandidateReceipt{Descriptor: p.Descriptor, CommitmentsHash: commitments.Hash()},
			HeadData: commitments.HeadData,
		})
	}

	if len(freed) == 0 {
		return nil, nil
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("commit timeout sweep:\n%w", err)
	}

	for _, ev := range events {
		e.events.Emit(ev)
		e.metrics.incTimedOut()
		e.log.Debug("candidate timed out", "shard", ev.Receipt.Descriptor.ShardID)
	}

	e.refreshPendingGauge()

	return freed, nil
}

// ForceEnact enacts the shard's pending candidate regardless of its votes
// and clears it. It does nothing unless both the candidate and its
// commitments exist.
func (e *Engine) ForceEnact(id primitives.ShardID) error {
	p, ok, err := e.store.pending(id)
	if err != nil {
		return err
	}

	c, hasCommitments, err := e.store.commitments(id)
	if err != nil {
		return err
	}

	if !ok || !hasCommitments {
		return nil
	}

	b := e.store.db.NewBatch()
	defer b.Close()

	if err := b.Delete(shardKey(pendingPrefix, id)); err != nil {
		return fmt.Errorf("queue pending removal:\n%w", err)
	}

	if err := b.Delete(shardKey(commitmentsPrefix, id)); err != nil {
		return fmt.Errorf("queue commitments removal:\n%w", err)
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit forced enactment:\n%w", err)
	}

	if err := e.enact(p, c); err != nil {
		return err
	}

	e.refreshPendingGauge()

	return nil
}
