package inclusion

import (
	"fmt"

	"ShardRelay/internal/primitives"
)

// enact applies an available candidate to its shard: schedules any new
// code, emits CandidateIncluded and notes the new head.
func (e *Engine) enact(p PendingCandidate, c primitives.CandidateCommitments) error {
	id := p.Descriptor.ShardID

	if c.HasNewCode() {
		at := p.RelayParentNumber + e.cfg.Config().ValidationUpgradeDelay
		if err := e.paras.ScheduleCodeUpgrade(id, c.NewValidationCode, at); err != nil {
			return fmt.Errorf("enact shard %d:\n%w", id, err)
		}
	}

	receipt := primitives.CandidateReceipt{Descriptor: p.Descriptor, CommitmentsHash: c.Hash()}

	e.events.Emit(Event{Kind: EventCandidateIncluded, Receipt: receipt, HeadData: c.HeadData})

	if err := e.paras.NoteNewHead(id, c.HeadData, p.RelayParentNumber); err != nil {
		return fmt.Errorf("enact shard %d:\n%w", id, err)
	}

	e.metrics.incIncluded()
	e.log.Debug("candidate included", "shard", id, "core", p.Core, "hash", receipt.Hash().Short())

	return nil
}
