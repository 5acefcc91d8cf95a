package inclusion

import (
	"errors"
	"fmt"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/config"
	"ShardRelay/internal/primitives"
)

// ProcessCandidates validates a batch of backed candidates against the
// round's core assignments and admits them as pending availability. It
// returns the cores the admitted candidates occupy.
//
// Candidates must appear in the order of their assigned cores, and the
// assignments must be sorted by strictly increasing core.
func (e *Engine) ProcessCandidates(candidates []primitives.BackedCandidate, scheduled []primitives.CoreAssignment, groups GroupLookup) ([]primitives.CoreIndex, error) {
	occupied, err := e.processCandidates(candidates, scheduled, groups)
	if err != nil {
		e.metrics.reject(err)
		return nil, err
	}

	return occupied, nil
}

// errNoValidationData aborts matching when the shard-state manager cannot
// produce validation data; the batch is then dropped without an error.
var errNoValidationData = errors.New("no persisted validation data")

func (e *Engine) processCandidates(candidates []primitives.BackedCandidate, scheduled []primitives.CoreAssignment, groups GroupLookup) ([]primitives.CoreIndex, error) {
	if len(candidates) > len(scheduled) {
		return nil, fmt.Errorf("%d candidates for %d assignments:\n%w", len(candidates), len(scheduled), ErrUnscheduledCandidate)
	}

	if len(scheduled) == 0 {
		return nil, nil
	}

	validators, err := e.store.validators()
	if err != nil {
		return nil, err
	}

	ctx, err := e.signingContext()
	if err != nil {
		return nil, err
	}

	m := matcher{
		engine:            e,
		scheduled:         scheduled,
		groups:            groups,
		validators:        validators,
		ctx:               ctx,
		parentHash:        e.host.ParentHash(),
		relayParentNumber: e.host.Round().SaturatingSub(1),
		cfg:               e.cfg.Config(),
	}

	cores := make([]primitives.CoreIndex, 0, len(candidates))

	for i := range candidates {
		core, err := m.match(&candidates[i])
		if errors.Is(err, errNoValidationData) {
			e.log.Warn("no validation data, dropping candidate batch", "shard", candidates[i].Candidate.Descriptor.ShardID)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("candidate %d:\n%w", i, err)
		}

		cores = append(cores, core)
	}

	for _, a := range scheduled[m.skip:] {
		if err := m.inOrder(a); err != nil {
			return nil, err
		}
	}

	if err := e.admit(candidates, cores, len(validators)); err != nil {
		return nil, err
	}

	return cores, nil
}

// matcher walks the assignments with a single forward cursor.
type matcher struct {
	engine            *Engine
	scheduled         []primitives.CoreAssignment
	groups            GroupLookup
	validators        []primitives.ValidatorID
	ctx               primitives.SigningContext
	parentHash        primitives.Hash
	relayParentNumber primitives.Round
	cfg               config.HostConfiguration

	skip     int                  // skip is the first assignment not yet visited
	lastCore primitives.CoreIndex // lastCore is the core of the last visited assignment
	visited  bool                 // visited is false until the first assignment is seen
}

// inOrder checks that cores strictly increase across visited assignments.
func (m *matcher) inOrder(a primitives.CoreAssignment) error {
	if m.visited && a.Core <= m.lastCore {
		return fmt.Errorf("core %d after %d:\n%w", a.Core, m.lastCore, ErrScheduledOutOfOrder)
	}

	m.lastCore, m.visited = a.Core, true

	return nil
}

// match validates one candidate and returns the core it is assigned to.
func (m *matcher) match(c *primitives.BackedCandidate) (primitives.CoreIndex, error) {
	d := c.Candidate.Descriptor

	if d.RelayParent != m.parentHash {
		return 0, fmt.Errorf("relay parent %s, want %s:\n%w", d.RelayParent.Short(), m.parentHash.Short(), ErrCandidateNotInParentContext)
	}

	if err := m.checkSizes(c.Candidate.Commitments); err != nil {
		return 0, fmt.Errorf("shard %d: %v:\n%w", d.ShardID, err, ErrCommitmentsTooLarge)
	}

	if c.Candidate.Commitments.HasNewCode() && !m.upgradeAllowed(d.ShardID) {
		return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrPrematureCodeUpgrade)
	}

	if !m.engine.verifier.VerifyCollator(d.Signature, d.CollatorPayload(), d.Collator) {
		return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrNotCollatorSigned)
	}

	for i, a := range m.scheduled[m.skip:] {
		if err := m.inOrder(a); err != nil {
			return 0, err
		}

		if a.ShardID != d.ShardID {
			continue
		}

		if a.RequiredCollator != nil && *a.RequiredCollator != d.Collator {
			return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrWrongCollator)
		}

		pvd, ok, err := m.engine.paras.PersistedValidationData(d.ShardID, m.relayParentNumber)
		if err != nil {
			return 0, fmt.Errorf("validation data of shard %d:\n%w", d.ShardID, err)
		}
		if !ok {
			return 0, errNoValidationData
		}

		if pvd.Hash() != d.PersistedValidationDataHash {
			return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrValidationDataHashMismatch)
		}

		busy, err := m.engine.store.hasAny(d.ShardID)
		if err != nil {
			return 0, err
		}

		if busy {
			return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrCandidateScheduledBeforeParaFree)
		}

		m.skip += i + 1

		group, ok := m.groups(a.Group)
		if !ok {
			return 0, fmt.Errorf("group %d:\n%w", a.Group, ErrInvalidGroupIndex)
		}

		signed, err := checkBacking(m.engine.verifier, c, m.ctx, group, m.validators)
		if err != nil {
			return 0, fmt.Errorf("shard %d: %v:\n%w", d.ShardID, err, ErrInvalidBacking)
		}

		if signed*2 <= len(group) {
			return 0, fmt.Errorf("shard %d: %d of %d:\n%w", d.ShardID, signed, len(group), ErrInsufficientBacking)
		}

		return a.Core, nil
	}

	return 0, fmt.Errorf("shard %d:\n%w", d.ShardID, ErrUnscheduledCandidate)
}

// checkSizes bounds the head and code a candidate would enact.
func (m *matcher) checkSizes(c primitives.CandidateCommitments) error {
	if uint32(len(c.HeadData)) > m.cfg.MaxHeadDataSize {
		return fmt.Errorf("head of %d bytes exceeds %d", len(c.HeadData), m.cfg.MaxHeadDataSize)
	}

	if uint32(len(c.NewValidationCode)) > m.cfg.MaxCodeSize {
		return fmt.Errorf("code of %d bytes exceeds %d", len(c.NewValidationCode), m.cfg.MaxCodeSize)
	}

	return nil
}

// upgradeAllowed reports whether the shard may schedule new code: it has
// never upgraded, or its last upgrade (counting a scheduled one) is at
// least the upgrade frequency behind the relay parent.
func (m *matcher) upgradeAllowed(id primitives.ShardID) bool {
	last, ok := m.engine.paras.LastCodeUpgrade(id, true)
	if !ok {
		return true
	}

	return last <= m.relayParentNumber && m.relayParentNumber-last >= m.cfg.ValidationUpgradeFrequency
}

// admit writes the validated candidates as pending availability.
func (e *Engine) admit(candidates []primitives.BackedCandidate, cores []primitives.CoreIndex, validatorCount int) error {
	now := e.host.Round()
	relayParentNumber := now.SaturatingSub(1)

	b := e.store.db.NewBatch()
	defer b.Close()

	for i, c := range candidates {
		p := PendingCandidate{
			Core:              cores[i],
			Descriptor:        c.Candidate.Descriptor,
			AvailabilityVotes: bitfield.New(validatorCount),
			RelayParentNumber: relayParentNumber,
			BackedInNumber:    now,
		}

		id := c.Candidate.Descriptor.ShardID

		if err := b.Set(shardKey(pendingPrefix, id), encodePending(p)); err != nil {
			return fmt.Errorf("queue pending candidate:\n%w", err)
		}

		if err := b.Set(shardKey(commitmentsPrefix, id), encodeCommitments(c.Candidate.Commitments)); err != nil {
			return fmt.Errorf("queue commitments:\n%w", err)
		}
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit candidates:\n%w", err)
	}

	for i, c := range candidates {
		e.events.Emit(Event{
			Kind:     EventCandidateBacked,
			Receipt:  c.Candidate.ToPlain(),
			HeadData: c.Candidate.Commitments.HeadData,
		})

		e.log.Debug("candidate backed",
			"shard", c.Candidate.Descriptor.ShardID,
			"core", cores[i],
			"hash", c.Candidate.Hash().Short(),
		)
	}

	e.metrics.addBacked(len(candidates))
	e.refreshPendingGauge()

	return nil
}
