package relay

import (
	"encoding/binary"
	"fmt"

	"ShardRelay/internal/primitives"
)

// ExecuteRound builds one round with inherents from author and seals it.
//
// Invalid bitfield or candidate batches are dropped for the round rather
// than failing it; only storage errors abort.
func (c *Chain) ExecuteRound(author Author) (RoundResult, error) {
	if !c.Started() {
		return RoundResult{}, fmt.Errorf("chain not started")
	}

	res := RoundResult{Round: c.round}

	upgraded, err := c.paras.ApplyScheduledUpgrades(c.round)
	if err != nil {
		return res, fmt.Errorf("round %d:\n%w", c.round, err)
	}
	res.Upgraded = upgraded

	timedOut, err := c.engine.CollectPending(c.sched.AvailabilityTimeoutPredicate(c.round))
	if err != nil {
		return res, fmt.Errorf("round %d: timeout sweep:\n%w", c.round, err)
	}
	res.TimedOut = timedOut
	c.sched.FreeCores(timedOut)

	available, err := c.engine.ProcessBitfields(author.Bitfields(c), c.sched.CoreShard)
	if err != nil {
		c.log.Warn("bitfields rejected", "round", c.round, "error", err)
	}
	res.Available = available
	c.sched.FreeCores(available)

	// A candidate dropped without enactment leaves its core marked.
	if err := c.restoreOccupancy(); err != nil {
		return res, err
	}

	scheduled := c.sched.Schedule(c.round)

	occupied, err := c.engine.ProcessCandidates(author.Candidates(c, scheduled), scheduled, c.sched.GroupValidators)
	if err != nil {
		c.log.Warn("candidates rejected", "round", c.round, "error", err)
	}
	res.Occupied = occupied
	c.sched.Occupied(occupied)

	res.Events = c.events.Drain()
	res.Hash = c.seal(res)

	c.log.Debug("round sealed",
		"round", c.round,
		"hash", res.Hash.Short(),
		"included", len(res.Available),
		"backed", len(res.Occupied),
		"timed_out", len(res.TimedOut),
	)

	c.mu.Lock()
	c.parent = res.Hash
	c.round++
	c.mu.Unlock()

	if (c.round-1)%c.sessionLength == 0 {
		session, err := c.engine.SessionIndex()
		if err != nil {
			return res, err
		}

		if err := c.startSession(session + 1); err != nil {
			return res, fmt.Errorf("round %d: session change:\n%w", c.round, err)
		}

		res.NewSession = true
	}

	if err := c.persist(); err != nil {
		return res, err
	}

	if c.sink != nil {
		for _, ev := range res.Events {
			c.sink.Emit(ev)
		}
	}

	return res, nil
}

// seal hashes the parent, the round number and the round's events.
func (c *Chain) seal(res RoundResult) primitives.Hash {
	parts := [][]byte{
		[]byte("relay-round"),
		c.parent[:],
		binary.BigEndian.AppendUint64(nil, uint64(res.Round)),
	}

	for _, ev := range res.Events {
		h := ev.Receipt.Hash()
		parts = append(parts, []byte{byte(ev.Kind)}, h[:])
	}

	return primitives.HashBytes(parts...)
}
