package inclusion

import (
	"fmt"

	"ShardRelay/internal/config"
	"ShardRelay/internal/primitives"
)

// SessionChangeNotification announces a new validator set.
type SessionChangeNotification struct {
	Validators   []primitives.ValidatorID // Validators is the new active set
	Queued       []primitives.ValidatorID // Queued is the set for the session after
	PrevConfig   config.HostConfiguration // PrevConfig was active in the ending session
	NewConfig    config.HostConfiguration // NewConfig is active from this session
	RandomSeed   [32]byte                 // RandomSeed is the session randomness
	SessionIndex primitives.SessionIndex  // SessionIndex is the new session's index
}

// OnNewSession drops every attestation record and pending candidate and
// installs the new validator set and session index in one batch.
func (e *Engine) OnNewSession(n SessionChangeNotification) error {
	b := e.store.db.NewBatch()
	defer b.Close()

	for _, prefix := range [][]byte{attestationPrefix, pendingPrefix, commitmentsPrefix} {
		if err := b.DeletePrefix(prefix); err != nil {
			return fmt.Errorf("queue session wipe:\n%w", err)
		}
	}

	if err := b.Set(validatorsKey, encodeValidators(n.Validators)); err != nil {
		return fmt.Errorf("queue validators:\n%w", err)
	}

	if err := b.Set(sessionKey, encodeSession(n.SessionIndex)); err != nil {
		return fmt.Errorf("queue session index:\n%w", err)
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit session change:\n%w", err)
	}

	e.metrics.setPending(0)
	e.log.Info("session changed", "session", n.SessionIndex, "validators", len(n.Validators))

	return nil
}
