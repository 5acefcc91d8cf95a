package paras

import (
	"encoding/binary"
	"fmt"

	"ShardRelay/internal/logger"
	"ShardRelay/internal/primitives"
)

// FutureUpgrade is a code upgrade waiting for its effective round.
type FutureUpgrade struct {
	At   primitives.Round          // At is the round the code takes effect
	Code primitives.ValidationCode // Code is the new validation code
}

// LastCodeUpgrade returns the round of the shard's most recent code change.
// With includeFuture, a scheduled but not yet applied upgrade counts and
// its effective round is returned.
func (r *Registry) LastCodeUpgrade(id primitives.ShardID, includeFuture bool) (primitives.Round, bool) {
	if includeFuture {
		if up, ok := r.FutureUpgrade(id); ok {
			return up.At, true
		}
	}

	v, err := r.db.Get(makeKey(pastUpgradePrefix, id))
	if err != nil || len(v) != 8 {
		return 0, false
	}

	return primitives.Round(binary.BigEndian.Uint64(v)), true
}

// FutureUpgrade returns the shard's scheduled upgrade, if any.
func (r *Registry) FutureUpgrade(id primitives.ShardID) (FutureUpgrade, bool) {
	v, err := r.db.Get(makeKey(futureUpgradePrefix, id))
	if err != nil || v == nil {
		return FutureUpgrade{}, false
	}

	up, err := decodeFutureUpgrade(v)
	if err != nil {
		logger.Warn("corrupt future upgrade", "shard", id, "error", err)
		return FutureUpgrade{}, false
	}

	return up, true
}

// ScheduleCodeUpgrade records code to replace the shard's code at round at.
// A later schedule overwrites an earlier one that has not applied yet.
func (r *Registry) ScheduleCodeUpgrade(id primitives.ShardID, code primitives.ValidationCode, at primitives.Round) error {
	if limit := r.cfg.Config().MaxCodeSize; uint32(len(code)) > limit {
		return fmt.Errorf("shard %d: code of %d bytes exceeds %d", id, len(code), limit)
	}

	if err := r.db.Set(makeKey(futureUpgradePrefix, id), encodeFutureUpgrade(FutureUpgrade{At: at, Code: code})); err != nil {
		return fmt.Errorf("schedule upgrade of shard %d:\n%w", id, err)
	}

	logger.Info("code upgrade scheduled", "shard", id, "at", at, "size", len(code))

	return nil
}

// ApplyScheduledUpgrades swaps in every scheduled code whose effective
// round is at or before now, and returns the upgraded shards in order.
func (r *Registry) ApplyScheduledUpgrades(now primitives.Round) ([]primitives.ShardID, error) {
	type due struct {
		id primitives.ShardID
		up FutureUpgrade
	}

	var ready []due

	err := r.db.IteratePrefix(futureUpgradePrefix, func(key, value []byte) error {
		id, ok := shardFromKey(key, futureUpgradePrefix)
		if !ok {
			return nil
		}

		up, err := decodeFutureUpgrade(value)
		if err != nil {
			return fmt.Errorf("decode upgrade of shard %d:\n%w", id, err)
		}

		if up.At <= now {
			ready = append(ready, due{id: id, up: up})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(ready) == 0 {
		return nil, nil
	}

	b := r.db.NewBatch()
	defer b.Close()

	applied := make([]primitives.ShardID, 0, len(ready))
	for _, d := range ready {
		var at [8]byte
		binary.BigEndian.PutUint64(at[:], uint64(d.up.At))

		if err := b.Set(makeKey(codePrefix, d.id), d.up.Code); err != nil {
			return nil, err
		}

		if err := b.Set(makeKey(pastUpgradePrefix, d.id), at[:]); err != nil {
			return nil, err
		}

		if err := b.Delete(makeKey(futureUpgradePrefix, d.id)); err != nil {
			return nil, err
		}

		applied = append(applied, d.id)
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("apply code upgrades:\n%w", err)
	}

	for _, d := range ready {
		logger.Info("code upgrade applied", "shard", d.id, "round", now)
	}

	return applied, nil
}
