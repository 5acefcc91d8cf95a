// Package paras tracks the registered shards: their kind, current head,
// validation code and code-upgrade schedule. It is the collaborator the
// inclusion engine notes new heads and schedules upgrades with.
package paras

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"ShardRelay/internal/config"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/storage"
)

// Key prefixes for shard state in pebble.
var (
	registrationPrefix  = []byte("pr:") // shard -> registration record
	headPrefix          = []byte("ph:") // shard -> head data
	codePrefix          = []byte("pc:") // shard -> current validation code
	pastUpgradePrefix   = []byte("pp:") // shard -> round of the last applied upgrade
	futureUpgradePrefix = []byte("pf:") // shard -> scheduled upgrade record
)

// Prefixes lists every key prefix owned by this package, for snapshots.
func Prefixes() [][]byte {
	return [][]byte{registrationPrefix, headPrefix, codePrefix, pastUpgradePrefix, futureUpgradePrefix}
}

// ConfigSource provides the active host configuration.
type ConfigSource interface {
	Config() config.HostConfiguration
}

// Registration describes how a shard is scheduled.
type Registration struct {
	Kind             primitives.AssignmentKind // Kind is parachain or parathread
	RequiredCollator *primitives.CollatorID    // RequiredCollator restricts authorship when set
}

// Registry is the pebble-backed shard state.
type Registry struct {
	db  *storage.Storage                    // db is the underlying Pebble storage
	cfg ConfigSource                        // cfg supplies MaxPoVSize for validation data
	mu  sync.RWMutex                        // mu guards the cached shard lists
	ids []primitives.ShardID                // ids caches registered shards in ascending order
	reg map[primitives.ShardID]Registration // reg maps shard to registration
}

// New opens the registry over db and loads registered shards.
func New(db *storage.Storage, cfg ConfigSource) (*Registry, error) {
	r := &Registry{db: db, cfg: cfg}

	if err := r.reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// reload rebuilds the in-memory shard index from storage.
func (r *Registry) reload() error {
	reg := make(map[primitives.ShardID]Registration)

	err := r.db.IteratePrefix(registrationPrefix, func(key, value []byte) error {
		id, ok := shardFromKey(key, registrationPrefix)
		if !ok {
			return nil
		}

		rec, err := decodeRegistration(value)
		if err != nil {
			return fmt.Errorf("decode registration of shard %d:\n%w", id, err)
		}

		reg[id] = rec

		return nil
	})
	if err != nil {
		return fmt.Errorf("load registrations:\n%w", err)
	}

	ids := make([]primitives.ShardID, 0, len(reg))
	for id := range reg {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	r.mu.Lock()
	r.reg = reg
	r.ids = ids
	r.mu.Unlock()

	return nil
}

// Reload re-reads the shard index, used after a snapshot import.
func (r *Registry) Reload() error {
	return r.reload()
}

// Register adds a shard with its genesis head and code.
func (r *Registry) Register(id primitives.ShardID, reg Registration, head primitives.HeadData, code primitives.ValidationCode) error {
	r.mu.RLock()
	_, exists := r.reg[id]
	r.mu.RUnlock()

	if exists {
		return fmt.Errorf("shard %d already registered", id)
	}

	cfg := r.cfg.Config()
	if uint32(len(head)) > cfg.MaxHeadDataSize {
		return fmt.Errorf("shard %d: genesis head of %d bytes exceeds %d", id, len(head), cfg.MaxHeadDataSize)
	}

	if uint32(len(code)) > cfg.MaxCodeSize {
		return fmt.Errorf("shard %d: code of %d bytes exceeds %d", id, len(code), cfg.MaxCodeSize)
	}

	b := r.db.NewBatch()
	defer b.Close()

	if err := b.Set(makeKey(registrationPrefix, id), encodeRegistration(reg)); err != nil {
		return err
	}

	if err := b.Set(makeKey(headPrefix, id), head); err != nil {
		return err
	}

	if err := b.Set(makeKey(codePrefix, id), code); err != nil {
		return err
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("register shard %d:\n%w", id, err)
	}

	r.mu.Lock()
	r.reg[id] = reg
	r.ids = append(r.ids, id)
	slices.Sort(r.ids)
	r.mu.Unlock()

	logger.Info("shard registered", "shard", id, "kind", reg.Kind)

	return nil
}

// Parachains returns the registered parachains in ascending id order.
func (r *Registry) Parachains() []primitives.ShardID {
	return r.byKind(primitives.AssignmentParachain)
}

// Parathreads returns the registered parathreads in ascending id order.
func (r *Registry) Parathreads() []primitives.ShardID {
	return r.byKind(primitives.AssignmentParathread)
}

func (r *Registry) byKind(kind primitives.AssignmentKind) []primitives.ShardID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []primitives.ShardID
	for _, id := range r.ids {
		if r.reg[id].Kind == kind {
			out = append(out, id)
		}
	}

	return out
}

// Registration returns the shard's registration.
func (r *Registry) Registration(id primitives.ShardID) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.reg[id]

	return reg, ok
}

// Head returns the shard's current head.
func (r *Registry) Head(id primitives.ShardID) (primitives.HeadData, bool, error) {
	v, err := r.db.Get(makeKey(headPrefix, id))
	if err != nil {
		return nil, false, fmt.Errorf("read head of shard %d:\n%w", id, err)
	}

	return v, v != nil, nil
}

// Code returns the shard's current validation code.
func (r *Registry) Code(id primitives.ShardID) (primitives.ValidationCode, bool) {
	v, err := r.db.Get(makeKey(codePrefix, id))
	if err != nil || v == nil {
		return nil, false
	}

	return v, true
}

// PersistedValidationData returns the validation inputs for a candidate of
// the shard built on a relay parent at relayParentNumber, assuming the
// shard's current head is the parent head.
//
// ok is false for an unknown shard or one without a head.
func (r *Registry) PersistedValidationData(id primitives.ShardID, relayParentNumber primitives.Round) (primitives.PersistedValidationData, bool, error) {
	if _, ok := r.Registration(id); !ok {
		return primitives.PersistedValidationData{}, false, nil
	}

	head, ok, err := r.Head(id)
	if err != nil || !ok {
		return primitives.PersistedValidationData{}, false, err
	}

	return primitives.PersistedValidationData{
		ParentHead:        head,
		RelayParentNumber: relayParentNumber,
		MaxPoVSize:        r.cfg.Config().MaxPoVSize,
	}, true, nil
}

// NoteNewHead records head as the shard's current head, included at round.
func (r *Registry) NoteNewHead(id primitives.ShardID, head primitives.HeadData, round primitives.Round) error {
	if err := r.db.Set(makeKey(headPrefix, id), head); err != nil {
		return fmt.Errorf("note head of shard %d:\n%w", id, err)
	}

	logger.Debug("new head", "shard", id, "round", round, "len", len(head))

	return nil
}

// makeKey builds a shard key: prefix + big-endian shard id.
func makeKey(prefix []byte, id primitives.ShardID) []byte {
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(id))

	return key
}

// shardFromKey extracts the shard id from a key built by makeKey.
func shardFromKey(key, prefix []byte) (primitives.ShardID, bool) {
	if len(key) != len(prefix)+4 {
		return 0, false
	}

	return primitives.ShardID(binary.BigEndian.Uint32(key[len(prefix):])), true
}
