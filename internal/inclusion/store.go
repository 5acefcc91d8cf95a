package inclusion

import (
	"encoding/binary"
	"fmt"

	"ShardRelay/internal/primitives"
	"ShardRelay/internal/storage"
)

// Key prefixes for engine state in pebble.
var (
	attestationPrefix = []byte("ia:") // validator index -> AttestationRecord
	pendingPrefix     = []byte("ip:") // shard -> PendingCandidate
	commitmentsPrefix = []byte("ic:") // shard -> CandidateCommitments
	validatorsKey     = []byte("iv:") // concatenated validator keys
	sessionKey        = []byte("is:") // session index
)

// Prefixes lists every key prefix owned by the engine, for snapshots.
func Prefixes() [][]byte {
	return [][]byte{attestationPrefix, pendingPrefix, commitmentsPrefix, validatorsKey, sessionKey}
}

// store reads and writes engine state.
type store struct {
	db *storage.Storage // db is the underlying Pebble storage
}

func (s *store) pending(id primitives.ShardID) (PendingCandidate, bool, error) {
	v, err := s.db.Get(shardKey(pendingPrefix, id))
	if err != nil {
		return PendingCandidate{}, false, fmt.Errorf("read pending candidate of shard %d:\n%w", id, err)
	}

	if v == nil {
		return PendingCandidate{}, false, nil
	}

	p, err := decodePending(v)
	if err != nil {
		return PendingCandidate{}, false, fmt.Errorf("decode pending candidate of shard %d:\n%w", id, err)
	}

	return p, true, nil
}

func (s *store) commitments(id primitives.ShardID) (primitives.CandidateCommitments, bool, error) {
	v, err := s.db.Get(shardKey(commitmentsPrefix, id))
	if err != nil {
		return primitives.CandidateCommitments{}, false, fmt.Errorf("read commitments of shard %d:\n%w", id, err)
	}

	if v == nil {
		return primitives.CandidateCommitments{}, false, nil
	}

	c, err := decodeCommitments(v)
	if err != nil {
		return primitives.CandidateCommitments{}, false, fmt.Errorf("decode commitments of shard %d:\n%w", id, err)
	}

	return c, true, nil
}

// hasAny reports whether the shard has a pending candidate or lingering commitments.
func (s *store) hasAny(id primitives.ShardID) (bool, error) {
	for _, prefix := range [][]byte{pendingPrefix, commitmentsPrefix} {
		ok, err := s.db.Has(shardKey(prefix, id))
		if err != nil {
			return false, fmt.Errorf("read pending state of shard %d:\n%w", id, err)
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

// allPending returns every pending candidate in ascending shard order.
func (s *store) allPending() ([]PendingCandidate, error) {
	var out []PendingCandidate

	err := s.db.IteratePrefix(pendingPrefix, func(key, value []byte) error {
		p, err := decodePending(value)
		if err != nil {
			return fmt.Errorf("decode pending candidate %x:\n%w", key, err)
		}

		out = append(out, p)

		return nil
	})

	return out, err
}

func (s *store) attestation(v primitives.ValidatorIndex) (AttestationRecord, bool, error) {
	raw, err := s.db.Get(validatorKey(v))
	if err != nil {
		return AttestationRecord{}, false, fmt.Errorf("read attestation of validator %d:\n%w", v, err)
	}

	if raw == nil {
		return AttestationRecord{}, false, nil
	}

	r, err := decodeAttestation(raw)
	if err != nil {
		return AttestationRecord{}, false, fmt.Errorf("decode attestation of validator %d:\n%w", v, err)
	}

	return r, true, nil
}

func (s *store) validators() ([]primitives.ValidatorID, error) {
	raw, err := s.db.Get(validatorsKey)
	if err != nil {
		return nil, fmt.Errorf("read validators:\n%w", err)
	}

	if len(raw)%primitives.ValidatorIDSize != 0 {
		return nil, fmt.Errorf("validator list of %d bytes is not a multiple of %d", len(raw), primitives.ValidatorIDSize)
	}

	out := make([]primitives.ValidatorID, len(raw)/primitives.ValidatorIDSize)
	for i := range out {
		copy(out[i][:], raw[i*primitives.ValidatorIDSize:])
	}

	return out, nil
}

func (s *store) sessionIndex() (primitives.SessionIndex, error) {
	raw, err := s.db.Get(sessionKey)
	if err != nil {
		return 0, fmt.Errorf("read session index:\n%w", err)
	}

	if len(raw) != 4 {
		return 0, nil
	}

	return primitives.SessionIndex(binary.BigEndian.Uint32(raw)), nil
}

func encodeValidators(ids []primitives.ValidatorID) []byte {
	out := make([]byte, 0, len(ids)*primitives.ValidatorIDSize)
	for _, id := range ids {
		out = append(out, id[:]...)
	}

	return out
}

func encodeSession(idx primitives.SessionIndex) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(idx))
}

// shardKey builds a shard key: prefix + big-endian shard id.
func shardKey(prefix []byte, id primitives.ShardID) []byte {
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(id))

	return key
}

// validatorKey builds an attestation key: "ia:" + big-endian validator index.
func validatorKey(v primitives.ValidatorIndex) []byte {
	key := make([]byte, len(attestationPrefix)+4)
	copy(key, attestationPrefix)
	binary.BigEndian.PutUint32(key[len(attestationPrefix):], uint32(v))

	return key
}
