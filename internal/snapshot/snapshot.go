// Package snapshot exports and imports the relay state as a single
// checksummed, zstd-compressed flatbuffers blob.
//
// A snapshot covers every key under a caller-supplied set of prefixes.
// Importing replaces those prefixes wholesale, so a node restored from a
// snapshot resumes exactly where the exporting node stopped.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"ShardRelay/internal/codec"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/storage"
)

// Version is the current snapshot format version.
const Version = 1

// Snapshot table slots.
const (
	slotVersion = iota
	slotRound
	slotKeys
	slotValues
	slotChecksum
	slotCount
)

// Entry is one stored key/value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Snapshot is a decoded, checksum-verified snapshot.
type Snapshot struct {
	Version  uint32   // Version is the format version
	Round    uint64   // Round is the round the exporting chain was building
	Entries  []Entry  // Entries are sorted by key
	Checksum [32]byte // Checksum is blake3 over the canonical entry encoding
}

// Create collects every key under prefixes and builds an uncompressed snapshot.
func Create(db *storage.Storage, round uint64, prefixes [][]byte) ([]byte, error) {
	var entries []Entry

	for _, p := range prefixes {
		err := db.IteratePrefix(p, func(key, value []byte) error {
			// iterator buffers are reused
			entries = append(entries, Entry{
				Key:   bytes.Clone(key),
				Value: bytes.Clone(value),
			})

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collect prefix %q:\n%w", p, err)
		}
	}

	return build(round, entries), nil
}

// build sorts the entries and writes the flatbuffers snapshot with checksum.
func build(round uint64, entries []Entry) []byte {
	sortEntries(entries)
	sum := checksum(Version, round, entries)

	keys := make([][]byte, len(entries))
	values := make([][]byte, len(entries))
	size := 64

	for i, e := range entries {
		keys[i] = e.Key
		values[i] = e.Value
		size += len(e.Key) + len(e.Value) + 8
	}

	b := flatbuffers.NewBuilder(size)

	keysOff := codec.BytesListVector(b, keys)
	valuesOff := codec.BytesListVector(b, values)
	sumOff := b.CreateByteVector(sum[:])

	b.StartObject(slotCount)
	b.PrependUint32Slot(slotVersion, Version, 0)
	b.PrependUint64Slot(slotRound, round, 0)
	b.PrependUOffsetTSlot(slotKeys, keysOff, 0)
	b.PrependUOffsetTSlot(slotValues, valuesOff, 0)
	b.PrependUOffsetTSlot(slotChecksum, sumOff, 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// Read decodes a snapshot and verifies its checksum.
func Read(data []byte) (*Snapshot, error) {
	t, err := codec.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open snapshot:\n%w", err)
	}

	s := &Snapshot{
		Version: t.Uint32(slotVersion),
		Round:   t.Uint64(slotRound),
	}

	if s.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}

	if !t.Fixed(slotChecksum, s.Checksum[:]) {
		return nil, fmt.Errorf("invalid checksum length")
	}

	keys := t.BytesList(slotKeys)
	values := t.BytesList(slotValues)

	if len(keys) != len(values) {
		return nil, fmt.Errorf("snapshot has %d keys but %d values", len(keys), len(values))
	}

	s.Entries = make([]Entry, len(keys))
	for i := range keys {
		s.Entries[i] = Entry{Key: keys[i], Value: values[i]}
	}

	sortEntries(s.Entries)

	if computed := checksum(s.Version, s.Round, s.Entries); computed != s.Checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}

	return s, nil
}

// Apply verifies data and replaces every key under prefixes with the
// snapshot's entries in one batch. Entries outside prefixes are rejected.
func Apply(db *storage.Storage, data []byte, prefixes [][]byte) (*Snapshot, error) {
	s, err := Read(data)
	if err != nil {
		return nil, fmt.Errorf("verify snapshot:\n%w", err)
	}

	for _, e := range s.Entries {
		if !covered(e.Key, prefixes) {
			return nil, fmt.Errorf("snapshot key %q outside restored prefixes", e.Key)
		}
	}

	b := db.NewBatch()
	defer b.Close()

	for _, p := range prefixes {
		if err := b.DeletePrefix(p); err != nil {
			return nil, fmt.Errorf("clear prefix %q:\n%w", p, err)
		}
	}

	for _, e := range s.Entries {
		if err := b.Set(e.Key, e.Value); err != nil {
			return nil, fmt.Errorf("write entry:\n%w", err)
		}
	}

	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot:\n%w", err)
	}

	logger.Info("snapshot applied", "round", s.Round, "entries", len(s.Entries))

	return s, nil
}

func covered(key []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(key, p) {
			return true
		}
	}

	return false
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}

// checksum hashes version, round and the sorted entries.
// Format: version (4 bytes) + round (8 bytes) + per entry u32 key len, key, u32 value len, value.
func checksum(version uint32, round uint64, entries []Entry) [32]byte {
	h := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	h.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], round)
	h.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Key)))
		h.Write(buf[:4])
		h.Write(e.Key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Value)))
		h.Write(buf[:4])
		h.Write(e.Value)
	}

	var sum [32]byte
	h.Sum(sum[:0])

	return sum
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer dec.Close()

	return dec.DecodeAll(data, nil)
}
