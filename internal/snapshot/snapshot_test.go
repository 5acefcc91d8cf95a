package snapshot

import (
	"bytes"
	"testing"

	"ShardRelay/internal/config"
	"ShardRelay/internal/devnet"
	"ShardRelay/internal/relay"
	"ShardRelay/internal/storage"
)

var testPrefixes = [][]byte{[]byte("a:"), []byte("b:")}

// createTestStorage creates an in-memory storage for testing.
func createTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}

func put(t *testing.T, db *storage.Storage, key, value string) {
	t.Helper()

	if err := db.Set([]byte(key), []byte(value)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestCreate_EmptyStorage(t *testing.T) {
	db := createTestStorage(t)

	data, err := Create(db, 0, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if s.Version != Version {
		t.Errorf("version = %d, want %d", s.Version, Version)
	}

	if len(s.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(s.Entries))
	}
}

func TestCreate_OnlyListedPrefixes(t *testing.T) {
	db := createTestStorage(t)
	put(t, db, "b:2", "two")
	put(t, db, "a:1", "one")
	put(t, db, "c:3", "three")

	data, err := Create(db, 7, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if s.Round != 7 {
		t.Errorf("round = %d, want 7", s.Round)
	}

	if len(s.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(s.Entries))
	}

	if string(s.Entries[0].Key) != "a:1" || string(s.Entries[1].Key) != "b:2" {
		t.Errorf("entries not sorted: %q, %q", s.Entries[0].Key, s.Entries[1].Key)
	}
}

func TestCreate_Deterministic(t *testing.T) {
	db := createTestStorage(t)
	put(t, db, "a:x", "1")
	put(t, db, "b:y", "2")

	first, err := Create(db, 3, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// same keys, prefixes listed in the other order
	second, err := Create(db, 3, [][]byte{[]byte("b:"), []byte("a:")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("snapshots of identical state differ")
	}
}

func TestRead_DetectsTampering(t *testing.T) {
	db := createTestStorage(t)
	put(t, db, "a:k", "value")

	data, err := Create(db, 1, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	idx := bytes.Index(data, []byte("value"))
	if idx < 0 {
		t.Fatal("value not found in snapshot")
	}

	tampered := bytes.Clone(data)
	tampered[idx] = 'V'

	if _, err := Read(tampered); err == nil {
		t.Error("expected checksum error")
	}
}

func TestRead_RejectsGarbage(t *testing.T) {
	if _, err := Read([]byte{1, 2}); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("relay"), 1000)

	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	if len(compressed) >= len(data) {
		t.Errorf("compressed %d bytes to %d", len(data), len(compressed))
	}

	back, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	if !bytes.Equal(back, data) {
		t.Error("round trip mismatch")
	}
}

func TestApply_ReplacesPrefixes(t *testing.T) {
	src := createTestStorage(t)
	put(t, src, "a:1", "new")

	data, err := Create(src, 9, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	dst := createTestStorage(t)
	put(t, dst, "a:1", "old")
	put(t, dst, "b:stale", "gone")
	put(t, dst, "c:kept", "kept")

	s, err := Apply(dst, data, testPrefixes)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if s.Round != 9 {
		t.Errorf("round = %d, want 9", s.Round)
	}

	if v, _ := dst.Get([]byte("a:1")); string(v) != "new" {
		t.Errorf("a:1 = %q, want new", v)
	}

	if v, _ := dst.Get([]byte("b:stale")); v != nil {
		t.Errorf("b:stale survived: %q", v)
	}

	if v, _ := dst.Get([]byte("c:kept")); string(v) != "kept" {
		t.Errorf("c:kept = %q, want kept", v)
	}
}

func TestApply_RejectsForeignKeys(t *testing.T) {
	src := createTestStorage(t)
	put(t, src, "b:1", "x")

	data, err := Create(src, 1, testPrefixes)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	dst := createTestStorage(t)
	if _, err := Apply(dst, data, [][]byte{[]byte("a:")}); err == nil {
		t.Error("expected error for key outside prefixes")
	}
}

func TestApply_RestoresRunningChain(t *testing.T) {
	net, err := devnet.New("snapshot-test", 4)
	if err != nil {
		t.Fatalf("devnet: %v", err)
	}

	shards := []config.ShardConfig{{ID: 1, Kind: "parachain", GenesisHead: "01"}}

	src := createTestStorage(t)
	chain, err := relay.Open(src, config.NewManager(config.Default()), net, 50)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := chain.Genesis(shards); err != nil {
		t.Fatalf("Genesis: %v", err)
	}

	for range 3 {
		if _, err := chain.ExecuteRound(net); err != nil {
			t.Fatalf("ExecuteRound: %v", err)
		}
	}

	data, err := Create(src, uint64(chain.Round()), relay.StatePrefixes())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	dst := createTestStorage(t)
	if _, err := Apply(dst, data, relay.StatePrefixes()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	restored, err := relay.Open(dst, config.NewManager(config.Default()), net, 50)
	if err != nil {
		t.Fatalf("Open restored: %v", err)
	}

	if restored.Round() != chain.Round() || restored.ParentHash() != chain.ParentHash() {
		t.Fatalf("restored at round %d, want %d", restored.Round(), chain.Round())
	}

	a, err := chain.ExecuteRound(net)
	if err != nil {
		t.Fatalf("ExecuteRound: %v", err)
	}

	b, err := restored.ExecuteRound(net)
	if err != nil {
		t.Fatalf("ExecuteRound restored: %v", err)
	}

	if a.Hash != b.Hash {
		t.Error("restored chain diverged")
	}
}
