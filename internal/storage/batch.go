package storage

import "github.com/cockroachdb/pebble"

// Batch collects writes and deletes that are applied atomically on Commit.
// Reads through Storage do not observe uncommitted batch contents.
type Batch struct {
	b *pebble.Batch
}

// NewBatch starts an empty write batch.
func (s *Storage) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Set queues a key-value write.
func (b *Batch) Set(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

// Delete queues a point delete.
func (b *Batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

// DeletePrefix queues removal of every key starting with prefix.
func (b *Batch) DeletePrefix(prefix []byte) error {
	upper := prefixUpperBound(prefix)
	if upper == nil {
		upper = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	}

	return b.b.DeleteRange(prefix, upper, nil)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return int(b.b.Count())
}

// Commit applies all queued operations atomically.
func (b *Batch) Commit() error {
	return b.b.Commit(pebble.NoSync)
}

// Close releases the batch. Uncommitted operations are discarded.
func (b *Batch) Close() error {
	return b.b.Close()
}
