package snapshot

import (
	"bytes"
	"fmt"
	"sort"

	"ShardRelay/internal/storage"
)

// Diff lists the keys on which two stores disagree.
type Diff struct {
	OnlyA     [][]byte // OnlyA are keys present in the first store only
	OnlyB     [][]byte // OnlyB are keys present in the second store only
	Different [][]byte // Different are keys present in both with different values
}

// Equal reports whether the stores agreed on every key.
func (d Diff) Equal() bool {
	return len(d.OnlyA) == 0 && len(d.OnlyB) == 0 && len(d.Different) == 0
}

// Compare diffs every key under prefixes in a and b. Keys in each list are sorted.
func Compare(a, b *storage.Storage, prefixes [][]byte) (Diff, error) {
	left, err := collect(a, prefixes)
	if err != nil {
		return Diff{}, fmt.Errorf("collect first store:\n%w", err)
	}

	right, err := collect(b, prefixes)
	if err != nil {
		return Diff{}, fmt.Errorf("collect second store:\n%w", err)
	}

	var d Diff

	for k, v := range left {
		other, ok := right[k]
		switch {
		case !ok:
			d.OnlyA = append(d.OnlyA, []byte(k))
		case !bytes.Equal(v, other):
			d.Different = append(d.Different, []byte(k))
		}
	}

	for k := range right {
		if _, ok := left[k]; !ok {
			d.OnlyB = append(d.OnlyB, []byte(k))
		}
	}

	sortKeys(d.OnlyA)
	sortKeys(d.OnlyB)
	sortKeys(d.Different)

	return d, nil
}

func collect(db *storage.Storage, prefixes [][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte)

	for _, p := range prefixes {
		err := db.IteratePrefix(p, func(key, value []byte) error {
			out[string(key)] = bytes.Clone(value)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func sortKeys(keys [][]byte) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
}
