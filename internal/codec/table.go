// Package codec reads and writes the flatbuffers tables persisted in
// pebble. Tables are schema-less at the Go level: each record type fixes
// its slot numbers and builds or reads them through these helpers.
package codec

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Table reads fields of a finished flatbuffers table by slot number.
type Table struct {
	t flatbuffers.Table
}

// Open wraps a finished buffer. It only checks that the root offset is in range.
func Open(buf []byte) (Table, error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return Table{}, fmt.Errorf("table too short: %d bytes", len(buf))
	}

	pos := flatbuffers.GetUOffsetT(buf)
	if int(pos)+flatbuffers.SizeSOffsetT > len(buf) {
		return Table{}, fmt.Errorf("root offset %d out of range", pos)
	}

	return Table{t: flatbuffers.Table{Bytes: buf, Pos: pos}}, nil
}

func (r Table) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(r.t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

// Uint8 reads a uint8 slot, 0 if absent.
func (r Table) Uint8(slot int) uint8 {
	if o := r.field(slot); o != 0 {
		return r.t.GetUint8(o + r.t.Pos)
	}

	return 0
}

// Bool reads a bool slot, false if absent.
func (r Table) Bool(slot int) bool {
	if o := r.field(slot); o != 0 {
		return r.t.GetBool(o + r.t.Pos)
	}

	return false
}

// Uint32 reads a uint32 slot, 0 if absent.
func (r Table) Uint32(slot int) uint32 {
	if o := r.field(slot); o != 0 {
		return r.t.GetUint32(o + r.t.Pos)
	}

	return 0
}

// Uint64 reads a uint64 slot, 0 if absent.
func (r Table) Uint64(slot int) uint64 {
	if o := r.field(slot); o != 0 {
		return r.t.GetUint64(o + r.t.Pos)
	}

	return 0
}

// Bytes returns a copy of a byte-vector slot, nil if absent.
func (r Table) Bytes(slot int) []byte {
	o := r.field(slot)
	if o == 0 {
		return nil
	}

	return clone(r.t.ByteVector(o + r.t.Pos))
}

// BytesList returns a copy of a vector-of-byte-vectors slot.
func (r Table) BytesList(slot int) [][]byte {
	o := r.field(slot)
	if o == 0 {
		return nil
	}

	n := r.t.VectorLen(o)
	if n == 0 {
		return nil
	}

	start := r.t.Vector(o)

	out := make([][]byte, n)
	for j := 0; j < n; j++ {
		out[j] = clone(r.t.ByteVector(start + flatbuffers.UOffsetT(j*flatbuffers.SizeUOffsetT)))
	}

	return out
}

// Fixed copies a byte-vector slot into dst and reports whether the
// stored length matched exactly.
func (r Table) Fixed(slot int, dst []byte) bool {
	b := r.Bytes(slot)
	if len(b) != len(dst) {
		return false
	}

	copy(dst, b)

	return true
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}

// BytesListVector writes a vector of byte vectors and returns its offset.
// Must be called before StartObject.
func BytesListVector(b *flatbuffers.Builder, items [][]byte) flatbuffers.UOffsetT {
	offs := make([]flatbuffers.UOffsetT, len(items))
	for i, item := range items {
		offs[i] = b.CreateByteVector(item)
	}

	b.StartVector(flatbuffers.SizeUOffsetT, len(offs), flatbuffers.SizeUOffsetT)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}

	return b.EndVector(len(offs))
}
