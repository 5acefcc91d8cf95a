package primitives

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"ShardRelay/internal/bitfield"
)

// Domain tags keep signatures over different payloads from colliding.
var (
	tagCollator  = []byte("relay-collator-v1")
	tagBitfield  = []byte("relay-bitfield-v1")
	tagStatement = []byte("relay-statement-v1")
)

// encoder builds canonical little-endian encodings.
// Format: fixed-size arrays raw, integers LE, byte vectors u32 length + bytes.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) vec(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Encode returns the canonical encoding of the signing context.
func (c SigningContext) Encode() []byte {
	var e encoder
	e.raw(c.ParentHash[:])
	e.u32(uint32(c.SessionIndex))

	return e.buf
}

// CollatorPayload returns the bytes a collator signs:
// relay parent, shard id, persisted-validation-data hash, PoV hash.
func (d CandidateDescriptor) CollatorPayload() []byte {
	return CollatorPayload(d.RelayParent, d.ShardID, d.PersistedValidationDataHash, d.PoVHash)
}

// CollatorPayload builds the collator signature payload from its parts.
func CollatorPayload(relayParent Hash, shard ShardID, pvdHash, povHash Hash) []byte {
	var e encoder
	e.raw(tagCollator)
	e.raw(relayParent[:])
	e.u32(uint32(shard))
	e.raw(pvdHash[:])
	e.raw(povHash[:])

	return e.buf
}

// Encode returns the canonical encoding of the descriptor.
func (d CandidateDescriptor) Encode() []byte {
	var e encoder
	e.u32(uint32(d.ShardID))
	e.raw(d.RelayParent[:])
	e.raw(d.Collator[:])
	e.raw(d.PersistedValidationDataHash[:])
	e.raw(d.PoVHash[:])
	e.raw(d.Signature[:])

	return e.buf
}

// Encode returns the canonical encoding of the commitments.
func (c CandidateCommitments) Encode() []byte {
	var e encoder

	e.u32(uint32(len(c.UpwardMessages)))
	for _, msg := range c.UpwardMessages {
		e.vec(msg)
	}

	if c.HasNewCode() {
		e.u8(1)
		e.vec(c.NewValidationCode)
	} else {
		e.u8(0)
	}

	e.vec(c.HeadData)
	e.u32(c.ProcessedDownwardMessages)
	e.u64(uint64(c.HRMPWatermark))

	return e.buf
}

// Hash returns the blake3 hash of the encoded commitments.
func (c CandidateCommitments) Hash() Hash {
	return blake3.Sum256(c.Encode())
}

// Hash returns the candidate hash: blake3(descriptor || commitments hash).
func (r CandidateReceipt) Hash() Hash {
	h := blake3.New()
	h.Write(r.Descriptor.Encode())
	h.Write(r.CommitmentsHash[:])

	var out Hash
	h.Sum(out[:0])

	return out
}

// Encode returns the canonical encoding of the validation data.
func (p PersistedValidationData) Encode() []byte {
	var e encoder
	e.vec(p.ParentHead)
	e.u64(uint64(p.RelayParentNumber))
	e.u32(p.MaxPoVSize)

	return e.buf
}

// Hash returns the blake3 hash of the encoded validation data.
func (p PersistedValidationData) Hash() Hash {
	return blake3.Sum256(p.Encode())
}

// BitfieldPayload returns the bytes a validator signs for an availability bitfield.
func BitfieldPayload(b bitfield.Bitfield, ctx SigningContext) []byte {
	var e encoder
	e.raw(tagBitfield)
	e.u32(uint32(b.Len()))
	e.vec(b.Bytes())
	e.raw(ctx.Encode())

	return e.buf
}

// StatementPayload returns the bytes a backing validator signs.
// Implicit votes sign a "seconded" statement, explicit votes a "valid" one.
func StatementPayload(kind AttestationKind, candidateHash Hash, ctx SigningContext) []byte {
	var e encoder
	e.raw(tagStatement)
	e.u8(uint8(kind))
	e.raw(candidateHash[:])
	e.raw(ctx.Encode())

	return e.buf
}

// HashBytes returns blake3 over the concatenation of the parts.
func HashBytes(parts ...[]byte) Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}

	var out Hash
	h.Sum(out[:0])

	return out
}
