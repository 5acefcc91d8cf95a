package inclusion

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/codec"
	"ShardRelay/internal/primitives"
)

// PendingCandidate is a backed candidate waiting for availability.
type PendingCandidate struct {
	Core              primitives.CoreIndex           // Core is the occupied availability core
	Descriptor        primitives.CandidateDescriptor // Descriptor identifies the candidate
	AvailabilityVotes bitfield.Bitfield              // AvailabilityVotes has one bit per validator
	RelayParentNumber primitives.Round               // RelayParentNumber is the round of the relay parent
	BackedInNumber    primitives.Round               // BackedInNumber is the round the candidate was backed in
}

// AttestationRecord is a validator's latest accepted bitfield.
type AttestationRecord struct {
	Bitfield    bitfield.Bitfield // Bitfield has one bit per core
	SubmittedAt primitives.Round  // SubmittedAt is the round it was accepted in
}

// PendingCandidate table slots.
const (
	pcSlotCore = iota
	pcSlotShard
	pcSlotRelayParent
	pcSlotCollator
	pcSlotPVDHash
	pcSlotPoVHash
	pcSlotSignature
	pcSlotVotes
	pcSlotVotesLen
	pcSlotRelayParentNumber
	pcSlotBackedIn
	pcSlotCount
)

func encodePending(p PendingCandidate) []byte {
	b := flatbuffers.NewBuilder(512)
	d := p.Descriptor

	relayParent := b.CreateByteVector(d.RelayParent[:])
	collator := b.CreateByteVector(d.Collator[:])
	pvd := b.CreateByteVector(d.PersistedValidationDataHash[:])
	pov := b.CreateByteVector(d.PoVHash[:])
	sig := b.CreateByteVector(d.Signature[:])
	votes := b.CreateByteVector(p.AvailabilityVotes.Bytes())

	b.StartObject(pcSlotCount)
	b.PrependUint32Slot(pcSlotCore, uint32(p.Core), 0)
	b.PrependUint32Slot(pcSlotShard, uint32(d.ShardID), 0)
	b.PrependUOffsetTSlot(pcSlotRelayParent, relayParent, 0)
	b.PrependUOffsetTSlot(pcSlotCollator, collator, 0)
	b.PrependUOffsetTSlot(pcSlotPVDHash, pvd, 0)
	b.PrependUOffsetTSlot(pcSlotPoVHash, pov, 0)
	b.PrependUOffsetTSlot(pcSlotSignature, sig, 0)
	b.PrependUOffsetTSlot(pcSlotVotes, votes, 0)
	b.PrependUint32Slot(pcSlotVotesLen, uint32(p.AvailabilityVotes.Len()), 0)
	b.PrependUint64Slot(pcSlotRelayParentNumber, uint64(p.RelayParentNumber), 0)
	b.PrependUint64Slot(pcSlotBackedIn, uint64(p.BackedInNumber), 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func decodePending(buf []byte) (PendingCandidate, error) {
	t, err := codec.Open(buf)
	if err != nil {
		return PendingCandidate{}, err
	}

	var d primitives.CandidateDescriptor
	d.ShardID = primitives.ShardID(t.Uint32(pcSlotShard))

	if !t.Fixed(pcSlotRelayParent, d.RelayParent[:]) ||
		!t.Fixed(pcSlotCollator, d.Collator[:]) ||
		!t.Fixed(pcSlotPVDHash, d.PersistedValidationDataHash[:]) ||
		!t.Fixed(pcSlotPoVHash, d.PoVHash[:]) ||
		!t.Fixed(pcSlotSignature, d.Signature[:]) {
		return PendingCandidate{}, fmt.Errorf("descriptor field has wrong size")
	}

	votes, err := bitfield.FromBytes(t.Bytes(pcSlotVotes), int(t.Uint32(pcSlotVotesLen)))
	if err != nil {
		return PendingCandidate{}, fmt.Errorf("decode votes:\n%w", err)
	}

	return PendingCandidate{
		Core:              primitives.CoreIndex(t.Uint32(pcSlotCore)),
		Descriptor:        d,
		AvailabilityVotes: votes,
		RelayParentNumber: primitives.Round(t.Uint64(pcSlotRelayParentNumber)),
		BackedInNumber:    primitives.Round(t.Uint64(pcSlotBackedIn)),
	}, nil
}

// CandidateCommitments table slots.
const (
	ccSlotUpward = iota
	ccSlotHasCode
	ccSlotCode
	ccSlotHead
	ccSlotProcessedDownward
	ccSlotWatermark
	ccSlotCount
)

func encodeCommitments(c primitives.CandidateCommitments) []byte {
	b := flatbuffers.NewBuilder(256 + len(c.HeadData) + len(c.NewValidationCode))

	upward := codec.BytesListVector(b, c.UpwardMessages)
	head := b.CreateByteVector(c.HeadData)

	var code flatbuffers.UOffsetT
	if c.HasNewCode() {
		code = b.CreateByteVector(c.NewValidationCode)
	}

	b.StartObject(ccSlotCount)
	b.PrependUOffsetTSlot(ccSlotUpward, upward, 0)
	b.PrependBoolSlot(ccSlotHasCode, c.HasNewCode(), false)
	if c.HasNewCode() {
		b.PrependUOffsetTSlot(ccSlotCode, code, 0)
	}
	b.PrependUOffsetTSlot(ccSlotHead, head, 0)
	b.PrependUint32Slot(ccSlotProcessedDownward, c.ProcessedDownwardMessages, 0)
	b.PrependUint64Slot(ccSlotWatermark, uint64(c.HRMPWatermark), 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func decodeCommitments(buf []byte) (primitives.CandidateCommitments, error) {
	t, err := codec.Open(buf)
	if err != nil {
		return primitives.CandidateCommitments{}, err
	}

	c := primitives.CandidateCommitments{
		UpwardMessages:            t.BytesList(ccSlotUpward),
		HeadData:                  t.Bytes(ccSlotHead),
		ProcessedDownwardMessages: t.Uint32(ccSlotProcessedDownward),
		HRMPWatermark:             primitives.Round(t.Uint64(ccSlotWatermark)),
	}

	if t.Bool(ccSlotHasCode) {
		c.NewValidationCode = t.Bytes(ccSlotCode)
		if c.NewValidationCode == nil {
			c.NewValidationCode = primitives.ValidationCode{}
		}
	}

	return c, nil
}

// AttestationRecord table slots.
const (
	arSlotBits = iota
	arSlotLen
	arSlotSubmittedAt
	arSlotCount
)

func encodeAttestation(r AttestationRecord) []byte {
	b := flatbuffers.NewBuilder(64)

	bits := b.CreateByteVector(r.Bitfield.Bytes())

	b.StartObject(arSlotCount)
	b.PrependUOffsetTSlot(arSlotBits, bits, 0)
	b.PrependUint32Slot(arSlotLen, uint32(r.Bitfield.Len()), 0)
	b.PrependUint64Slot(arSlotSubmittedAt, uint64(r.SubmittedAt), 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func decodeAttestation(buf []byte) (AttestationRecord, error) {
	t, err := codec.Open(buf)
	if err != nil {
		return AttestationRecord{}, err
	}

	bits, err := bitfield.FromBytes(t.Bytes(arSlotBits), int(t.Uint32(arSlotLen)))
	if err != nil {
		return AttestationRecord{}, fmt.Errorf("decode bitfield:\n%w", err)
	}

	return AttestationRecord{
		Bitfield:    bits,
		SubmittedAt: primitives.Round(t.Uint64(arSlotSubmittedAt)),
	}, nil
}
