package paras

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"ShardRelay/internal/codec"
	"ShardRelay/internal/primitives"
)

// Registration table slots.
const (
	regSlotKind = iota
	regSlotCollator
	regSlotCount
)

// FutureUpgrade table slots.
const (
	upSlotAt = iota
	upSlotCode
	upSlotCount
)

func encodeRegistration(reg Registration) []byte {
	b := flatbuffers.NewBuilder(64)

	var collator flatbuffers.UOffsetT
	if reg.RequiredCollator != nil {
		collator = b.CreateByteVector(reg.RequiredCollator[:])
	}

	b.StartObject(regSlotCount)
	b.PrependUint8Slot(regSlotKind, uint8(reg.Kind), 0)
	if reg.RequiredCollator != nil {
		b.PrependUOffsetTSlot(regSlotCollator, collator, 0)
	}
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func decodeRegistration(buf []byte) (Registration, error) {
	t, err := codec.Open(buf)
	if err != nil {
		return Registration{}, err
	}

	reg := Registration{Kind: primitives.AssignmentKind(t.Uint8(regSlotKind))}

	var id primitives.CollatorID
	if t.Fixed(regSlotCollator, id[:]) {
		reg.RequiredCollator = &id
	}

	return reg, nil
}

func encodeFutureUpgrade(up FutureUpgrade) []byte {
	b := flatbuffers.NewBuilder(len(up.Code) + 32)

	code := b.CreateByteVector(up.Code)

	b.StartObject(upSlotCount)
	b.PrependUint64Slot(upSlotAt, uint64(up.At), 0)
	b.PrependUOffsetTSlot(upSlotCode, code, 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func decodeFutureUpgrade(buf []byte) (FutureUpgrade, error) {
	t, err := codec.Open(buf)
	if err != nil {
		return FutureUpgrade{}, err
	}

	code := t.Bytes(upSlotCode)
	if code == nil {
		code = primitives.ValidationCode{}
	}

	return FutureUpgrade{
		At:   primitives.Round(t.Uint64(upSlotAt)),
		Code: code,
	}, nil
}
