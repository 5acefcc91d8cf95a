package signing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/zeebo/blake3"

	"ShardRelay/internal/primitives"
)

// CollatorKey is a collator's ed25519 key pair.
type CollatorKey struct {
	priv ed25519.PrivateKey
}

// CollatorKeyFromSeed creates a collator key from a 32-byte seed.
func CollatorKeyFromSeed(seed []byte) (*CollatorKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("collator seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	return &CollatorKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// DevCollatorKey derives the development collator key for a shard.
func DevCollatorKey(name string, shard primitives.ShardID) *CollatorKey {
	h := blake3.New()
	h.Write([]byte("relay-collator-keygen"))
	h.Write([]byte(name))
	h.Write([]byte{byte(shard >> 24), byte(shard >> 16), byte(shard >> 8), byte(shard)})

	var seed [32]byte
	h.Sum(seed[:0])

	return &CollatorKey{priv: ed25519.NewKeyFromSeed(seed[:])}
}

// ID returns the collator public key.
func (k *CollatorKey) ID() primitives.CollatorID {
	var out primitives.CollatorID
	copy(out[:], k.priv.Public().(ed25519.PublicKey))

	return out
}

// Sign signs the message.
func (k *CollatorKey) Sign(message []byte) primitives.CollatorSignature {
	var out primitives.CollatorSignature
	copy(out[:], ed25519.Sign(k.priv, message))

	return out
}

// SignDescriptor fills in the collator and signature fields of d.
func (k *CollatorKey) SignDescriptor(d *primitives.CandidateDescriptor) {
	d.Collator = k.ID()
	d.Signature = k.Sign(d.CollatorPayload())
}

// VerifyCollator checks an ed25519 signature by a collator.
func VerifyCollator(sig primitives.CollatorSignature, message []byte, id primitives.CollatorID) bool {
	return ed25519.Verify(ed25519.PublicKey(id[:]), message, sig[:])
}
