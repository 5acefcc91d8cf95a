// Package signing holds the validator (BLS) and collator (ed25519) key
// material and the verifier the inclusion engine checks signatures with.
package signing

import (
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"

	"ShardRelay/internal/primitives"
)

// blsDST is the domain separation tag for BLS signatures.
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// ValidatorKey holds a validator's BLS private/public key pair.
type ValidatorKey struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// GenerateValidatorKey creates a validator key from a random seed.
func GenerateValidatorKey() (*ValidatorKey, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return ValidatorKeyFromSeed(ikm[:])
}

// ValidatorKeyFromSeed creates a validator key from a deterministic seed.
// The seed must be at least 32 bytes.
func ValidatorKeyFromSeed(seed []byte) (*ValidatorKey, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	return &ValidatorKey{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// DevValidatorKey derives the i-th development validator key from a
// network name: blake3("relay-validator-keygen" || name || i).
func DevValidatorKey(name string, i int) (*ValidatorKey, error) {
	h := blake3.New()
	h.Write([]byte("relay-validator-keygen"))
	h.Write([]byte(name))
	h.Write([]byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)})

	var seed [32]byte
	h.Sum(seed[:0])

	return ValidatorKeyFromSeed(seed[:])
}

// Sign creates a BLS signature over the message.
func (k *ValidatorKey) Sign(message []byte) primitives.ValidatorSignature {
	var out primitives.ValidatorSignature
	copy(out[:], new(blst.P2Affine).Sign(k.secret, message, blsDST).Compress())

	return out
}

// ID returns the compressed public key.
func (k *ValidatorKey) ID() primitives.ValidatorID {
	var out primitives.ValidatorID
	copy(out[:], k.public.Compress())

	return out
}

// VerifyValidator checks a BLS signature against a message and public key.
func VerifyValidator(sig primitives.ValidatorSignature, message []byte, id primitives.ValidatorID) bool {
	s := new(blst.P2Affine).Uncompress(sig[:])
	if s == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(id[:])
	if pk == nil {
		return false
	}

	return s.Verify(true, pk, true, message, blsDST)
}
