package signing

import "ShardRelay/internal/primitives"

// Verifier checks the signatures the inclusion engine consumes.
type Verifier interface {
	// VerifyValidator checks a validator signature over message.
	VerifyValidator(sig primitives.ValidatorSignature, message []byte, id primitives.ValidatorID) bool

	// VerifyCollator checks a collator signature over message.
	VerifyCollator(sig primitives.CollatorSignature, message []byte, id primitives.CollatorID) bool
}

// Crypto verifies with BLS for validators and ed25519 for collators.
type Crypto struct{}

// VerifyValidator implements Verifier.
func (Crypto) VerifyValidator(sig primitives.ValidatorSignature, message []byte, id primitives.ValidatorID) bool {
	return VerifyValidator(sig, message, id)
}

// VerifyCollator implements Verifier.
func (Crypto) VerifyCollator(sig primitives.CollatorSignature, message []byte, id primitives.CollatorID) bool {
	return VerifyCollator(sig, message, id)
}
