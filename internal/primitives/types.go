// Package primitives defines the relay-chain data types shared by the
// inclusion engine and its collaborators, together with their canonical
// encoding and hashing.
package primitives

import (
	"encoding/hex"

	"ShardRelay/internal/bitfield"
)

const (
	// ValidatorIDSize is the size of a validator BLS public key in bytes.
	ValidatorIDSize = 48

	// ValidatorSignatureSize is the size of a validator BLS signature in bytes.
	ValidatorSignatureSize = 96

	// CollatorIDSize is the size of a collator ed25519 public key in bytes.
	CollatorIDSize = 32

	// CollatorSignatureSize is the size of a collator ed25519 signature in bytes.
	CollatorSignatureSize = 64
)

// Hash is a 32-byte blake3 digest.
type Hash [32]byte

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 4 bytes in hex, for logging.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// ShardID identifies a parachain or parathread.
type ShardID uint32

// CoreIndex identifies an availability core.
type CoreIndex uint32

// GroupIndex identifies a validator backing group.
type GroupIndex uint32

// ValidatorIndex is a validator's position in the session's validator list.
type ValidatorIndex uint32

// SessionIndex numbers validator-set sessions.
type SessionIndex uint32

// Round is a relay-chain block number.
type Round uint64

// SaturatingSub returns r - o, or 0 if o > r.
func (r Round) SaturatingSub(o Round) Round {
	if o > r {
		return 0
	}

	return r - o
}

// ValidatorID is a validator's compressed BLS public key.
type ValidatorID [ValidatorIDSize]byte

// ValidatorSignature is a compressed BLS signature.
type ValidatorSignature [ValidatorSignatureSize]byte

// CollatorID is a collator's ed25519 public key.
type CollatorID [CollatorIDSize]byte

// CollatorSignature is an ed25519 signature by a collator.
type CollatorSignature [CollatorSignatureSize]byte

// HeadData is the opaque head of a shard block.
type HeadData []byte

// ValidationCode is the opaque validation function of a shard.
type ValidationCode []byte

// SigningContext binds validator signatures to a relay parent and session.
type SigningContext struct {
	ParentHash   Hash         // ParentHash is the relay parent the signature is valid under
	SessionIndex SessionIndex // SessionIndex is the session of the signer's key
}

// CandidateDescriptor identifies a candidate and its collator.
type CandidateDescriptor struct {
	ShardID                     ShardID           // ShardID is the shard the candidate is for
	RelayParent                 Hash              // RelayParent is the relay block the candidate was built on
	Collator                    CollatorID        // Collator is the author of the candidate
	PersistedValidationDataHash Hash              // PersistedValidationDataHash commits to the validation inputs
	PoVHash                     Hash              // PoVHash is the hash of the proof-of-validity block
	Signature                   CollatorSignature // Signature is the collator's signature over CollatorPayload
}

// CandidateCommitments are the outputs of executing a candidate.
type CandidateCommitments struct {
	UpwardMessages            [][]byte       // UpwardMessages are messages sent to the relay chain
	NewValidationCode         ValidationCode // NewValidationCode is set when the shard upgrades its code
	HeadData                  HeadData       // HeadData is the new shard head
	ProcessedDownwardMessages uint32         // ProcessedDownwardMessages counts consumed downward messages
	HRMPWatermark             Round          // HRMPWatermark is the horizontal message watermark
}

// HasNewCode reports whether the commitments schedule a code upgrade.
func (c CandidateCommitments) HasNewCode() bool {
	return c.NewValidationCode != nil
}

// CandidateReceipt is a descriptor plus the hash of its commitments.
type CandidateReceipt struct {
	Descriptor      CandidateDescriptor
	CommitmentsHash Hash
}

// CommittedCandidateReceipt is a descriptor plus full commitments.
type CommittedCandidateReceipt struct {
	Descriptor  CandidateDescriptor
	Commitments CandidateCommitments
}

// ToPlain drops the commitments, keeping only their hash.
func (r CommittedCandidateReceipt) ToPlain() CandidateReceipt {
	return CandidateReceipt{
		Descriptor:      r.Descriptor,
		CommitmentsHash: r.Commitments.Hash(),
	}
}

// Hash returns the candidate hash, which equals the hash of the plain receipt.
func (r CommittedCandidateReceipt) Hash() Hash {
	plain := r.ToPlain()
	return plain.Hash()
}

// AttestationKind tells which statement a validity vote signs.
type AttestationKind uint8

const (
	// AttestationImplicit is a vote implied by seconding the candidate.
	AttestationImplicit AttestationKind = 1

	// AttestationExplicit is an explicit "valid" statement.
	AttestationExplicit AttestationKind = 2
)

// ValidityAttestation is one backing vote.
type ValidityAttestation struct {
	Kind      AttestationKind
	Signature ValidatorSignature
}

// BackedCandidate is a candidate with its backing votes.
// ValidatorIndices has one bit per member of the backing group; the votes
// are ordered by ascending set bit.
type BackedCandidate struct {
	Candidate        CommittedCandidateReceipt
	ValidityVotes    []ValidityAttestation
	ValidatorIndices bitfield.Bitfield
}

// SignedAvailabilityBitfield is a validator's signed per-core bitfield.
type SignedAvailabilityBitfield struct {
	Payload        bitfield.Bitfield  // Payload has one bit per availability core
	ValidatorIndex ValidatorIndex     // ValidatorIndex is the signer's position in the validator list
	Signature      ValidatorSignature // Signature covers BitfieldPayload
}

// AssignmentKind distinguishes parachain and parathread cores.
type AssignmentKind uint8

const (
	// AssignmentParachain is a core dedicated to a parachain.
	AssignmentParachain AssignmentKind = iota

	// AssignmentParathread is a shared core claimed by a parathread.
	AssignmentParathread
)

// String returns the kind name.
func (k AssignmentKind) String() string {
	if k == AssignmentParathread {
		return "parathread"
	}

	return "parachain"
}

// CoreAssignment schedules a shard on a core for one round.
type CoreAssignment struct {
	Core             CoreIndex      // Core is the availability core
	ShardID          ShardID        // ShardID is the shard scheduled on the core
	Kind             AssignmentKind // Kind tells parachain and parathread cores apart
	Group            GroupIndex     // Group is the backing group responsible for the core
	RequiredCollator *CollatorID    // RequiredCollator restricts authorship when set
}

// PersistedValidationData are the validation inputs that are stored on chain.
type PersistedValidationData struct {
	ParentHead        HeadData // ParentHead is the shard head the candidate builds on
	RelayParentNumber Round    // RelayParentNumber is the relay parent's round
	MaxPoVSize        uint32   // MaxPoVSize bounds the proof-of-validity size
}
