package inclusion

import "errors"

// Batch rejection reasons. A call that returns one of these left the
// engine state untouched.
var (
	ErrWrongBitfieldSize                = errors.New("availability bitfield has unexpected size")
	ErrBitfieldDuplicateOrUnordered     = errors.New("multiple bitfields from the same validator or bitfields not ordered by validator index")
	ErrValidatorIndexOutOfBounds        = errors.New("validator index out of bounds")
	ErrInvalidBitfieldSignature         = errors.New("invalid signature on availability bitfield")
	ErrUnoccupiedBitInBitfield          = errors.New("availability bitfield sets a bit for an unoccupied core")
	ErrUnscheduledCandidate             = errors.New("candidate submitted but shard not scheduled")
	ErrCandidateScheduledBeforeParaFree = errors.New("candidate scheduled despite a pending candidate for the shard")
	ErrWrongCollator                    = errors.New("candidate included with the wrong collator")
	ErrScheduledOutOfOrder              = errors.New("scheduled cores out of order")
	ErrPrematureCodeUpgrade             = errors.New("code upgrade attempted before the upgrade frequency elapsed")
	ErrCandidateNotInParentContext      = errors.New("candidate not built on the current relay parent")
	ErrInvalidGroupIndex                = errors.New("invalid backing group index")
	ErrInsufficientBacking              = errors.New("insufficient backing votes")
	ErrInvalidBacking                   = errors.New("invalid backing signatures or layout")
	ErrNotCollatorSigned                = errors.New("collator signature invalid")
	ErrValidationDataHashMismatch       = errors.New("persisted validation data hash mismatch")
	ErrCommitmentsTooLarge              = errors.New("candidate head data or validation code too large")

	// ErrInternal is only returned by builds with the relaydebug tag;
	// other builds log and skip the inconsistent entry.
	ErrInternal = errors.New("internal inclusion error")
)

// rejectReasons maps sentinels to metric labels.
var rejectReasons = []struct {
	err   error
	label string
}{
	{ErrWrongBitfieldSize, "wrong_bitfield_size"},
	{ErrBitfieldDuplicateOrUnordered, "bitfield_duplicate_or_unordered"},
	{ErrValidatorIndexOutOfBounds, "validator_index_out_of_bounds"},
	{ErrInvalidBitfieldSignature, "invalid_bitfield_signature"},
	{ErrUnoccupiedBitInBitfield, "unoccupied_bit_in_bitfield"},
	{ErrUnscheduledCandidate, "unscheduled_candidate"},
	{ErrCandidateScheduledBeforeParaFree, "candidate_scheduled_before_para_free"},
	{ErrWrongCollator, "wrong_collator"},
	{ErrScheduledOutOfOrder, "scheduled_out_of_order"},
	{ErrPrematureCodeUpgrade, "premature_code_upgrade"},
	{ErrCandidateNotInParentContext, "candidate_not_in_parent_context"},
	{ErrInvalidGroupIndex, "invalid_group_index"},
	{ErrInsufficientBacking, "insufficient_backing"},
	{ErrInvalidBacking, "invalid_backing"},
	{ErrNotCollatorSigned, "not_collator_signed"},
	{ErrValidationDataHashMismatch, "validation_data_hash_mismatch"},
	{ErrCommitmentsTooLarge, "commitments_too_large"},
	{ErrInternal, "internal"},
}

// reasonLabel returns the metric label for err, "storage" for anything
// that is not a rejection sentinel.
func reasonLabel(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}

	return "storage"
}
