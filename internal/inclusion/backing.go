package inclusion

import (
	"fmt"

	"ShardRelay/internal/primitives"
	"ShardRelay/internal/signing"
)

// checkBacking verifies the validity votes of a backed candidate against
// its backing group and returns the number of valid votes.
//
// ValidatorIndices has one bit per group member; the i-th vote belongs to
// the i-th set bit. Every vote must verify.
func checkBacking(
	v signing.Verifier,
	c *primitives.BackedCandidate,
	ctx primitives.SigningContext,
	group []primitives.ValidatorIndex,
	validators []primitives.ValidatorID,
) (int, error) {
	if len(c.ValidityVotes) > len(group) {
		return 0, fmt.Errorf("%d votes for a group of %d", len(c.ValidityVotes), len(group))
	}

	if c.ValidatorIndices.Len() != len(group) {
		return 0, fmt.Errorf("validator indices have %d bits for a group of %d", c.ValidatorIndices.Len(), len(group))
	}

	members := c.ValidatorIndices.Ones()
	if len(members) != len(c.ValidityVotes) {
		return 0, fmt.Errorf("%d indices set for %d votes", len(members), len(c.ValidityVotes))
	}

	hash := c.Candidate.Hash()
	signed := 0

	for i, member := range members {
		vi := group[member]
		if int(vi) >= len(validators) {
			return 0, fmt.Errorf("group member %d is validator %d of %d", member, vi, len(validators))
		}

		vote := c.ValidityVotes[i]
		if vote.Kind != primitives.AttestationImplicit && vote.Kind != primitives.AttestationExplicit {
			return 0, fmt.Errorf("vote %d has unknown kind %d", i, vote.Kind)
		}

		payload := primitives.StatementPayload(vote.Kind, hash, ctx)
		if !v.VerifyValidator(vote.Signature, payload, validators[vi]) {
			return 0, fmt.Errorf("vote %d by validator %d does not verify", i, vi)
		}

		signed++
	}

	return signed, nil
}
