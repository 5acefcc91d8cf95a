package inclusion

// SupermajorityThreshold returns the minimum number of votes out of n
// that counts as a supermajority: n - floor(n/3).
func SupermajorityThreshold(n int) int {
	return n - n/3
}
