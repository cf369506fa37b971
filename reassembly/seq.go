package reassembly

// seqDiff returns the signed distance from t to s in TCP sequence space.
// The result is positive when s is ahead of t, negative when behind. Signed
// 32-bit subtraction keeps comparisons correct across the 2^32 wraparound,
// as long as the two sequences are within 2^31 of each other.
func seqDiff(s, t uint32) int {
	return int(int32(s - t))
}
