package asr

import "strings"

// tokenize splits a hypothesis into comparison tokens on whitespace.
func tokenize(s string) []string {
	return strings.Fields(s)
}

// lcsLength computes the longest common subsequence length between two
// token slices. Subsequence, not substring: a word inserted mid-sentence
// still credits the surrounding agreement.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Two-row DP keeps memory linear in the shorter hypothesis.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// stabilityScore is the fraction of the current hypothesis's tokens
// explained by the previous one: LCS(prev, cur) / len(cur). Two empty
// hypotheses agree perfectly.
func stabilityScore(prev, cur []string) float64 {
	if len(cur) == 0 {
		if len(prev) == 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(lcsLength(prev, cur)) / float64(len(cur))
}
