package tokenizer

import "unicode/utf8"

// Estimator approximates tokens from character counts: about four ASCII
// characters or 1.5 CJK characters per token.
type Estimator struct{}

// NewEstimator returns the character based estimator.
func NewEstimator() Estimator { return Estimator{} }

func (Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cost float64
	for _, r := range text {
		cost += runeCost(r)
	}
	n := int(cost)
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (Estimator) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	budget := float64(maxTokens)
	var used float64
	for i, r := range text {
		used += runeCost(r)
		if used > budget {
			return text[:i], nil
		}
	}
	return text, nil
}

func (Estimator) Name() string { return "estimator" }

func runeCost(r rune) float64 {
	if r != utf8.RuneError && isCJK(r) {
		return 1 / 1.5
	}
	return 0.25
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
