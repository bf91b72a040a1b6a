package tokens

// tokenizer implements a fixed character-class sub-word model, shared
// by all estimate paths so every estimator agrees on the same counts.
//
// The model weighs each rune by how densely its script packs into
// provider tokens (CJK ideographs encode roughly two characters per
// token, Latin text roughly four) and divides the weighted length by
// four, rounding up. The result is deterministic and non-decreasing as
// characters are appended: every rune adds a positive weight and the
// ceiling division is monotone.
//
// Precision is roughly ±25% against real BPE tokenizers — sufficient
// for threshold comparison, not billing-accurate.
type tokenizer struct {
	closed bool
	// weights indexes ASCII bytes directly; non-ASCII runes go
	// through classifyRune. Built lazily in newTokenizer so the table
	// lives only as long as the owning Estimator.
	weights [128]uint8
}

// weightedCharsPerToken is the divisor of the sub-word model.
const weightedCharsPerToken = 4

func newTokenizer() *tokenizer {
	t := &tokenizer{}
	for i := range t.weights {
		t.weights[i] = 1
	}
	return t
}

// count returns the token estimate for s. A closed tokenizer counts
// nothing; Estimator.Close guards the only path that sets closed.
func (t *tokenizer) count(s string) int {
	if t.closed || s == "" {
		return 0
	}

	weighted := 0
	for _, r := range s {
		if r < 128 {
			weighted += int(t.weights[r])
			continue
		}
		weighted += classifyRune(r)
	}
	return (weighted + weightedCharsPerToken - 1) / weightedCharsPerToken
}

// classifyRune returns the weight of a non-ASCII rune. CJK ideographs,
// kana, and Hangul compress to roughly two characters per token, so
// they weigh double.
func classifyRune(r rune) int {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return 2
	case r >= 0x3040 && r <= 0x30FF: // Hiragana, Katakana
		return 2
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul Syllables
		return 2
	default:
		return 1
	}
}
