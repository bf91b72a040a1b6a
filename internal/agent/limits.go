package agent

// SafetyLimits bounds the worst-case cost of a single turn. These are
// configuration, not runtime state.
type SafetyLimits struct {
	// MaxIterations bounds provider round trips per turn.
	MaxIterations int
	// HardTokenLimit is the pre-flight request token ceiling. A turn
	// whose estimated request exceeds it fails before any network call.
	HardTokenLimit int
	// MaxOutputTokens caps a single provider response.
	MaxOutputTokens int
}

// DefaultSafetyLimits returns the documented defaults.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxIterations:   10,
		HardTokenLimit:  200_000,
		MaxOutputTokens: 4096,
	}
}

// applyDefaults fills zero fields with defaults so a partially
// populated literal behaves sensibly.
func (s *SafetyLimits) applyDefaults() {
	d := DefaultSafetyLimits()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.HardTokenLimit <= 0 {
		s.HardTokenLimit = d.HardTokenLimit
	}
	if s.MaxOutputTokens <= 0 {
		s.MaxOutputTokens = d.MaxOutputTokens
	}
}
