package nlu

import "github.com/veridex/veridex/internal/model"

// Adjustment is one applied confidence delta, kept for transparent
// score breakdowns in verbose output.
type Adjustment struct {
	Reason string
	Delta  float64
}

// AdjustConfidence applies the multi-factor confidence adjustment to a base
// entailment probability and returns the clamped score with its breakdown.
func AdjustConfidence(base float64, text string, meta *model.ContentMetadata) (float64, []Adjustment) {
	score := base
	var applied []Adjustment

	adjust := func(reason string, delta float64) {
		score += delta
		applied = append(applied, Adjustment{Reason: reason, Delta: delta})
	}

	if hasImplementationLanguage(text) {
		adjust("implementation-language", 0.05)
	}

	if meta != nil {
		switch meta.SignalStrength {
		case "high":
			adjust("signal-strength-high", 0.03)
		case "low":
			adjust("signal-strength-low", -0.03)
		}

		switch meta.TechnicalDepth {
		case "deep":
			adjust("technical-depth-deep", 0.02)
		case "shallow":
			adjust("technical-depth-shallow", -0.02)
		}

		switch meta.TemporalFocus {
		case "implemented":
			adjust("temporal-implemented", 0.02)
		case "planned", "research":
			adjust("temporal-"+meta.TemporalFocus, -0.03)
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}

	return score, applied
}
