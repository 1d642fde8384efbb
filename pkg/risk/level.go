package risk

import "github.com/berkguzel/iamrisk/pkg/types"

// Classify maps a score to its level. Lower bounds are inclusive.
func Classify(score float64) types.RiskLevel {
	switch {
	case score >= 70:
		return types.RiskHigh
	case score >= 40:
		return types.RiskMedium
	case score >= 20:
		return types.RiskLow
	default:
		return types.RiskMinimal
	}
}
