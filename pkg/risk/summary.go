package risk

import (
	"fmt"

	"github.com/berkguzel/iamrisk/pkg/types"
)

func Summarize(level types.RiskLevel, score float64, findingCount int) string {
	switch level {
	case types.RiskHigh:
		return fmt.Sprintf("This policy has a HIGH risk score (%.1f/100) with %d security concerns. Immediate review and revision recommended.", score, findingCount)
	case types.RiskMedium:
		return fmt.Sprintf("This policy has a MEDIUM risk score (%.1f/100) with %d issues. Consider tightening permissions.", score, findingCount)
	case types.RiskLow:
		return fmt.Sprintf("This policy has a LOW risk score (%.1f/100) with %d minor issues. Generally follows good practices.", score, findingCount)
	default:
		return fmt.Sprintf("This policy has a MINIMAL risk score (%.1f/100) with %d findings. Follows security best practices well.", score, findingCount)
	}
}
