package printer

import (
	"fmt"
	"io"

	"github.com/berkguzel/iamrisk/pkg/types"
	"github.com/fatih/color"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	cyan      = color.New(color.FgCyan).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	checkmark = green("✅")
	warning   = yellow("⚠️")
	danger    = red("❌")
)

func colorLevel(level types.RiskLevel, text string) string {
	switch level {
	case types.RiskHigh:
		return red(text)
	case types.RiskMedium:
		return yellow(text)
	case types.RiskLow:
		return cyan(text)
	default:
		return green(text)
	}
}

func levelIcon(level types.RiskLevel) string {
	switch level {
	case types.RiskHigh:
		return danger
	case types.RiskMedium, types.RiskLow:
		return warning
	default:
		return checkmark
	}
}

// PrintPermissions lists every pod with the score, findings and
// recommendations of each attached policy.
func PrintPermissions(w io.Writer, permissions []types.PodPermissions) {
	if len(permissions) == 0 {
		fmt.Fprintln(w, "No pods with IAM roles found")
		return
	}

	for _, perm := range permissions {
		fmt.Fprintf(w, "\n%s Pod: %s (Namespace: %s)\n", bold("→"), perm.PodName, perm.Namespace)
		fmt.Fprintf(w, "  Service Account: %s\n", perm.ServiceAccount)
		fmt.Fprintf(w, "  IAM Role: %s\n", perm.IAMRole)

		for _, policy := range perm.Policies {
			fmt.Fprintf(w, "\n  Policy: %s\n", policy.Name)
			if policy.Arn != "" {
				fmt.Fprintf(w, "  ARN: %s\n", policy.Arn)
			} else if policy.Inline {
				fmt.Fprintln(w, "  Inline policy")
			}
			printReportBody(w, policy.Report, "  ")
		}
		fmt.Fprintln(w)
	}
}

func printReportBody(w io.Writer, report types.RiskReport, indent string) {
	fmt.Fprintf(w, "%s%s Risk: %s (%.1f/100)\n", indent, levelIcon(report.Level),
		colorLevel(report.Level, string(report.Level)), report.Score)
	fmt.Fprintf(w, "%s%s\n", indent, report.Summary)

	if len(report.Findings) == 0 {
		fmt.Fprintf(w, "%s%s No issues found\n", indent, checkmark)
		return
	}

	fmt.Fprintf(w, "%sIssues:\n", indent)
	for _, f := range report.Findings {
		fmt.Fprintf(w, "%s  %s %s\n", indent, warning, f)
	}
	if len(report.Recommendations) == 0 {
		return
	}
	fmt.Fprintf(w, "%sRecommendations:\n", indent)
	for _, r := range report.Recommendations {
		fmt.Fprintf(w, "%s  %s %s\n", indent, bold("→"), r)
	}
}
