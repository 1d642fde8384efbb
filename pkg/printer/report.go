package printer

import (
	"fmt"
	"io"

	"github.com/berkguzel/iamrisk/internal/options"
	"github.com/berkguzel/iamrisk/pkg/policy"
	"github.com/berkguzel/iamrisk/pkg/types"
)

// PrintReport renders a single risk report as coloured text or JSON.
func PrintReport(w io.Writer, report types.RiskReport, format string) error {
	if format == options.OutputJSON {
		return writeJSON(w, report)
	}
	printReportBody(w, report, "")
	return nil
}

// PrintPolicy writes doc as indented JSON.
func PrintPolicy(w io.Writer, doc types.PolicyDocument) error {
	data, err := policy.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintPolicyReport renders a policy followed by its risk report.
func PrintPolicyReport(w io.Writer, doc types.PolicyDocument, report types.RiskReport, format string) error {
	if format == options.OutputJSON {
		return writeJSON(w, struct {
			Policy       types.PolicyDocument `json:"policy"`
			RiskAnalysis types.RiskReport     `json:"risk_analysis"`
		}{doc, report})
	}

	fmt.Fprintln(w, bold("Policy:"))
	if err := PrintPolicy(w, doc); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Risk analysis:"))
	printReportBody(w, report, "")
	return nil
}

// PrintExplanation renders a policy explanation as text or JSON.
func PrintExplanation(w io.Writer, explanation, format string) error {
	if format == options.OutputJSON {
		return writeJSON(w, map[string]string{"explanation": explanation})
	}
	_, err := fmt.Fprintln(w, explanation)
	return err
}
