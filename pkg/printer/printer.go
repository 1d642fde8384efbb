package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/berkguzel/iamrisk/internal/options"
	"github.com/berkguzel/iamrisk/pkg/risk"
	"github.com/berkguzel/iamrisk/pkg/types"
)

// Print renders pod policy reports as a table, a detailed listing, or JSON.
func Print(w io.Writer, perms []types.PodPermissions, opts *options.Options) error {
	if opts.RiskOnly {
		perms = riskyOnly(perms)
	}

	if opts.Output == options.OutputJSON {
		return writeJSON(w, perms)
	}

	if opts.Details {
		PrintPermissions(w, perms)
		return nil
	}

	if len(perms) == 0 {
		fmt.Fprintln(w, "No pods with IAM roles found")
		return nil
	}

	printPolicyTableHeader(w)
	for _, perm := range perms {
		for _, policy := range perm.Policies {
			doc := policy.Document
			fmt.Fprintf(w, "| %-20s | %-30s | %-7s | %5.1f | %s | %-10s | %-9s |\n",
				truncateString(perm.PodName, 20),
				truncateString(policy.Name, 30),
				truncateString(determineService(doc), 7),
				policy.Report.Score,
				colorLevel(policy.Report.Level, fmt.Sprintf("%-7s", policy.Report.Level)),
				truncateString(determineResourceScope(doc), 10),
				determineConditions(doc),
			)
		}
	}
	printPolicySeparator(w)
	return nil
}

// riskyOnly drops MINIMAL policies and pods left without any policy.
func riskyOnly(perms []types.PodPermissions) []types.PodPermissions {
	out := []types.PodPermissions{}
	for _, perm := range perms {
		var policies []types.Policy
		for _, policy := range perm.Policies {
			if policy.Report.Level != types.RiskMinimal {
				policies = append(policies, policy)
			}
		}
		if len(policies) == 0 {
			continue
		}
		perm.Policies = policies
		out = append(out, perm)
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %v", err)
	}
	return nil
}

func allowStatements(doc types.PolicyDocument) []types.Statement {
	var out []types.Statement
	for _, stmt := range doc.Statement {
		if types.ParseEffect(stmt.Effect) == types.EffectAllow {
			out = append(out, stmt)
		}
	}
	return out
}

// determineService names the AWS service granted by Allow statements, e.g.
// "s3:GetObject" -> "S3".
func determineService(doc types.PolicyDocument) string {
	services := make(map[string]bool)
	for _, stmt := range allowStatements(doc) {
		for _, action := range risk.StringList(stmt.Action) {
			if action == risk.Wildcard {
				return "ALL"
			}
			if parts := strings.SplitN(action, ":", 2); len(parts) == 2 {
				services[strings.ToUpper(parts[0])] = true
			}
		}
	}

	switch len(services) {
	case 0:
		return "Unknown"
	case 1:
		for s := range services {
			return s
		}
	}
	names := make([]string, 0, len(services))
	for s := range services {
		names = append(names, s)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func determineResourceScope(doc types.PolicyDocument) string {
	hasWildcard := false
	resources := make(map[string]bool)

	for _, stmt := range allowStatements(doc) {
		for _, r := range risk.StringList(stmt.Resource) {
			resources[r] = true
			if strings.Contains(r, "*") {
				hasWildcard = true
			}
		}
	}

	switch {
	case hasWildcard:
		return "*"
	case len(resources) > 1:
		return "Multiple"
	case len(resources) == 1:
		return "Single"
	}
	return "None"
}

func determineConditions(doc types.PolicyDocument) string {
	for _, stmt := range doc.Statement {
		if len(risk.Conditions(stmt.Condition)) > 0 {
			return "Yes"
		}
	}
	return "No"
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

func printPolicyTableHeader(w io.Writer) {
	printPolicySeparator(w)
	fmt.Fprintf(w, "| %-20s | %-30s | %-7s | %-5s | %-7s | %-10s | %-9s |\n",
		"POD",
		"POLICY NAME",
		"SERVICE",
		"SCORE",
		"LEVEL",
		"RESOURCE",
		"CONDITION",
	)
	printPolicySeparator(w)
}

func printPolicySeparator(w io.Writer) {
	fmt.Fprintln(w, "+----------------------+--------------------------------+---------+-------+---------+------------+-----------+")
}
