package risk

import (
	"strings"

	"github.com/berkguzel/iamrisk/pkg/types"
)

// Per-check weights.
const (
	weightWildcardAction    = 30
	weightAdminAction       = 20
	weightHighRiskAction    = 15
	weightWildcardResource  = 25
	weightSensitiveResource = 10
	weightMissingConditions = 10
	weightBlanketDeny       = 5
)

// StatementResult is the partial score and messages for one statement.
type StatementResult struct {
	Index           int
	Score           int
	Findings        []types.Finding
	Recommendations []types.Recommendation
}

func (r *StatementResult) add(weight int, finding, recommendation string) {
	r.Score += weight
	r.Findings = append(r.Findings, types.Finding{StatementIndex: r.Index, Message: finding})
	if recommendation != "" {
		r.Recommendations = append(r.Recommendations, types.Recommendation{StatementIndex: r.Index, Message: recommendation})
	}
}

type Evaluator struct {
	catalog *Catalog
}

func NewEvaluator(catalog *Catalog) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Evaluator{catalog: catalog}
}

// Evaluate scores one statement. index is the statement's 1-based position.
func (e *Evaluator) Evaluate(index int, raw types.Statement) StatementResult {
	stmt := normalizeStatement(raw)
	result := StatementResult{Index: index}

	switch stmt.effect {
	case types.EffectAllow:
		e.evaluateAllow(stmt, &result)
	case types.EffectDeny:
		if contains(stmt.actions, Wildcard) && contains(stmt.resources, Wildcard) {
			result.add(weightBlanketDeny,
				"Denies all actions on all resources - may be too restrictive", "")
		}
	}

	return result
}

func (e *Evaluator) evaluateAllow(stmt statement, result *StatementResult) {
	if contains(stmt.actions, Wildcard) {
		result.add(weightWildcardAction,
			"Grants all actions (*) - extremely broad permissions",
			"Specify only the required actions instead of using '*'")
	}

	adminFound := matching(stmt.actions, e.catalog.IsAdminAction)
	if len(adminFound) > 0 {
		result.add(weightAdminAction,
			"Contains administrative actions: "+strings.Join(adminFound, ", "),
			"Consider if administrative permissions are truly necessary")
	}

	highRiskFound := matching(stmt.actions, e.catalog.IsHighRiskAction)
	if len(highRiskFound) > 0 {
		result.add(weightHighRiskAction,
			"Contains high-risk actions: "+strings.Join(highRiskFound, ", "),
			"Review if these high-risk actions are necessary")
	}

	if contains(stmt.resources, Wildcard) {
		result.add(weightWildcardResource,
			"Grants access to all resources (*)",
			"Specify exact resource ARNs instead of using '*'")
	}

	if sensitive := matching(stmt.resources, e.catalog.IsSensitiveResource); len(sensitive) > 0 {
		result.add(weightSensitiveResource,
			"Accesses sensitive resources: "+strings.Join(sensitive, ", "), "")
	}

	if len(stmt.conditions) == 0 && (len(adminFound) > 0 || len(highRiskFound) > 0) {
		result.add(weightMissingConditions,
			"High-privilege actions without conditions",
			"Add conditions like IP restrictions or MFA requirements")
	}
}
