// Package risk scores IAM policy documents against a catalog of known risky
// actions and resources.
//
// Analysis is synchronous and allocation-local: an Analyzer may be shared by
// any number of goroutines.
package risk

import "github.com/berkguzel/iamrisk/pkg/types"

type Analyzer struct {
	evaluator *Evaluator
}

// New returns an Analyzer using catalog, or DefaultCatalog when catalog is nil.
func New(catalog *Catalog) *Analyzer {
	return &Analyzer{evaluator: NewEvaluator(catalog)}
}

// Analyze never fails: unexpected field shapes degrade to empty values.
func (a *Analyzer) Analyze(doc types.PolicyDocument) types.RiskReport {
	results := make([]StatementResult, 0, len(doc.Statement))
	for i, stmt := range doc.Statement {
		results = append(results, a.evaluator.Evaluate(i+1, stmt))
	}

	agg := Combine(results)
	level := Classify(agg.Score)

	return types.RiskReport{
		Score:           agg.Score,
		Level:           level,
		Findings:        agg.Findings,
		Recommendations: agg.Recommendations,
		Summary:         Summarize(level, agg.Score, len(agg.Findings)),
	}
}
