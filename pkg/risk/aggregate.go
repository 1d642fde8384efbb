package risk

import (
	"math"
	"strconv"

	"github.com/berkguzel/iamrisk/pkg/types"
)

// ceilingPerStatement is the rough per-statement maximum used to normalise
// the raw total. The resulting score is a bounded severity index, not a
// probability.
const ceilingPerStatement = 50

type Aggregate struct {
	RawTotal        int
	Ceiling         int
	Score           float64
	Findings        []types.Finding
	Recommendations []types.Recommendation
}

// Combine sums statement results in order and normalises the total to 0-100,
// rounded to one decimal place.
func Combine(results []StatementResult) Aggregate {
	agg := Aggregate{
		Findings:        []types.Finding{},
		Recommendations: []types.Recommendation{},
	}
	for _, r := range results {
		agg.RawTotal += r.Score
		agg.Findings = append(agg.Findings, r.Findings...)
		agg.Recommendations = append(agg.Recommendations, r.Recommendations...)
	}

	statements := len(results)
	if statements < 1 {
		statements = 1
	}
	agg.Ceiling = ceilingPerStatement * statements

	normalized := math.Min(100, float64(agg.RawTotal)/float64(agg.Ceiling)*100)
	agg.Score = roundTenth(normalized)
	return agg
}

// roundTenth rounds the exact decimal value of v to one place, ties to even.
func roundTenth(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return r
}
