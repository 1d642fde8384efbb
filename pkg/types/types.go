package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Effect string

const (
	EffectAllow   Effect = "Allow"
	EffectDeny    Effect = "Deny"
	EffectUnknown Effect = "Unknown"
)

// ParseEffect only recognises the exact strings "Allow" and "Deny".
func ParseEffect(s string) Effect {
	switch Effect(s) {
	case EffectAllow:
		return EffectAllow
	case EffectDeny:
		return EffectDeny
	}
	return EffectUnknown
}

type RiskLevel string

const (
	RiskMinimal RiskLevel = "MINIMAL"
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
)

// Statement keeps the raw JSON shapes of an IAM statement. Action and
// Resource may be a string or a list, Condition is usually a mapping.
type Statement struct {
	Sid         string      `json:"Sid,omitempty"`
	Effect      string      `json:"Effect,omitempty"`
	Principal   interface{} `json:"Principal,omitempty"`
	Action      interface{} `json:"Action,omitempty"`
	NotAction   interface{} `json:"NotAction,omitempty"`
	Resource    interface{} `json:"Resource,omitempty"`
	NotResource interface{} `json:"NotResource,omitempty"`
	Condition   interface{} `json:"Condition,omitempty"`
}

// Statements decodes either a single statement object or a list of them.
type Statements []Statement

func (s *Statements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single Statement
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*s = Statements{single}
		return nil
	}

	var list []Statement
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

type PolicyDocument struct {
	Version   string     `json:"Version"`
	Statement Statements `json:"Statement"`
}

type Finding struct {
	StatementIndex int
	Message        string
}

func (f Finding) String() string {
	return fmt.Sprintf("Statement %d: %s", f.StatementIndex, f.Message)
}

type Recommendation struct {
	StatementIndex int
	Message        string
}

func (r Recommendation) String() string {
	return fmt.Sprintf("Statement %d: %s", r.StatementIndex, r.Message)
}

type RiskReport struct {
	Score           float64
	Level           RiskLevel
	Findings        []Finding
	Recommendations []Recommendation
	Summary         string
}

type riskReportJSON struct {
	RiskScore       float64   `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	Summary         string    `json:"summary"`
}

// MarshalJSON renders findings and recommendations as "Statement N: ..." strings.
func (r RiskReport) MarshalJSON() ([]byte, error) {
	out := riskReportJSON{
		RiskScore:       r.Score,
		RiskLevel:       r.Level,
		Issues:          make([]string, 0, len(r.Findings)),
		Recommendations: make([]string, 0, len(r.Recommendations)),
		Summary:         r.Summary,
	}
	for _, f := range r.Findings {
		out.Issues = append(out.Issues, f.String())
	}
	for _, rec := range r.Recommendations {
		out.Recommendations = append(out.Recommendations, rec.String())
	}
	return json.Marshal(out)
}

// Policy is an IAM policy attached to a role, with its document and score.
type Policy struct {
	Name     string         `json:"name"`
	Arn      string         `json:"arn,omitempty"`
	Inline   bool           `json:"inline,omitempty"`
	Document PolicyDocument `json:"document"`
	Report   RiskReport     `json:"risk_analysis"`
}

type PodPermissions struct {
	PodName        string   `json:"pod"`
	Namespace      string   `json:"namespace"`
	ServiceAccount string   `json:"service_account"`
	IAMRole        string   `json:"iam_role"`
	Policies       []Policy `json:"policies"`
}

func (p Policy) String() string {
	return fmt.Sprintf("Policy: %s (%s) with %d statements", p.Name, p.Arn, len(p.Document.Statement))
}

func (p PodPermissions) String() string {
	return fmt.Sprintf("Pod: %s in namespace %s using service account %s with IAM role %s (%d policies)",
		p.PodName, p.Namespace, p.ServiceAccount, p.IAMRole, len(p.Policies))
}
