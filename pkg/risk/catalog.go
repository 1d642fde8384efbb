package risk

// Wildcard is the literal token meaning "all" for actions and resources.
const Wildcard = "*"

var defaultAdminActions = []string{
	"*",
	"iam:*",
	"ec2:*",
	"s3:*",
	"lambda:*",
	"rds:*",
	"cloudformation:*",
}

// Several service wildcards appear in both this set and the admin set, so one
// action can score twice.
var defaultHighRiskActions = []string{
	"iam:*",
	"iam:CreateRole",
	"iam:AttachRolePolicy",
	"iam:PutRolePolicy",
	"sts:AssumeRole",
	"ec2:*",
	"ec2:RunInstances",
	"ec2:TerminateInstances",
	"s3:*",
	"s3:DeleteBucket",
	"s3:PutBucketPolicy",
	"s3:PutBucketAcl",
	"lambda:*",
	"lambda:CreateFunction",
	"lambda:UpdateFunctionCode",
	"rds:*",
	"rds:DeleteDBInstance",
	"rds:CreateDBInstance",
	"cloudformation:*",
	"cloudformation:CreateStack",
	"cloudformation:DeleteStack",
}

var defaultSensitiveResources = []string{
	"*",
	"arn:aws:iam::*:*",
	"arn:aws:s3:::*",
}

// Catalog holds the known risk signatures. It is never mutated after
// construction and may be shared between goroutines.
//
// Lookups are exact string matches: "s3:Put*" does not match
// "s3:PutBucketPolicy".
type Catalog struct {
	adminActions       map[string]struct{}
	highRiskActions    map[string]struct{}
	sensitiveResources map[string]struct{}
}

// DefaultCatalog returns the built-in AWS catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultAdminActions, defaultHighRiskActions, defaultSensitiveResources)
}

func NewCatalog(adminActions, highRiskActions, sensitiveResources []string) *Catalog {
	return &Catalog{
		adminActions:       toSet(adminActions),
		highRiskActions:    toSet(highRiskActions),
		sensitiveResources: toSet(sensitiveResources),
	}
}

func (c *Catalog) IsAdminAction(action string) bool {
	_, ok := c.adminActions[action]
	return ok
}

func (c *Catalog) IsHighRiskAction(action string) bool {
	_, ok := c.highRiskActions[action]
	return ok
}

func (c *Catalog) IsSensitiveResource(resource string) bool {
	_, ok := c.sensitiveResources[resource]
	return ok
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
