package aws

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// iamAPI is the subset of the IAM client used to read role policies.
type iamAPI interface {
	GetPolicy(ctx context.Context, params *iam.GetPolicyInput, optFns ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
	GetPolicyVersion(ctx context.Context, params *iam.GetPolicyVersionInput, optFns ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
	GetRolePolicy(ctx context.Context, params *iam.GetRolePolicyInput, optFns ...func(*iam.Options)) (*iam.GetRolePolicyOutput, error)
}

type Client struct {
	iamClient iamAPI
	cache     *Cache
}

func NewClient(ctx context.Context) (*Client, error) {
	region := resolveRegion()

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v", err)
	}

	if cfg.Region == "" {
		return nil, fmt.Errorf("no AWS region specified. Please set AWS_REGION environment variable or configure region in ~/.aws/config")
	}

	return newWithAPI(iam.NewFromConfig(cfg)), nil
}

func newWithAPI(api iamAPI) *Client {
	return &Client{
		iamClient: api,
		cache:     NewCache(),
	}
}

// Cache returns the policy document cache shared by every lookup of c.
func (c *Client) Cache() *Cache {
	return c.cache
}

// resolveRegion checks AWS_REGION, then AWS_DEFAULT_REGION, then the region
// prefix of CLUSTER_NAME (<region>.<cluster>).
func resolveRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		return region
	}
	if cluster := os.Getenv("CLUSTER_NAME"); cluster != "" {
		if parts := strings.Split(cluster, "."); len(parts) > 1 {
			return parts[0]
		}
	}
	return ""
}

func getRoleNameFromARN(arn string) string {
	parts := strings.Split(arn, "/")
	return parts[len(parts)-1]
}
