package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/berkguzel/iamrisk/pkg/policy"
	"github.com/berkguzel/iamrisk/pkg/types"
)

const (
	maxConcurrentAPICalls = 8
	apiOperationTimeout   = 5 * time.Second
)

// GetPolicyDocument returns the default version of a managed policy.
func (c *Client) GetPolicyDocument(ctx context.Context, policyArn string) (types.PolicyDocument, error) {
	const op = "aws.GetPolicyDocument"

	policyCtx, cancel := context.WithTimeout(ctx, apiOperationTimeout)
	defer cancel()

	out, err := c.iamClient.GetPolicy(policyCtx, &iam.GetPolicyInput{
		PolicyArn: aws.String(policyArn),
	})
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindFetch, op, "failed to get policy "+policyArn, err)
	}
	if out.Policy == nil || out.Policy.DefaultVersionId == nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindFetch, op, "policy "+policyArn+" has no default version", nil)
	}

	versionID := aws.ToString(out.Policy.DefaultVersionId)
	key := cacheKey(policyArn, versionID)
	if doc, ok := c.cache.Get(key); ok {
		return doc, nil
	}

	versionCtx, versionCancel := context.WithTimeout(ctx, apiOperationTimeout)
	defer versionCancel()

	version, err := c.iamClient.GetPolicyVersion(versionCtx, &iam.GetPolicyVersionInput{
		PolicyArn: aws.String(policyArn),
		VersionId: aws.String(versionID),
	})
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindFetch, op, "failed to get policy version", err)
	}
	if version.PolicyVersion == nil || version.PolicyVersion.Document == nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindFetch, op, "policy version "+versionID+" has no document", nil)
	}

	doc, err := policy.ParseIAM(aws.ToString(version.PolicyVersion.Document))
	if err != nil {
		return types.PolicyDocument{}, err
	}

	c.cache.Set(key, doc)
	return doc, nil
}

func (c *Client) getInlinePolicyDocument(ctx context.Context, roleName, policyName string) (types.PolicyDocument, error) {
	inlineCtx, cancel := context.WithTimeout(ctx, apiOperationTimeout)
	defer cancel()

	out, err := c.iamClient.GetRolePolicy(inlineCtx, &iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindFetch, "aws.GetRolePolicy", "failed to get inline policy "+policyName, err)
	}
	return policy.ParseIAM(aws.ToString(out.PolicyDocument))
}

type policyJob struct {
	name   string
	arn    string
	inline bool
}

// GetRolePolicies returns the attached managed and inline policies of a role.
// Documents are fetched concurrently; the result keeps the listing order and
// includes every policy that could be fetched even when some fail.
func (c *Client) GetRolePolicies(ctx context.Context, roleArn string) ([]types.Policy, error) {
	roleName := getRoleNameFromARN(roleArn)

	jobs, err := c.listRolePolicies(ctx, roleName)
	if err != nil {
		return nil, err
	}

	results := make([]*types.Policy, len(jobs))
	errorChan := make(chan error, len(jobs))
	sem := make(chan struct{}, maxConcurrentAPICalls)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job policyJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var doc types.PolicyDocument
			var err error
			if job.inline {
				doc, err = c.getInlinePolicyDocument(ctx, roleName, job.name)
			} else {
				doc, err = c.GetPolicyDocument(ctx, job.arn)
			}
			if err != nil {
				errorChan <- err
				return
			}

			results[i] = &types.Policy{
				Name:     job.name,
				Arn:      job.arn,
				Inline:   job.inline,
				Document: doc,
			}
		}(i, job)
	}

	wg.Wait()
	close(errorChan)

	policies := make([]types.Policy, 0, len(jobs))
	for _, p := range results {
		if p != nil {
			policies = append(policies, *p)
		}
	}

	var errList []error
	for err := range errorChan {
		errList = append(errList, err)
	}
	if len(errList) > 0 {
		return policies, errs.Wrap(errs.KindFetch, "aws.GetRolePolicies",
			fmt.Sprintf("errors getting policy documents for role %s", roleName), errors.Join(errList...))
	}

	return policies, nil
}

func (c *Client) listRolePolicies(ctx context.Context, roleName string) ([]policyJob, error) {
	var jobs []policyJob

	attached := iam.NewListAttachedRolePoliciesPaginator(c.iamClient, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	for attached.HasMorePages() {
		page, err := attached.NextPage(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindFetch, "aws.ListAttachedRolePolicies", "failed to list attached role policies", err)
		}
		for _, p := range page.AttachedPolicies {
			jobs = append(jobs, policyJob{
				name: aws.ToString(p.PolicyName),
				arn:  aws.ToString(p.PolicyArn),
			})
		}
	}

	inline := iam.NewListRolePoliciesPaginator(c.iamClient, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	for inline.HasMorePages() {
		page, err := inline.NextPage(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindFetch, "aws.ListRolePolicies", "failed to list inline role policies", err)
		}
		for _, name := range page.PolicyNames {
			jobs = append(jobs, policyJob{name: name, inline: true})
		}
	}

	return jobs, nil
}
