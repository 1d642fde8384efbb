package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/berkguzel/iamrisk/internal/options"
	"github.com/berkguzel/iamrisk/pkg/risk"
	"github.com/berkguzel/iamrisk/pkg/types"
)

// ErrNoIAMRole is returned when a service account carries no IRSA role.
var ErrNoIAMRole = errors.New("no IAM role annotation found on service account")

type K8sClient interface {
	GetPod(ctx context.Context, name, namespace string) (Pod, error)
	ListPods(ctx context.Context, namespace string) ([]Pod, error)
	GetServiceAccountIAMRole(ctx context.Context, namespace, saName string) (string, error)
}

type AWSClient interface {
	GetRolePolicies(ctx context.Context, roleArn string) ([]types.Policy, error)
}

type Analyzer struct {
	k8sClient K8sClient
	awsClient AWSClient
	scorer    *risk.Analyzer
}

func New(k8sClient K8sClient, awsClient AWSClient, scorer *risk.Analyzer) *Analyzer {
	if scorer == nil {
		scorer = risk.New(nil)
	}
	return &Analyzer{
		k8sClient: k8sClient,
		awsClient: awsClient,
		scorer:    scorer,
	}
}

type Pod struct {
	Name      string
	Namespace string
	Spec      PodSpec
}

type PodSpec struct {
	ServiceAccountName string
}

func serviceAccountName(pod Pod) string {
	if pod.Spec.ServiceAccountName == "" {
		return "default"
	}
	return pod.Spec.ServiceAccountName
}

// Analyze scores the IAM policies reachable from one pod, or from every pod
// in the namespace when no pod name is given.
func (a *Analyzer) Analyze(ctx context.Context, opts *options.Options) ([]types.PodPermissions, error) {
	if opts.PodName != "" {
		return a.analyzePod(ctx, opts.PodName, opts.Namespace)
	}
	return a.analyzeNamespace(ctx, opts.Namespace)
}

func (a *Analyzer) analyzePod(ctx context.Context, podName, namespace string) ([]types.PodPermissions, error) {
	pod, err := a.k8sClient.GetPod(ctx, podName, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s: %w", podName, err)
	}

	saName := serviceAccountName(pod)
	iamRole, err := a.k8sClient.GetServiceAccountIAMRole(ctx, namespace, saName)
	if err != nil {
		return nil, fmt.Errorf("no IAM role found for service account %s: %w", saName, err)
	}

	policies, err := a.rolePolicies(ctx, iamRole)
	if err != nil {
		return nil, err
	}

	return []types.PodPermissions{{
		PodName:        podName,
		Namespace:      namespace,
		ServiceAccount: saName,
		IAMRole:        iamRole,
		Policies:       policies,
	}}, nil
}

// analyzeNamespace skips pods whose service account has no IRSA role.
// Policies are fetched once per role.
func (a *Analyzer) analyzeNamespace(ctx context.Context, namespace string) ([]types.PodPermissions, error) {
	pods, err := a.k8sClient.ListPods(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in namespace %s: %w", namespace, err)
	}

	roles := make(map[string]string)
	byRole := make(map[string][]types.Policy)
	results := []types.PodPermissions{}

	for _, pod := range pods {
		saName := serviceAccountName(pod)

		iamRole, seen := roles[saName]
		if !seen {
			iamRole, err = a.k8sClient.GetServiceAccountIAMRole(ctx, namespace, saName)
			if errors.Is(err, ErrNoIAMRole) {
				iamRole = ""
			} else if err != nil {
				return nil, fmt.Errorf("failed to resolve IAM role for service account %s: %w", saName, err)
			}
			roles[saName] = iamRole
		}
		if iamRole == "" {
			continue
		}

		policies, ok := byRole[iamRole]
		if !ok {
			policies, err = a.rolePolicies(ctx, iamRole)
			if err != nil {
				return nil, err
			}
			byRole[iamRole] = policies
		}

		results = append(results, types.PodPermissions{
			PodName:        pod.Name,
			Namespace:      namespace,
			ServiceAccount: saName,
			IAMRole:        iamRole,
			Policies:       policies,
		})
	}

	return results, nil
}

// rolePolicies fetches and scores the policies of a role. A partial fetch is
// logged and scored; it only fails when nothing could be fetched.
func (a *Analyzer) rolePolicies(ctx context.Context, iamRole string) ([]types.Policy, error) {
	policies, err := a.awsClient.GetRolePolicies(ctx, iamRole)
	if err != nil {
		if len(policies) == 0 {
			return nil, fmt.Errorf("failed to get policies for role %s: %w", iamRole, err)
		}
		log.Printf("warning: some policies of role %s could not be fetched: %v", iamRole, err)
	}

	for i := range policies {
		policies[i].Report = a.scorer.Analyze(policies[i].Document)
	}
	return policies, nil
}
