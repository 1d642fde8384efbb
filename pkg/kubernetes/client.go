package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berkguzel/iamrisk/pkg/analyzer"
	"github.com/berkguzel/iamrisk/pkg/errs"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// RoleAnnotation is the IRSA annotation binding a service account to an IAM role.
const RoleAnnotation = "eks.amazonaws.com/role-arn"

type Client struct {
	clientset kubernetes.Interface
}

func NewClient(kubeconfigPath string) (*Client, error) {
	var config *rest.Config
	var err error

	// If running inside cluster
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		config, err = rest.InClusterConfig()
	} else {
		if kubeconfigPath == "" {
			if envPath := os.Getenv("KUBECONFIG"); envPath != "" {
				kubeconfigPath = envPath
			} else {
				homeDir, _ := os.UserHomeDir()
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create config: %v", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %v", err)
	}

	return NewForClientset(clientset), nil
}

func NewForClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

func (c *Client) GetPod(ctx context.Context, name, namespace string) (analyzer.Pod, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return analyzer.Pod{}, errs.Wrap(errs.KindFetch, "kubernetes.GetPod", "failed to get pod "+name, err)
	}
	return toPod(pod), nil
}

// ListPods returns every pod in namespace, following continue tokens.
func (c *Client) ListPods(ctx context.Context, namespace string) ([]analyzer.Pod, error) {
	var pods []analyzer.Pod
	opts := metav1.ListOptions{Limit: 500}

	for {
		list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, opts)
		if err != nil {
			return nil, errs.Wrap(errs.KindFetch, "kubernetes.ListPods", "failed to list pods in namespace "+namespace, err)
		}
		for i := range list.Items {
			pods = append(pods, toPod(&list.Items[i]))
		}
		if list.Continue == "" {
			return pods, nil
		}
		opts.Continue = list.Continue
	}
}

func (c *Client) GetServiceAccountIAMRole(ctx context.Context, namespace, saName string) (string, error) {
	sa, err := c.clientset.CoreV1().ServiceAccounts(namespace).Get(ctx, saName, metav1.GetOptions{})
	if err != nil {
		return "", errs.Wrap(errs.KindFetch, "kubernetes.GetServiceAccount", "failed to get service account "+saName, err)
	}

	roleARN, exists := sa.Annotations[RoleAnnotation]
	if !exists || roleARN == "" {
		return "", analyzer.ErrNoIAMRole
	}

	return roleARN, nil
}

func toPod(pod *corev1.Pod) analyzer.Pod {
	return analyzer.Pod{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Spec: analyzer.PodSpec{
			ServiceAccountName: pod.Spec.ServiceAccountName,
		},
	}
}
