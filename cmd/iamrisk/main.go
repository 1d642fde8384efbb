package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/berkguzel/iamrisk/internal/options"
	"github.com/berkguzel/iamrisk/pkg/analyzer"
	"github.com/berkguzel/iamrisk/pkg/aws"
	"github.com/berkguzel/iamrisk/pkg/generator"
	"github.com/berkguzel/iamrisk/pkg/kubernetes"
	"github.com/berkguzel/iamrisk/pkg/metrics"
	"github.com/berkguzel/iamrisk/pkg/policy"
	"github.com/berkguzel/iamrisk/pkg/printer"
	"github.com/berkguzel/iamrisk/pkg/risk"
	"github.com/berkguzel/iamrisk/pkg/server"
	"github.com/berkguzel/iamrisk/pkg/types"
)

// Overridden in tests.
var (
	newGenerator = func(opts *options.Options) (generator.Generator, error) {
		return generator.NewOpenAI(generator.Config{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
		})
	}
	newAWSClient           = aws.NewClient
	stdin        io.Reader = os.Stdin
)

func main() {
	opts := options.NewOptions()
	if err := opts.Parse(os.Args[1:]); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options.Options, w io.Writer) error {
	scorer := risk.New(nil)

	switch opts.Command {
	case options.CommandScore:
		doc, err := readPolicy(opts.Args[0])
		if err != nil {
			return err
		}
		return printer.PrintReport(w, scorer.Analyze(doc), opts.Output)

	case options.CommandExplain:
		doc, err := readPolicy(opts.Args[0])
		if err != nil {
			return err
		}
		gen, err := newGenerator(opts)
		if err != nil {
			return err
		}
		explanation, err := gen.ExplainPolicy(ctx, doc)
		if err != nil {
			return err
		}
		return printer.PrintExplanation(w, explanation, opts.Output)

	case options.CommandGenerate:
		gen, err := newGenerator(opts)
		if err != nil {
			return err
		}
		doc, err := gen.GeneratePolicy(ctx, opts.Prompt())
		if err != nil {
			return err
		}
		return printer.PrintPolicyReport(w, doc, scorer.Analyze(doc), opts.Output)

	case options.CommandPolicy:
		awsClient, err := newAWSClient(ctx)
		if err != nil {
			return err
		}
		doc, err := awsClient.GetPolicyDocument(ctx, opts.Args[0])
		if err != nil {
			return err
		}
		return printer.PrintPolicyReport(w, doc, scorer.Analyze(doc), opts.Output)

	case options.CommandPod:
		k8sClient, err := kubernetes.NewClient(opts.KubeConfig)
		if err != nil {
			return err
		}
		awsClient, err := newAWSClient(ctx)
		if err != nil {
			return err
		}
		results, err := analyzer.New(k8sClient, awsClient, scorer).Analyze(ctx, opts)
		if err != nil {
			return err
		}
		return printer.Print(w, results, opts)

	case options.CommandServe:
		gen, err := newGenerator(opts)
		if err != nil {
			log.Printf("warning: %v; /generate-policy and /explain-policy are disabled", err)
			gen = nil
		}
		m := metrics.New()
		cfg := server.Config{
			Generator:    gen,
			Scorer:       scorer,
			Metrics:      m,
			MaxBodyBytes: opts.MaxBodyBytes,
		}
		if awsClient, err := newAWSClient(ctx); err != nil {
			log.Printf("warning: %v; policy_arn lookups are disabled", err)
		} else {
			if err := m.RegisterPolicyCache(awsClient.Cache()); err != nil {
				return err
			}
			cfg.Policies = awsClient
		}
		srv := server.New(cfg)
		return srv.ListenAndServe(ctx, opts.Addr)

	default:
		_, err := fmt.Fprint(w, options.Usage)
		return err
	}
}

// readPolicy loads a policy document from path, or from stdin when path is "-".
func readPolicy(path string) (types.PolicyDocument, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return types.PolicyDocument{}, fmt.Errorf("failed to read policy %s: %v", path, err)
	}
	return policy.Parse(data)
}
