package options

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
)

const (
	CommandScore    = "score"
	CommandGenerate = "generate"
	CommandExplain  = "explain"
	CommandPolicy   = "policy"
	CommandPod      = "pod"
	CommandServe    = "serve"
	CommandHelp     = "help"

	OutputText = "text"
	OutputJSON = "json"

	defaultModel        = "gpt-4"
	defaultAddr         = ":5000"
	defaultMaxBodyBytes = 1 << 20
)

type Options struct {
	Command string
	// Args holds the positional arguments following the command.
	Args []string

	PodName    string
	Namespace  string
	KubeConfig string
	Output     string
	RiskOnly   bool
	Details    bool

	Addr         string
	Model        string
	APIKey       string
	BaseURL      string
	MaxBodyBytes int64
}

func NewOptions() *Options {
	// Check KUBECONFIG env var first
	kubeconfig := ""
	if envPath := os.Getenv("KUBECONFIG"); envPath != "" {
		kubeconfig = envPath
	} else {
		home, _ := homedir.Dir()
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	opts := &Options{
		KubeConfig:   kubeconfig,
		Namespace:    "default",
		Output:       OutputText,
		Addr:         envOr("IAMRISK_ADDR", defaultAddr),
		Model:        envOr("OPENAI_MODEL", defaultModel),
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		BaseURL:      os.Getenv("OPENAI_BASE_URL"),
		MaxBodyBytes: defaultMaxBodyBytes,
	}
	if v := os.Getenv("MAX_REQUEST_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			opts.MaxBodyBytes = n
		}
	}
	return opts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Parse reads the command, its positional arguments and flags from args
// (without the program name). Flags may appear anywhere.
func (o *Options) Parse(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help":
			o.Command = CommandHelp
		case "-r", "--risk-only":
			o.RiskOnly = true
		case "-d", "--details":
			o.Details = true
		case "-o", "--output", "-n", "--namespace", "--kubeconfig", "--addr", "--model":
			if i+1 >= len(args) {
				return fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			o.setValue(arg, args[i])
		default:
			if arg != "-" && strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unknown flag %s", arg)
			}
			if o.Command == "" {
				o.Command = arg
			} else {
				o.Args = append(o.Args, arg)
			}
		}
	}

	if o.Command == "" {
		o.Command = CommandHelp
	}
	if o.Command == CommandPod && len(o.Args) > 0 {
		o.PodName = o.Args[0]
	}
	return o.Validate()
}

func (o *Options) setValue(flag, value string) {
	switch flag {
	case "-o", "--output":
		o.Output = value
	case "-n", "--namespace":
		o.Namespace = value
	case "--kubeconfig":
		o.KubeConfig = value
	case "--addr":
		o.Addr = value
	case "--model":
		o.Model = value
	}
}

func (o *Options) Validate() error {
	if o.Output != OutputText && o.Output != OutputJSON {
		return fmt.Errorf("invalid output format %q: must be %s or %s", o.Output, OutputText, OutputJSON)
	}

	switch o.Command {
	case CommandScore, CommandExplain:
		if len(o.Args) != 1 {
			return fmt.Errorf("%s requires exactly one policy file (or - for stdin)", o.Command)
		}
	case CommandPolicy:
		if len(o.Args) != 1 {
			return fmt.Errorf("policy requires exactly one policy ARN")
		}
	case CommandGenerate:
		if strings.TrimSpace(o.Prompt()) == "" {
			return fmt.Errorf("generate requires a prompt")
		}
	case CommandPod, CommandServe, CommandHelp:
	default:
		return fmt.Errorf("unknown command %q", o.Command)
	}
	return nil
}

// Prompt joins the positional arguments of the generate command.
func (o *Options) Prompt() string {
	return strings.Join(o.Args, " ")
}

const Usage = `iamrisk scores AWS IAM policies for security risk.

Usage:
  iamrisk score <file|->          Score a policy document (JSON or YAML)
  iamrisk generate <prompt...>    Generate a policy from a description and score it
  iamrisk explain <file|->        Explain a policy in plain language
  iamrisk policy <arn>            Fetch a managed policy from AWS and score it
  iamrisk pod [name]              Score the IAM policies of a pod, or of every pod in the namespace
  iamrisk serve                   Start the HTTP API

Flags:
  -o, --output text|json   Output format (default text)
  -n, --namespace NAME     Kubernetes namespace (default "default")
      --kubeconfig PATH    Path to kubeconfig (default $KUBECONFIG or ~/.kube/config)
  -r, --risk-only          Hide MINIMAL risk policies
  -d, --details            Show findings and recommendations per policy
      --addr ADDR          Listen address for serve (default $IAMRISK_ADDR or :5000)
      --model NAME         OpenAI model (default $OPENAI_MODEL or gpt-4)
  -h, --help               Show this help
`
