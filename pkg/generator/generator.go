// Package generator turns natural-language requests into IAM policies and
// explains existing policies, using an OpenAI chat model.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/berkguzel/iamrisk/pkg/policy"
	"github.com/berkguzel/iamrisk/pkg/types"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = openai.GPT4

	generateMaxTokens = 2000
	explainMaxTokens  = 1000
	temperature       = 0.1
)

const generateSystemPrompt = `You are an AWS IAM policy expert. Convert natural language descriptions into valid AWS IAM policies in JSON format.

Rules:
1. Always return valid JSON that follows AWS IAM policy syntax
2. Use least privilege principle - grant only necessary permissions
3. Be specific with resources when possible
4. Include proper conditions when security requirements are mentioned
5. Use appropriate actions for the requested operations

Example input: "Allow read-only access to S3 bucket 'customer-logs' but block deletion"
Example output:
{
    "Version": "2012-10-17",
    "Statement": [
        {
            "Effect": "Allow",
            "Action": ["s3:GetObject", "s3:ListBucket"],
            "Resource": ["arn:aws:s3:::customer-logs", "arn:aws:s3:::customer-logs/*"]
        },
        {
            "Effect": "Deny",
            "Action": ["s3:DeleteObject", "s3:DeleteBucket"],
            "Resource": ["arn:aws:s3:::customer-logs", "arn:aws:s3:::customer-logs/*"]
        }
    ]
}

Return ONLY the JSON policy, no additional text.`

const explainSystemPrompt = `You are an AWS IAM policy expert. Explain the given IAM policy in clear, plain English.

Focus on:
1. What actions are allowed or denied
2. Which resources are affected
3. Any conditions that apply
4. Security implications
5. Potential risks or overly permissive permissions

Be concise but thorough.`

// Generator is the text-generation collaborator. Its latency and failure
// modes are opaque to callers.
type Generator interface {
	GeneratePolicy(ctx context.Context, prompt string) (types.PolicyDocument, error)
	ExplainPolicy(ctx context.Context, doc types.PolicyDocument) (string, error)
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAI struct {
	client chatClient
	model  string
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("no OpenAI API key configured. Please set the OPENAI_API_KEY environment variable")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model), nil
}

func newWithClient(client chatClient, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: client, model: model}
}

func (g *OpenAI) GeneratePolicy(ctx context.Context, prompt string) (types.PolicyDocument, error) {
	const op = "generator.GeneratePolicy"

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.PolicyDocument{}, errs.Validation(op, "no prompt provided")
	}

	text, err := g.complete(ctx, generateSystemPrompt, prompt, generateMaxTokens)
	if err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindGeneration, op, "failed to generate policy", err)
	}

	body := policy.ExtractJSON(text)
	var raw interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return types.PolicyDocument{}, errs.Wrap(errs.KindGeneration, op, "failed to parse generated policy as JSON", err)
	}

	doc, err := policy.Parse([]byte(body))
	if err != nil {
		return types.PolicyDocument{}, fmt.Errorf("generated policy has invalid structure: %w", err)
	}
	return doc, nil
}

func (g *OpenAI) ExplainPolicy(ctx context.Context, doc types.PolicyDocument) (string, error) {
	const op = "generator.ExplainPolicy"

	data, err := policy.Marshal(doc)
	if err != nil {
		return "", errs.Wrap(errs.KindExplanation, op, "failed to explain policy", err)
	}

	text, err := g.complete(ctx, explainSystemPrompt, "Explain this IAM policy:\n\n"+string(data), explainMaxTokens)
	if err != nil {
		return "", errs.Wrap(errs.KindExplanation, op, "failed to explain policy", err)
	}
	return text, nil
}

func (g *OpenAI) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("model returned an empty response")
	}
	return text, nil
}
