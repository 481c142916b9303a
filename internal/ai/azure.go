package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultAzureAPIVersion = "2023-05-15"

// AzureOpenAI calls one chat-completions deployment of an Azure OpenAI
// resource.
type AzureOpenAI struct {
	client     *resty.Client
	deployment string
	apiVersion string
}

type azureChatReq struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type azureChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

type azureErrResp struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAzureOpenAI(endpoint, apiKey, deployment, apiVersion string) (*AzureOpenAI, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azure openai: endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("azure openai: api key is required")
	}
	if strings.TrimSpace(deployment) == "" {
		return nil, errors.New("azure openai: deployment is required")
	}
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	c := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("api-key", apiKey).
		SetTimeout(90 * time.Second)

	return &AzureOpenAI{client: c, deployment: deployment, apiVersion: apiVersion}, nil
}

func (p *AzureOpenAI) Generate(ctx context.Context, messages []Message, opts Options) (Completion, error) {
	req := azureChatReq{Messages: messages, MaxTokens: opts.MaxTokens}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}

	var out azureChatResp
	var apiErr azureErrResp
	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("api-version", p.apiVersion).
		SetPathParam("deployment", p.deployment).
		SetBody(&req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/openai/deployments/{deployment}/chat/completions")
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		return Completion{}, fmt.Errorf("azure openai request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			return Completion{}, fmt.Errorf("azure openai: %s", apiErr.Error.Message)
		}
		return Completion{}, fmt.Errorf("azure openai: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out.Choices) == 0 {
		return Completion{}, errors.New("azure openai: empty response")
	}

	text := out.Choices[0].Message.Content
	tokens := 0
	if out.Usage != nil {
		tokens = out.Usage.TotalTokens
	} else {
		tokens = EstimateTokens(messages, text)
	}
	model := out.Model
	if model == "" {
		model = p.deployment
	}
	return Completion{Text: text, TokensUsed: tokens, LatencyMS: latency, Model: model}, nil
}

// Probe sends a minimal prompt and reports whether the deployment answered.
func (p *AzureOpenAI) Probe(ctx context.Context) (Completion, error) {
	return p.Generate(ctx, []Message{{Role: RoleUser, Content: "Test"}}, Options{MaxTokens: 10})
}

func (p *AzureOpenAI) Deployment() string { return p.deployment }
