package agents

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported LLM providers
const (
	ProviderNone         = ""
	ProviderOpenAI       = "openai"
	ProviderGitHubModels = "github_models"
	ProviderAzureOpenAI  = "azure_openai"
)

const githubModelsBaseURL = "https://models.inference.ai.azure.com"

// LLMConfig selects and configures the model behind an LLMProposer.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Endpoint    string // azure_openai only
	Deployment  string // azure_openai only
	Temperature float64
	MaxTokens   int
}

// Completer sends one system+user exchange to a model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewCompleter builds the Completer for cfg.Provider. It returns nil and no
// error when no provider is configured.
func NewCompleter(cfg LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderOpenAI, ProviderGitHubModels:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("agents: %s provider needs an API key", cfg.Provider)
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == ProviderGitHubModels {
			baseURL = githubModelsBaseURL
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("agents: failed to initialize %s model: %w", cfg.Provider, err)
		}
		return NewModelCompleter(llm, cfg.Temperature, cfg.MaxTokens), nil
	case ProviderAzureOpenAI:
		return newAzureCompleter(cfg)
	default:
		return nil, fmt.Errorf("agents: unsupported LLM provider %q", cfg.Provider)
	}
}

// ModelCompleter drives any langchaingo model.
type ModelCompleter struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewModelCompleter wraps a langchaingo model.
func NewModelCompleter(model llms.Model, temperature float64, maxTokens int) *ModelCompleter {
	return &ModelCompleter{model: model, temperature: temperature, maxTokens: maxTokens}
}

// Complete implements Completer.
func (c *ModelCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("agents: empty response from model")
	}
	return resp.Choices[0].Content, nil
}

type azureCompleter struct {
	client      *azopenai.Client
	deployment  string
	temperature float32
	maxTokens   int32
}

func newAzureCompleter(cfg LLMConfig) (*azureCompleter, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" || cfg.Deployment == "" {
		return nil, fmt.Errorf("agents: azure_openai needs endpoint, api key and deployment")
	}
	client, err := azopenai.NewClientWithKeyCredential(cfg.Endpoint, azcore.NewKeyCredential(cfg.APIKey), nil)
	if err != nil {
		return nil, fmt.Errorf("agents: failed to create Azure OpenAI client: %w", err)
	}
	maxTokens := int32(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &azureCompleter{
		client:      client,
		deployment:  cfg.Deployment,
		temperature: float32(cfg.Temperature),
		maxTokens:   maxTokens,
	}, nil
}

func (c *azureCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		// Instructions travel in the user turn so older deployments accept them.
		Messages: []azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestUserMessage{Content: azopenai.NewChatRequestUserMessageContent(system + "\n\n" + prompt)},
		},
		MaxTokens:      to.Ptr(c.maxTokens),
		Temperature:    to.Ptr(c.temperature),
		DeploymentName: to.Ptr(c.deployment),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("agents: Azure OpenAI completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("agents: empty response from Azure OpenAI")
	}
	return *resp.Choices[0].Message.Content, nil
}
