package providers

import (
	"context"
	"fmt"
	"time"

	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/coze-dev/cozeloop-go"
	"google.golang.org/genai"
)

// Provider names a reasoning model vendor
type Provider string

const (
	ProviderAuto       Provider = "auto"
	ProviderMistral    Provider = "mistral"
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderCompatible Provider = "compatible"
	ProviderRules      Provider = "rules"
)

const (
	mistralBaseURL    = "https://api.mistral.ai/v1"
	mistralModel      = "mistral-small-latest"
	openAIModel       = "gpt-3.5-turbo"
	geminiModelName   = "gemini-3-flash"
	compatibleBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	compatibleModel   = "glm-4-flash"
	openAIBaseURL     = "https://api.openai.com/v1"
	embeddingModel    = "text-embedding-3-small"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewChatModel creates an OpenAI-compatible chat model with temperature 0.
func NewChatModel(ctx context.Context, config *ChatModelConfig) (model.ToolCallingChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = compatibleBaseURL
	}

	modelName := config.Model
	if modelName == "" {
		modelName = compatibleModel
	}

	temperature := float32(0)
	return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:      config.APIKey,
		BaseURL:     baseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
}

// NewGeminiModel creates a Google Gemini chat model with temperature 0.
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (model.ToolCallingChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for gemini provider")
	}
	if modelName == "" {
		modelName = geminiModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := float32(0)
	return geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client:      client,
		Model:       modelName,
		Temperature: &temperature,
	})
}

// ReasoningConfig carries every key that can select a reasoning provider
type ReasoningConfig struct {
	Provider      Provider
	MistralAPIKey string
	OpenAIAPIKey  string
	GeminiAPIKey  string
	APIKey        string
	BaseURL       string
	Model         string
}

// Resolve returns the provider that will serve requests. Auto picks the
// first configured key in the order mistral, openai, gemini, compatible and
// falls back to rules.
func (c ReasoningConfig) Resolve() Provider {
	if c.Provider != "" && c.Provider != ProviderAuto {
		return c.Provider
	}
	switch {
	case c.MistralAPIKey != "":
		return ProviderMistral
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.APIKey != "":
		return ProviderCompatible
	default:
		return ProviderRules
	}
}

// NewReasoningModel builds the chat model for the resolved provider. For
// ProviderRules it returns a nil model.
func NewReasoningModel(ctx context.Context, c ReasoningConfig) (model.BaseChatModel, Provider, error) {
	p := c.Resolve()

	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch p {
	case ProviderRules:
		return nil, p, nil
	case ProviderMistral:
		m, err = NewChatModel(ctx, &ChatModelConfig{
			APIKey:  c.MistralAPIKey,
			BaseURL: orDefault(c.BaseURL, mistralBaseURL),
			Model:   orDefault(c.Model, mistralModel),
		})
	case ProviderOpenAI:
		m, err = NewChatModel(ctx, &ChatModelConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: orDefault(c.BaseURL, openAIBaseURL),
			Model:   orDefault(c.Model, openAIModel),
		})
	case ProviderGemini:
		m, err = NewGeminiModel(ctx, c.GeminiAPIKey, c.Model)
	case ProviderCompatible:
		m, err = NewChatModel(ctx, &ChatModelConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
		})
	default:
		return nil, p, fmt.Errorf("unknown reasoning provider %q", p)
	}
	if err != nil {
		return nil, p, fmt.Errorf("failed to create %s chat model: %w", p, err)
	}
	return m, p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions truncates vectors to this size when positive. Only
	// text-embedding-3 and later models honor it.
	Dimensions int
}

// NewEmbeddingModel creates an OpenAI-compatible embedding model from specific configuration.
func NewEmbeddingModel(ctx context.Context, config *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	embedConfig := &openaiEmbed.EmbeddingConfig{
		APIKey:  config.APIKey,
		BaseURL: orDefault(config.BaseURL, openAIBaseURL),
		Model:   orDefault(config.Model, embeddingModel),
	}
	if config.Dimensions > 0 {
		dim := config.Dimensions
		embedConfig.Dimensions = &dim
	}
	return openaiEmbed.NewEmbedder(ctx, embedConfig)
}

// SetupTracing registers a cozeloop callback handler for every eino
// component when both token and workspace are set. The returned function
// flushes and closes the client.
func SetupTracing(ctx context.Context, token, workspaceID string) (func(), error) {
	if token == "" || workspaceID == "" {
		return func() {}, nil
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(token),
		cozeloop.WithWorkspaceID(workspaceID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozeloop client: %w", err)
	}
	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))

	return func() {
		// Give the exporter a moment to drain pending spans
		time.Sleep(time.Second)
		client.Close(ctx)
	}, nil
}
