package providers

import (
	"context"
	"fmt"
	"os"

	clc "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/coze-dev/cozeloop-go"
	"google.golang.org/genai"

	"salesrep/config"
	"salesrep/llm/knowledge"
	"salesrep/logging"
)

const defaultOpenAIBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Provider is a constructed chat model plus, for Gemini, the Files API used for
// document uploads. Files is nil for providers that cannot take uploaded PDFs.
type Provider struct {
	Name  string
	Model model.BaseChatModel
	Files knowledge.FileService
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		m, err := NewOpenAIModel(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return &Provider{Name: cfg.Provider, Model: m}, nil
	default:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		m, err := NewGeminiModel(ctx, client, cfg.Model)
		if err != nil {
			return nil, err
		}
		return &Provider{Name: config.ProviderGemini, Model: m, Files: client.Files}, nil
	}
}

// NewGeminiModel wraps a genai client as an eino chat model.
func NewGeminiModel(ctx context.Context, client *genai.Client, modelName string) (model.BaseChatModel, error) {
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	m, err := geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini chat model: %w", err)
	}
	return m, nil
}

// NewOpenAIModel creates an OpenAI-compatible chat model.
func NewOpenAIModel(ctx context.Context, apiKey, baseURL, modelName string) (model.BaseChatModel, error) {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if modelName == "" {
		modelName = "glm-4-flash"
	}
	m, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}
	return m, nil
}

// SetupTracing registers a CozeLoop callback handler when COZE_LOOP_API_TOKEN and
// COZELOOP_WORKSPACE_ID are set. The returned func flushes and closes the client.
func SetupTracing(ctx context.Context, log logging.Logger) (func(), error) {
	token := os.Getenv("COZE_LOOP_API_TOKEN")
	workspace := os.Getenv("COZELOOP_WORKSPACE_ID")
	if token == "" || workspace == "" {
		return func() {}, nil
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(token),
		cozeloop.WithWorkspaceID(workspace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozeloop client: %w", err)
	}
	callbacks.AppendGlobalHandlers(clc.NewLoopHandler(client))
	log.WithField("workspace", workspace).Info("cozeloop tracing enabled")

	return func() { client.Close(ctx) }, nil
}
