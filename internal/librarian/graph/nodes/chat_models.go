package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/smart-librarian/server/internal/librarian/model"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Gate    *model.GateModelConfig
	Answer  *model.AnswerModelConfig
}

// ChatModels holds every model instance the pipeline needs. Bound and Plain
// are separate instances of the same answer model: BindTools mutates the
// instance, and round 2 of the answer protocol must not see the tool.
type ChatModels struct {
	Gate *gemini.ChatModel

	AnswerBound *gemini.ChatModel
	AnswerPlain *gemini.ChatModel

	// Fallback pair, nil unless a fallback model is configured.
	FallbackBound *gemini.ChatModel
	FallbackPlain *gemini.ChatModel

	GateModelName   string
	AnswerModelName string
}

// NewChatModels creates all chat models over one Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	gate, err := newModel(ctx, client, config.Gate.Model, config.Gate.Temperature, config.Gate.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create gate model: %w", err)
	}

	bound, err := newModel(ctx, client, config.Answer.Model, config.Answer.Temperature, config.Answer.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create answer model: %w", err)
	}
	plain, err := newModel(ctx, client, config.Answer.Model, config.Answer.Temperature, config.Answer.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create answer model: %w", err)
	}

	cms := &ChatModels{
		Gate:            gate,
		AnswerBound:     bound,
		AnswerPlain:     plain,
		GateModelName:   config.Gate.Model,
		AnswerModelName: config.Answer.Model,
	}

	if config.Answer.FallbackModel != "" {
		fb, err := newModel(ctx, client, config.Answer.FallbackModel, config.Answer.Temperature, config.Answer.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("create fallback model: %w", err)
		}
		fp, err := newModel(ctx, client, config.Answer.FallbackModel, config.Answer.Temperature, config.Answer.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("create fallback model: %w", err)
		}
		cms.FallbackBound = fb
		cms.FallbackPlain = fp
	}

	return cms, nil
}

func newModel(ctx context.Context, client *genai.Client, name string, temperature float32, maxTokens int) (*gemini.ChatModel, error) {
	return gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
}

// NewVocabChatModel creates one standalone model for startup-time theme
// vocabulary expansion, using the answer model settings.
func NewVocabChatModel(ctx context.Context, apiKey, baseURL string, cfg *model.AnswerModelConfig) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return newModel(ctx, client, cfg.Model, cfg.Temperature, cfg.MaxTokens)
}

// BindSummariesTool attaches the tool schema to the bound answer models only.
func (cm *ChatModels) BindSummariesTool(toolInfos []*schema.ToolInfo) error {
	if err := cm.AnswerBound.BindTools(toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	if cm.FallbackBound != nil {
		if err := cm.FallbackBound.BindTools(toolInfos); err != nil {
			logx.Error().Err(err).Msg("Failed to bind tools to fallback")
			return fmt.Errorf("failed to bind tools to fallback: %w", err)
		}
	}
	logx.Debug().Msg("Summaries tool bound to answer models")
	return nil
}
