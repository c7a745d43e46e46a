package llmclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"manifold/internal/obslog"
)

// OpenAIProvider is the sync Provider implementation, adapted from
// internal/llm/openai_client.go's CallLLM but constrained to a single
// schema-validated JSON response via response_format.
type OpenAIProvider struct {
	sdk   sdk.Client
	model string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{sdk: sdk.NewClient(opts...), model: model}
}

func (p *OpenAIProvider) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return p.model
}

func (p *OpenAIProvider) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	model := p.pickModel(req.Model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := sdk.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(req.SystemPrompt),
			sdk.UserMessage(req.UserPrompt),
		},
		MaxTokens:   param.NewOpt(maxTokens),
		Temperature: param.NewOpt(req.Temperature),
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName(req.SchemaName),
					Schema: req.Schema,
					Strict: param.NewOpt(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := p.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	log := obslog.Logger()
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("openai_classify_error")
		return ClassifyResult{}, fmt.Errorf("openai classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ClassifyResult{}, fmt.Errorf("openai classify: no choices returned")
	}

	promptTokens := int(resp.Usage.PromptTokens)
	completionTokens := int(resp.Usage.CompletionTokens)
	obslog.RecordTokenUsage(model, promptTokens, completionTokens)

	log.Debug().
		Str("model", model).
		Dur("duration", dur).
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Msg("openai_classify_ok")

	return ClassifyResult{
		RawJSON:          resp.Choices[0].Message.Content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func schemaName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "classification"
	}
	return name
}
