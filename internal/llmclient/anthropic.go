package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"manifold/internal/obslog"
)

// AnthropicProvider is the sync Provider implementation for Claude models,
// adapted from internal/llm/anthropic/client.go's Chat. Anthropic has no
// native JSON-schema response mode, so structured output is obtained the way
// that client already forces tool-call shaped output: a single tool whose
// input_schema is the caller's schema, with tool_choice pinned to it.
type AnthropicProvider struct {
	sdk   anthropic.Client
	model string
}

func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	return &AnthropicProvider{sdk: anthropic.NewClient(opts...), model: model}
}

func (p *AnthropicProvider) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return p.model
}

const emitToolName = "emit_classification"

func (p *AnthropicProvider) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	model := p.pickModel(req.Model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	schema := anthropic.ToolInputSchemaParam{
		Type: constant.ValueOf[constant.Object](),
	}
	if props, ok := req.Schema["properties"]; ok {
		schema.Properties = props
	}
	if reqd, ok := req.Schema["required"].([]string); ok {
		schema.Required = reqd
	}

	tool := anthropic.ToolParam{
		Name:        emitToolName,
		Description: anthropic.String("Emit the classification result as structured JSON."),
		InputSchema: schema,
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Tools:      []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: emitToolName}},
	}

	start := time.Now()
	resp, err := p.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	log := obslog.Logger()
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("anthropic_classify_error")
		return ClassifyResult{}, fmt.Errorf("anthropic classify: %w", err)
	}

	var rawJSON string
	for _, block := range resp.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok && tu.Name == emitToolName {
			if b, err := json.Marshal(tu.Input); err == nil {
				rawJSON = string(b)
			}
			break
		}
	}
	if rawJSON == "" {
		return ClassifyResult{}, fmt.Errorf("anthropic classify: no %s tool call in response", emitToolName)
	}

	promptTokens := int(resp.Usage.InputTokens)
	completionTokens := int(resp.Usage.OutputTokens)
	obslog.RecordTokenUsage(model, promptTokens, completionTokens)

	log.Debug().
		Str("model", model).
		Dur("duration", dur).
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Msg("anthropic_classify_ok")

	return ClassifyResult{
		RawJSON:          rawJSON,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}
