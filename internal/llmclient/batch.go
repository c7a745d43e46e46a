package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"manifold/internal/obslog"
)

// OpenAIBatchProvider implements BatchProvider on top of openai-go/v2's
// Files and Batches services, generalizing a synchronous Chat.Completions.New
// call to the async upload/create/poll/download batch lifecycle spec.md §4.8
// requires.
type OpenAIBatchProvider struct {
	sdk sdk.Client
}

func NewOpenAIBatchProvider(apiKey, baseURL string) *OpenAIBatchProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBatchProvider{sdk: sdk.NewClient(opts...)}
}

type batchRequestLine struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     struct {
		Model          string                                          `json:"model"`
		Messages       []sdk.ChatCompletionMessageParamUnion            `json:"messages"`
		MaxTokens      int64                                           `json:"max_tokens"`
		Temperature    float64                                         `json:"temperature"`
		ResponseFormat sdk.ChatCompletionNewParamsResponseFormatUnion `json:"response_format"`
	} `json:"body"`
}

// buildBatchInput serializes items into the JSONL body format the Batches API
// expects: one /v1/chat/completions request per line, correlated by custom_id.
func buildBatchInput(items []BatchItem) ([]byte, error) {
	var buf bytes.Buffer
	for _, it := range items {
		line := batchRequestLine{
			CustomID: it.CustomID,
			Method:   "POST",
			URL:      "/v1/chat/completions",
		}
		line.Body.Model = it.Request.Model
		line.Body.Messages = []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(it.Request.SystemPrompt),
			sdk.UserMessage(it.Request.UserPrompt),
		}
		line.Body.MaxTokens = it.Request.MaxTokens
		line.Body.Temperature = it.Request.Temperature
		line.Body.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName(it.Request.SchemaName),
					Schema: it.Request.Schema,
					Strict: param.NewOpt(true),
				},
			},
		}
		b, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("marshal batch line %s: %w", it.CustomID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (p *OpenAIBatchProvider) UploadBatchFile(ctx context.Context, items []BatchItem) (string, error) {
	body, err := buildBatchInput(items)
	if err != nil {
		return "", err
	}

	file, err := p.sdk.Files.New(ctx, sdk.FileNewParams{
		File:    sdk.File(bytes.NewReader(body), "batch_input.jsonl", "application/jsonl"),
		Purpose: sdk.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("upload batch input file: %w", err)
	}
	obslog.Logger().Info().Str("file_id", file.ID).Int("items", len(items)).Msg("llm_batch_file_uploaded")
	return file.ID, nil
}

func (p *OpenAIBatchProvider) CreateBatch(ctx context.Context, inputFileID string) (string, error) {
	batch, err := p.sdk.Batches.New(ctx, sdk.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         sdk.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: sdk.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	obslog.Logger().Info().Str("batch_id", batch.ID).Str("input_file_id", inputFileID).Msg("llm_batch_created")
	return batch.ID, nil
}

func (p *OpenAIBatchProvider) RetrieveBatch(ctx context.Context, batchID string) (BatchStatus, error) {
	batch, err := p.sdk.Batches.Get(ctx, batchID)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("retrieve batch %s: %w", batchID, err)
	}
	status := BatchStatus{
		ID:           batch.ID,
		Status:       string(batch.Status),
		OutputFileID: batch.OutputFileID,
		ErrorFileID:  batch.ErrorFileID,
	}
	status.RequestCounts.Total = int(batch.RequestCounts.Total)
	status.RequestCounts.Completed = int(batch.RequestCounts.Completed)
	status.RequestCounts.Failed = int(batch.RequestCounts.Failed)
	return status, nil
}

type batchResponseLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		Body struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIBatchProvider) DownloadBatchResults(ctx context.Context, outputFileID string) ([]BatchResult, error) {
	content, err := p.sdk.Files.Content(ctx, outputFileID)
	if err != nil {
		return nil, fmt.Errorf("download batch output file %s: %w", outputFileID, err)
	}
	defer content.Body.Close()

	data, err := io.ReadAll(content.Body)
	if err != nil {
		return nil, fmt.Errorf("read batch output file %s: %w", outputFileID, err)
	}

	var results []BatchResult
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var parsed batchResponseLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return nil, fmt.Errorf("parse batch output line: %w", err)
		}
		res := BatchResult{CustomID: parsed.CustomID}
		switch {
		case parsed.Error != nil:
			res.Error = parsed.Error.Message
		case parsed.Response != nil && len(parsed.Response.Body.Choices) > 0:
			res.RawJSON = parsed.Response.Body.Choices[0].Message.Content
			res.PromptTokens = parsed.Response.Body.Usage.PromptTokens
			res.CompletionTokens = parsed.Response.Body.Usage.CompletionTokens
			obslog.RecordTokenUsage("batch", res.PromptTokens, res.CompletionTokens)
		default:
			res.Error = "empty response body"
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan batch output file %s: %w", outputFileID, err)
	}
	return results, nil
}

// shared constant used by callers who need to bound how long they poll
// before treating a batch as stuck (distinct from spec.md's terminal-status
// check, which is immediate).
const MaxBatchPollWait = 24 * time.Hour
