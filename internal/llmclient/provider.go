// Package llmclient implements the sync and async-batch LLM surfaces used by
// the classification pipeline, generalized from internal/llm's
// provider/openai_client/anthropic adapters down to the single operation this
// domain needs: produce a schema-constrained JSON classification from a
// prompt pair, either synchronously or via a provider's batch API.
package llmclient

import "context"

// ClassifyRequest is one schema-constrained completion request.
type ClassifyRequest struct {
	SystemPrompt string
	UserPrompt   string
	Schema       map[string]any
	SchemaName   string
	Model        string
	MaxTokens    int64
	Temperature  float64
}

// ClassifyResult is the raw JSON payload plus token accounting, left
// unparsed so internal/classifier owns schema validation.
type ClassifyResult struct {
	RawJSON          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the synchronous classification surface backing the
// *_GEN_PROCESS stages' fallback path and any non-batch call site.
type Provider interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
}

// BatchStatus mirrors a provider batch job's lifecycle state.
type BatchStatus struct {
	ID            string
	Status        string
	OutputFileID  string
	ErrorFileID   string
	RequestCounts struct{ Total, Completed, Failed int }
}

// BatchItem is one line of a batch input file: a custom_id correlating the
// request to a Chunk row, plus the same fields a sync ClassifyRequest takes.
type BatchItem struct {
	CustomID string
	Request  ClassifyRequest
}

// BatchResult is one parsed line of a completed batch's output file.
type BatchResult struct {
	CustomID         string
	RawJSON          string
	PromptTokens     int
	CompletionTokens int
	Error            string
}

// BatchProvider is the async surface driving RESULT_GEN_UPLOAD/POLL/PROCESS
// (spec.md §4.8): upload a JSONL file of requests, create a batch job, poll
// its status, and download+parse the output file once complete.
type BatchProvider interface {
	UploadBatchFile(ctx context.Context, items []BatchItem) (fileID string, err error)
	CreateBatch(ctx context.Context, inputFileID string) (batchID string, err error)
	RetrieveBatch(ctx context.Context, batchID string) (BatchStatus, error)
	DownloadBatchResults(ctx context.Context, outputFileID string) ([]BatchResult, error)
}
