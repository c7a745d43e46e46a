package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildBatchInputProducesOneLinePerItem(t *testing.T) {
	items := []BatchItem{
		{CustomID: "row-1", Request: ClassifyRequest{SystemPrompt: "s1", UserPrompt: "u1", Model: "gpt-test", Schema: map[string]any{"type": "object"}}},
		{CustomID: "row-2", Request: ClassifyRequest{SystemPrompt: "s2", UserPrompt: "u2", Model: "gpt-test", Schema: map[string]any{"type": "object"}}},
	}
	body, err := buildBatchInput(items)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"custom_id":"row-1"`)
	require.Contains(t, lines[1], `"custom_id":"row-2"`)
}

func TestOpenAIBatchProviderUploadCreateRetrieve(t *testing.T) {
	var uploadCalled, createCalled, getCalled bool
	mux := http.NewServeMux()
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		uploadCalled = true
		w.Write([]byte(`{"id":"file_123","object":"file","purpose":"batch"}`))
	})
	mux.HandleFunc("/batches", func(w http.ResponseWriter, r *http.Request) {
		createCalled = true
		w.Write([]byte(`{"id":"batch_123","object":"batch","status":"validating","input_file_id":"file_123"}`))
	})
	mux.HandleFunc("/batches/batch_123", func(w http.ResponseWriter, r *http.Request) {
		getCalled = true
		w.Write([]byte(`{"id":"batch_123","object":"batch","status":"completed","output_file_id":"file_out","request_counts":{"total":2,"completed":2,"failed":0}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOpenAIBatchProvider("test-key", srv.URL)
	ctx := context.Background()

	fileID, err := p.UploadBatchFile(ctx, []BatchItem{
		{CustomID: "row-1", Request: ClassifyRequest{SystemPrompt: "s", UserPrompt: "u", Schema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "file_123", fileID)
	require.True(t, uploadCalled)

	batchID, err := p.CreateBatch(ctx, fileID)
	require.NoError(t, err)
	require.Equal(t, "batch_123", batchID)
	require.True(t, createCalled)

	status, err := p.RetrieveBatch(ctx, batchID)
	require.NoError(t, err)
	require.True(t, getCalled)
	require.Equal(t, "completed", status.Status)
	require.Equal(t, "file_out", status.OutputFileID)
	require.Equal(t, 2, status.RequestCounts.Total)
}

func TestOpenAIBatchProviderDownloadResultsParsesJSONL(t *testing.T) {
	body := `{"custom_id":"row-1","response":{"body":{"choices":[{"message":{"content":"{\"label\":\"yes\"}"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}}}
{"custom_id":"row-2","error":{"message":"rate limited"}}
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewOpenAIBatchProvider("test-key", srv.URL)
	results, err := p.DownloadBatchResults(context.Background(), "file_out")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "row-1", results[0].CustomID)
	require.Equal(t, `{"label":"yes"}`, results[0].RawJSON)
	require.Equal(t, 5, results[0].PromptTokens)
	require.Equal(t, "row-2", results[1].CustomID)
	require.Equal(t, "rate limited", results[1].Error)
}
