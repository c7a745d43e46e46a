package discovery

import (
	"encoding/json"

	"manifold/internal/llmclient"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

func unmarshalOrError(rawJSON string, v any) error {
	if rawJSON == "" {
		return trialerr.New(trialerr.KindParse, "empty query-generation response")
	}
	if err := json.Unmarshal([]byte(rawJSON), v); err != nil {
		return trialerr.Wrap(trialerr.KindParse, "parse query-generation response", err)
	}
	return nil
}

// NewQueryV1BatchItem builds the pre-materialization batch request for one
// registration's pubmed_gpt_v1 query, custom_id = trialId (spec.md §4.8
// QUERY_GEN_UPLOAD).
func NewQueryV1BatchItem(reg trialmodel.Registration, systemPrompt, model string, maxTokens int64) llmclient.BatchItem {
	return llmclient.BatchItem{
		CustomID: reg.TrialId,
		Request: llmclient.ClassifyRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   registrationPromptBody(reg),
			Schema:       QueryV1Schema,
			SchemaName:   "pubmed_query_v1",
			Model:        model,
			MaxTokens:    maxTokens,
		},
	}
}

// NewQueryV2BatchItem is NewQueryV1BatchItem's pubmed_gpt_v2 counterpart.
func NewQueryV2BatchItem(reg trialmodel.Registration, systemPrompt, model string, maxTokens int64) llmclient.BatchItem {
	return llmclient.BatchItem{
		CustomID: reg.TrialId,
		Request: llmclient.ClassifyRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   registrationPromptBody(reg),
			Schema:       QueryV2Schema,
			SchemaName:   "pubmed_query_v2",
			Model:        model,
			MaxTokens:    maxTokens,
		},
	}
}

// ParseQueryV1BatchResult parses one completed QUERY_GEN_PROCESS output line
// into its query string.
func ParseQueryV1BatchResult(rawJSON string) (string, error) {
	var parsed queryV1Response
	if err := unmarshalOrError(rawJSON, &parsed); err != nil {
		return "", err
	}
	return parsed.Query, nil
}

// ParseQueryV2BatchResult parses one completed QUERY_GEN_PROCESS output line
// into its QueryBundleV2.
func ParseQueryV2BatchResult(rawJSON string) (QueryBundleV2, error) {
	var parsed QueryBundleV2
	if err := unmarshalOrError(rawJSON, &parsed); err != nil {
		return QueryBundleV2{}, err
	}
	return parsed, nil
}
