// Package classifier implements spec.md §4.7: build a comparison prompt from
// a (Registration, Publication) pair and send it to the LLM for a
// schema-constrained hasResults/reason judgement, in either sync or batch
// form.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"manifold/internal/llmclient"
	"manifold/internal/trialmodel"
)

// ResponseSchema is the fixed JSON schema every classification response must
// satisfy (spec.md §4.7).
var ResponseSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"hasResults": map[string]any{"type": "boolean"},
		"reason":     map[string]any{"type": "string"},
	},
	"required": []string{"hasResults", "reason"},
}

const SchemaName = "trial_publication_classification"

// DefaultSystemPrompt instructs the model to compare a registration against
// a candidate publication and decide whether the publication reports
// results for that trial.
const DefaultSystemPrompt = `You compare a clinical trial registration against a candidate publication and decide whether the publication reports the trial's results. Respond only with the requested JSON object: hasResults (boolean) and reason (a short explanation grounded in the text you were given). Do not assume a registry's own "has results" flag; judge from the publication content alone.`

// Classifier builds prompts and drives the sync/batch LLM surfaces.
type Classifier struct {
	SystemPrompt string
	Model        string
	Reasoning    string
	MaxTokens    int64
}

func New(systemPrompt, model string) *Classifier {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Classifier{SystemPrompt: systemPrompt, Model: model}
}

// BuildPrompt renders the user prompt: registration title/org/trialId/study
// type/summaries, plus publication title/authors/abstract (spec.md §4.7).
func BuildPrompt(reg trialmodel.Registration, pub trialmodel.Publication) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trial ID: %s\n", reg.TrialId)
	if reg.BriefTitle != "" {
		fmt.Fprintf(&sb, "Brief title: %s\n", reg.BriefTitle)
	}
	if reg.OfficialTitle != "" {
		fmt.Fprintf(&sb, "Official title: %s\n", reg.OfficialTitle)
	}
	if reg.InvestigatorFullName != "" {
		fmt.Fprintf(&sb, "Organization/investigator: %s\n", reg.InvestigatorFullName)
	}
	if reg.StudyType != "" {
		fmt.Fprintf(&sb, "Study type: %s\n", reg.StudyType)
	}
	if reg.BriefSummary != "" {
		fmt.Fprintf(&sb, "Brief summary: %s\n", reg.BriefSummary)
	}
	if reg.DetailedDescription != "" {
		fmt.Fprintf(&sb, "Detailed description: %s\n", reg.DetailedDescription)
	}

	sb.WriteString("\nCandidate publication:\n")
	fmt.Fprintf(&sb, "PMID: %s\n", pub.PMID)
	if pub.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", pub.Title)
	}
	if pub.Authors != "" {
		fmt.Fprintf(&sb, "Authors: %s\n", pub.Authors)
	}
	if pub.Abstract != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", pub.Abstract)
	}
	return sb.String()
}

// Verdict is the parsed, post-processed classification outcome. Per spec.md
// §4.7's post-processing rule, any parsing failure leaves HasResults=false
// and Success=false with the error recorded, rather than propagating.
type Verdict struct {
	HasResults bool
	Reason     string
	Success    bool
	Error      string
	Tokens     trialmodel.Usage
}

type classifyResponse struct {
	HasResults bool   `json:"hasResults"`
	Reason     string `json:"reason"`
}

// ClassifySync runs one synchronous classification request, used by the
// live driver.
func (c *Classifier) ClassifySync(ctx context.Context, provider llmclient.Provider, reg trialmodel.Registration, pub trialmodel.Publication) Verdict {
	req := llmclient.ClassifyRequest{
		SystemPrompt: c.SystemPrompt,
		UserPrompt:   BuildPrompt(reg, pub),
		Schema:       ResponseSchema,
		SchemaName:   SchemaName,
		Model:        c.Model,
		MaxTokens:    c.MaxTokens,
	}
	result, err := provider.Classify(ctx, req)
	if err != nil {
		return Verdict{Success: false, Error: err.Error()}
	}
	return parseVerdict(result.RawJSON, result.PromptTokens, result.CompletionTokens)
}

// BuildBatchItem serializes one (trial, pmid) pair into a batch request with
// custom_id = "{trialId}__{pmid}" (spec.md §4.7).
func (c *Classifier) BuildBatchItem(reg trialmodel.Registration, pub trialmodel.Publication) llmclient.BatchItem {
	return llmclient.BatchItem{
		CustomID: trialmodel.ClassificationKey(reg.TrialId, pub.PMID),
		Request: llmclient.ClassifyRequest{
			SystemPrompt: c.SystemPrompt,
			UserPrompt:   BuildPrompt(reg, pub),
			Schema:       ResponseSchema,
			SchemaName:   SchemaName,
			Model:        c.Model,
			MaxTokens:    c.MaxTokens,
		},
	}
}

// ParseBatchResult turns one completed batch line into a (trialId, pmid,
// Verdict) triple. A custom_id that doesn't split cleanly is itself a parse
// failure.
func ParseBatchResult(result llmclient.BatchResult) (trialId, pmid string, verdict Verdict) {
	trialId, pmid, ok := trialmodel.SplitClassificationKey(result.CustomID)
	if !ok {
		return "", "", Verdict{Success: false, Error: fmt.Sprintf("malformed custom_id %q", result.CustomID)}
	}
	if result.Error != "" {
		return trialId, pmid, Verdict{Success: false, Error: result.Error}
	}
	return trialId, pmid, parseVerdict(result.RawJSON, result.PromptTokens, result.CompletionTokens)
}

func parseVerdict(rawJSON string, promptTokens, completionTokens int) Verdict {
	tokens := trialmodel.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	if strings.TrimSpace(rawJSON) == "" {
		return Verdict{Success: false, Error: "empty response", Tokens: tokens}
	}
	var parsed classifyResponse
	if err := json.Unmarshal([]byte(rawJSON), &parsed); err != nil {
		return Verdict{Success: false, Error: err.Error(), Tokens: tokens}
	}
	return Verdict{HasResults: parsed.HasResults, Reason: parsed.Reason, Success: true, Tokens: tokens}
}

// ToClassification converts a Verdict into the store's persisted record.
func ToClassification(trialId, pmid string, v Verdict) trialmodel.Classification {
	return trialmodel.Classification{
		TrialId:    trialId,
		PMID:       pmid,
		HasResults: v.HasResults,
		Reason:     v.Reason,
		Tokens:     v.Tokens,
		Success:    v.Success,
		Error:      v.Error,
	}
}
