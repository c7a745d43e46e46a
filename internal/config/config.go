// Package config loads the pipeline's configuration from the environment:
// a .env overlay via godotenv, then typed fields populated with
// firstNonEmpty/intFromEnv-style helpers. The batch/strategy/cache knobs
// enumerated in spec.md §6 drive the trial-registration-to-publication
// pipeline; there is no web UI or multi-agent fleet configuration here.
package config

// ReasoningEffort mirrors the LLM's reasoning_effort parameter.
type ReasoningEffort string

const (
	ReasoningMinimal ReasoningEffort = "minimal"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
)

// ModelsConfig names the LLM model used for each prompting concern.
type ModelsConfig struct {
	QueryV1 string
	QueryV2 string
	Results string
}

// ReasoningConfig sets the reasoning effort per concern.
type ReasoningConfig struct {
	QueryV1 ReasoningEffort
	QueryV2 ReasoningEffort
	Results ReasoningEffort
}

// BatchConfig holds every batch.* knob from spec.md §6.
type BatchConfig struct {
	Strategies           []string
	MaxTokensQueryV1      int
	MaxTokensQueryV2      int
	MaxTokensResults      int
	MaxRequestsPerBatch   int
	MaxBytesPerBatch      int
	SafetyBuffer          float64
	MaxTokensPerDay       int
	CompletionWindow      string
}

// EffectiveMaxBytes returns floor(MaxBytesPerBatch * SafetyBuffer), the
// effective per-chunk byte cap (spec.md §3 Chunk invariant).
func (b BatchConfig) EffectiveMaxBytes() int {
	return int(float64(b.MaxBytesPerBatch) * b.SafetyBuffer)
}

// CacheConfig holds per-cacheType TTLs in seconds plus a default.
type CacheConfig struct {
	TTLByType map[string]int
	TTLDefault int
}

// TTLFor returns the configured TTL (seconds) for a cache type, falling back
// to TTLDefault.
func (c CacheConfig) TTLFor(cacheType string) int {
	if v, ok := c.TTLByType[cacheType]; ok {
		return v
	}
	return c.TTLDefault
}

// SystemPromptsConfig names prompt-file paths (contents are out of scope per
// spec.md §1 — only the paths are configuration).
type SystemPromptsConfig struct {
	QueryV1 string
	QueryV2 string
	Results string
}

// LLMProviderConfig configures the synchronous+batch LLM client.
type LLMProviderConfig struct {
	Provider       string // "openai" | "anthropic"
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	AnthropicAPIKey string
	AnthropicBaseURL string
}

// PubMedConfig configures the rate-limited E-utilities client.
type PubMedConfig struct {
	BaseURL string
	APIKey  string
	Email   string
}

// WebSearchConfig configures the scholar-style search client.
type WebSearchConfig struct {
	BaseURL string
}

// Config is the fully populated runtime configuration.
type Config struct {
	Models        ModelsConfig
	Reasoning     ReasoningConfig
	Batch         BatchConfig
	Cache         CacheConfig
	SystemPrompts SystemPromptsConfig
	LLM           LLMProviderConfig
	PubMed        PubMedConfig
	WebSearch     WebSearchConfig

	DatabaseURL string
	RedisURL    string

	LogLevel string
	LogPath  string

	OutputDir string
}
