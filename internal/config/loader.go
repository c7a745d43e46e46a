package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlOverlay holds the subset of configuration that a strategy/prompt-path
// file (spec.md silence supplemented per SPEC_FULL.md's DOMAIN STACK) may
// override. Unset fields leave defaults/env values untouched.
type yamlOverlay struct {
	Strategies []string `yaml:"strategies"`
	Prompts    struct {
		QueryV1 string `yaml:"queryV1"`
		QueryV2 string `yaml:"queryV2"`
		Results string `yaml:"results"`
	} `yaml:"prompts"`
}

// loadYAMLOverlay reads an optional YAML config file named by
// TRIALPUB_CONFIG_FILE. Absence of the env var or the file itself is not an
// error: YAML is an optional convenience layer beneath env vars, which always
// take precedence when both are set.
func loadYAMLOverlay() (yamlOverlay, error) {
	var overlay yamlOverlay
	path := os.Getenv("TRIALPUB_CONFIG_FILE")
	if path == "" {
		return overlay, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, nil
		}
		return overlay, &configError{msg: "reading TRIALPUB_CONFIG_FILE: " + err.Error()}
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, &configError{msg: "parsing TRIALPUB_CONFIG_FILE: " + err.Error()}
	}
	return overlay, nil
}

// Load reads configuration from environment variables, overlaying a local
// .env file first (teacher's internal/config/loader.go pattern: Overload so
// repo-local .env values deterministically win over inherited env in dev),
// and an optional YAML strategy/prompt-path file beneath that.
func Load() (Config, error) {
	_ = godotenv.Overload()

	overlay, err := loadYAMLOverlay()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{}

	cfg.Models.QueryV1 = firstNonEmpty(os.Getenv("TRIALPUB_MODEL_QUERY_V1"), "gpt-4o-mini")
	cfg.Models.QueryV2 = firstNonEmpty(os.Getenv("TRIALPUB_MODEL_QUERY_V2"), "gpt-4o-mini")
	cfg.Models.Results = firstNonEmpty(os.Getenv("TRIALPUB_MODEL_RESULTS"), "gpt-4o-mini")

	cfg.Reasoning.QueryV1 = ReasoningEffort(firstNonEmpty(os.Getenv("TRIALPUB_REASONING_QUERY_V1"), string(ReasoningMedium)))
	cfg.Reasoning.QueryV2 = ReasoningEffort(firstNonEmpty(os.Getenv("TRIALPUB_REASONING_QUERY_V2"), string(ReasoningMedium)))
	cfg.Reasoning.Results = ReasoningEffort(firstNonEmpty(os.Getenv("TRIALPUB_REASONING_RESULTS"), string(ReasoningMedium)))

	if envStrategies := os.Getenv("TRIALPUB_BATCH_STRATEGIES"); envStrategies != "" {
		cfg.Batch.Strategies = parseCommaSeparatedList(envStrategies)
	} else if len(overlay.Strategies) > 0 {
		cfg.Batch.Strategies = overlay.Strategies
	} else {
		cfg.Batch.Strategies = parseCommaSeparatedList(
			"linked_at_registration,pubmed_naive,google_scholar,pubmed_gpt_v1,pubmed_gpt_v2")
	}
	cfg.Batch.MaxTokensQueryV1 = intFromEnv("TRIALPUB_MAX_TOKENS_QUERY_V1", 512)
	cfg.Batch.MaxTokensQueryV2 = intFromEnv("TRIALPUB_MAX_TOKENS_QUERY_V2", 768)
	cfg.Batch.MaxTokensResults = intFromEnv("TRIALPUB_MAX_TOKENS_RESULTS", 512)
	cfg.Batch.MaxRequestsPerBatch = intFromEnv("TRIALPUB_MAX_REQUESTS_PER_BATCH", 50000)
	cfg.Batch.MaxBytesPerBatch = intFromEnv("TRIALPUB_MAX_BYTES_PER_BATCH", 100*1024*1024)
	cfg.Batch.SafetyBuffer = floatFromEnv("TRIALPUB_SAFETY_BUFFER", 0.9)
	cfg.Batch.MaxTokensPerDay = intFromEnv("TRIALPUB_MAX_TOKENS_PER_DAY", 2_000_000)
	cfg.Batch.CompletionWindow = firstNonEmpty(os.Getenv("TRIALPUB_COMPLETION_WINDOW"), "24h")

	cfg.Cache.TTLDefault = intFromEnv("TRIALPUB_CACHE_TTL_DEFAULT", 7*24*3600)
	cfg.Cache.TTLByType = map[string]int{
		"pubmed-naive":           intFromEnv("TRIALPUB_CACHE_TTL_PUBMED_NAIVE", 7*24*3600),
		"linked-at-registration": intFromEnv("TRIALPUB_CACHE_TTL_LINKED_AT_REGISTRATION", 30*24*3600),
		"gpt-derived-queries":    intFromEnv("TRIALPUB_CACHE_TTL_GPT_QUERIES", 90*24*3600),
	}

	cfg.SystemPrompts.QueryV1 = firstNonEmpty(os.Getenv("TRIALPUB_PROMPT_QUERY_V1"), overlay.Prompts.QueryV1)
	cfg.SystemPrompts.QueryV2 = firstNonEmpty(os.Getenv("TRIALPUB_PROMPT_QUERY_V2"), overlay.Prompts.QueryV2)
	cfg.SystemPrompts.Results = firstNonEmpty(os.Getenv("TRIALPUB_PROMPT_RESULTS"), overlay.Prompts.Results)

	cfg.LLM.Provider = firstNonEmpty(strings.ToLower(os.Getenv("LLM_PROVIDER")), "openai")
	cfg.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.LLM.AnthropicBaseURL = os.Getenv("ANTHROPIC_BASE_URL")

	cfg.PubMed.BaseURL = firstNonEmpty(os.Getenv("PUBMED_BASE_URL"), "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	cfg.PubMed.APIKey = os.Getenv("PUBMED_API_KEY")
	cfg.PubMed.Email = os.Getenv("PUBMED_EMAIL")

	cfg.WebSearch.BaseURL = os.Getenv("WEB_SEARCH_BASE_URL")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogPath = os.Getenv("LOG_PATH")

	cfg.OutputDir = firstNonEmpty(os.Getenv("TRIALPUB_OUTPUT_DIR"), "./output")

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "anthropic" {
		return &configError{msg: "LLM_PROVIDER must be \"openai\" or \"anthropic\", got " + cfg.LLM.Provider}
	}
	if cfg.Batch.SafetyBuffer <= 0 || cfg.Batch.SafetyBuffer > 1 {
		return &configError{msg: "TRIALPUB_SAFETY_BUFFER must be in (0, 1]"}
	}
	return nil
}

type configError struct{ msg string }

func (e *configError) Error() string { return "ConfigError: " + e.msg }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}
