// Package trialerr defines the typed error kinds enumerated in spec.md §7.
package trialerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for switch-based handling by the orchestrator.
type Kind string

const (
	KindRegistryFetch    Kind = "RegistryFetchError"
	KindPubmed           Kind = "PubmedError"
	KindWebSearch        Kind = "WebSearchError"
	KindLlmSync          Kind = "LlmSyncError"
	KindLlmBatchFailed   Kind = "LlmBatchFailed"
	KindParse            Kind = "ParseError"
	KindCacheIO          Kind = "CacheIOError"
	KindDailyBudget      Kind = "DailyBudgetExhausted"
	KindConfig           Kind = "ConfigError"
)

// RegistryFetchSubKind distinguishes the three ways a registry fetch fails.
type RegistryFetchSubKind string

const (
	RegistryNotFound  RegistryFetchSubKind = "notFound"
	RegistryTransport RegistryFetchSubKind = "transport"
	RegistryParse     RegistryFetchSubKind = "parse"
)

// Error is the common wrapped-error shape used across the module: it follows
// the fmt.Errorf("...: %w", err) convention while retaining a typed Kind so
// callers can branch without string matching.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// RegistryFetchError is raised by registry adapters.
type RegistryFetchError struct {
	TrialId string
	SubKind RegistryFetchSubKind
	Cause   error
}

func (e *RegistryFetchError) Error() string {
	return fmt.Sprintf("RegistryFetchError[%s]: trial %s: %v", e.SubKind, e.TrialId, e.Cause)
}

func (e *RegistryFetchError) Unwrap() error { return e.Cause }

// DailyBudgetExhaustedError is the clean, expected stop condition of §4.8's
// RESULT_GEN_UPLOAD stage.
type DailyBudgetExhaustedError struct {
	ChunkIndex      int
	NeededTokens    int
	RemainingBudget int
}

func (e *DailyBudgetExhaustedError) Error() string {
	return fmt.Sprintf("daily token budget exhausted: chunk %d needs %d tokens, only %d remaining today",
		e.ChunkIndex, e.NeededTokens, e.RemainingBudget)
}

// IsDailyBudgetExhausted reports whether err (or anything it wraps) is a
// DailyBudgetExhaustedError.
func IsDailyBudgetExhausted(err error) bool {
	var target *DailyBudgetExhaustedError
	return errors.As(err, &target)
}

// BatchTerminalFailureError aborts a stage per spec.md §7: batch-job
// terminal-failure statuses are fatal and must name the batch id and chunk.
type BatchTerminalFailureError struct {
	ChunkIndex int
	BatchId    string
	Status     string
}

func (e *BatchTerminalFailureError) Error() string {
	return fmt.Sprintf("batch job %s (chunk %d) entered terminal failure status %q", e.BatchId, e.ChunkIndex, e.Status)
}
