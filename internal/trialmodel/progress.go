package trialmodel

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one of the 12 states of the resumable batch-orchestrator FSM.
type Stage string

const (
	StagePrep                  Stage = "PREP"
	StageQueryGenUpload         Stage = "QUERY_GEN_UPLOAD"
	StageQueryGenPoll           Stage = "QUERY_GEN_POLL"
	StageQueryGenProcess        Stage = "QUERY_GEN_PROCESS"
	StagePubDiscovery           Stage = "PUB_DISCOVERY"
	StageResultGenPreparation   Stage = "RESULT_GEN_PREPARATION"
	StageResultGenUpload        Stage = "RESULT_GEN_UPLOAD"
	StageResultGenPoll          Stage = "RESULT_GEN_POLL"
	StageResultGenProcess       Stage = "RESULT_GEN_PROCESS"
	StageFinalize               Stage = "FINALIZE"
	StageCostCalculation        Stage = "COST_CALCULATION"
	StageComplete               Stage = "COMPLETE"
)

// stageOrder fixes the total order the FSM advances through; it is read only
// by StageIndex (§5 "Between stages, the global order is the FSM order").
var stageOrder = []Stage{
	StagePrep, StageQueryGenUpload, StageQueryGenPoll, StageQueryGenProcess,
	StagePubDiscovery, StageResultGenPreparation, StageResultGenUpload,
	StageResultGenPoll, StageResultGenProcess, StageFinalize,
	StageCostCalculation, StageComplete,
}

// StageIndex returns the position of a stage in the canonical FSM order, or
// -1 if unrecognized.
func StageIndex(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// BatchJobStatus mirrors the LLM batch API's job lifecycle (spec.md §4.3).
type BatchJobStatus string

const (
	BatchValidating BatchJobStatus = "validating"
	BatchInProgress BatchJobStatus = "in_progress"
	BatchFinalizing BatchJobStatus = "finalizing"
	BatchCompleted  BatchJobStatus = "completed"
	BatchFailed     BatchJobStatus = "failed"
	BatchExpired    BatchJobStatus = "expired"
	BatchCancelled  BatchJobStatus = "cancelled"
)

// IsTerminalFailure reports whether a batch status is a fatal terminal state
// that must abort the orchestrator run (spec.md §4.8/§7).
func (s BatchJobStatus) IsTerminalFailure() bool {
	return s == BatchFailed || s == BatchExpired || s == BatchCancelled
}

// QueryGenJob tracks one pubmed_gpt_v1/v2 batch submission.
type QueryGenJob struct {
	ID           string         `json:"id"`
	Status       BatchJobStatus `json:"status"`
	InputFileId  string         `json:"inputFileId"`
	OutputFileId string         `json:"outputFileId,omitempty"`
}

// ChunkStatus is the per-chunk status FSM (spec.md §3 Chunk invariants).
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkUploaded   ChunkStatus = "uploaded"
	ChunkInProgress ChunkStatus = "in_progress"
	ChunkValidating ChunkStatus = "validating"
	ChunkFinalizing ChunkStatus = "finalizing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkProcessed  ChunkStatus = "processed"
	ChunkFailed     ChunkStatus = "failed"
)

// NonTerminalPollStatuses are the chunk statuses RESULT_GEN_POLL re-polls.
var NonTerminalPollStatuses = map[ChunkStatus]bool{
	ChunkUploaded:   true,
	ChunkValidating: true,
	ChunkInProgress: true,
	ChunkFinalizing: true,
}

// Chunk is a bounded group of classification requests submitted as one LLM
// batch job.
type Chunk struct {
	Index            int         `json:"index"`
	InputFile        string      `json:"inputFile"`
	RequestCount     int         `json:"requestCount"`
	EstimatedTokens  int         `json:"estimatedTokens"`
	SizeBytes        int         `json:"sizeBytes"`
	Status           ChunkStatus `json:"status"`
	BatchId          string      `json:"batchId,omitempty"`
	InputFileId      string      `json:"inputFileId,omitempty"`
	OutputFileId     string      `json:"outputFileId,omitempty"`
	UploadedAt       *time.Time  `json:"uploadedAt,omitempty"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	ProcessedAt      *time.Time  `json:"processedAt,omitempty"`

	// CustomIDs records each request's "{trialId}__{pmid}" custom_id in the
	// order packed, so the chunk's batch items can be deterministically
	// rebuilt from Progress.Registrations/Publications at upload time without
	// duplicating the full prompt payload in the Progress file.
	CustomIDs []string `json:"customIds,omitempty"`
}

// DailyTokens tracks the rolling daily token budget (§4.8 RESULT_GEN_UPLOAD).
type DailyTokens struct {
	Date   string `json:"date"`
	Tokens int    `json:"tokens"`
}

// ResultDetectionState is the batchJobs.resultDetection payload of Progress.
type ResultDetectionState struct {
	Chunks              []Chunk     `json:"chunks"`
	DailyTokensUsed     DailyTokens `json:"dailyTokensUsed"`
	TotalEstimatedTokens int        `json:"totalEstimatedTokens"`
}

// BatchJobs groups every async-job bookkeeping struct Progress carries.
type BatchJobs struct {
	QueryGenV1      *QueryGenJob         `json:"queryGenV1,omitempty"`
	QueryGenV2      *QueryGenJob         `json:"queryGenV2,omitempty"`
	ResultDetection ResultDetectionState `json:"resultDetection"`
}

// QueryGenResult holds one trial's pre-materialized discovery queries as the
// raw JSON a completed QUERY_GEN batch produced (spec.md §4.8
// QUERY_GEN_PROCESS). Both fields are left unparsed since their decoded
// shapes (a bare string, and discovery.QueryBundleV2) live in a package
// trialmodel cannot import; internal/discovery parses them at use time.
type QueryGenResult struct {
	V1Raw string `json:"v1Raw,omitempty"`
	V2Raw string `json:"v2Raw,omitempty"`
}

// RowStatus is the terminal per-input-row status.
type RowStatus string

const (
	RowSuccess    RowStatus = "success"
	RowError      RowStatus = "error"
	RowProcessing RowStatus = "processing"
)

// RowState is one input row's terminal status plus its last error.
type RowState struct {
	Status   RowStatus `json:"status"`
	LastErr  string    `json:"lastError,omitempty"`
}

// PublicationSetError records one failed unit of publication discovery.
type PublicationSetError struct {
	Fn      string `json:"fn"`
	Message string `json:"message"`
}

// PublicationSet is the per-trial publication-discovery result.
type PublicationSet struct {
	Candidates []Publication         `json:"candidates"`
	Filtered   []Publication         `json:"filtered"`
	Errors     []PublicationSetError `json:"errors,omitempty"`
}

// SkippedCounts tallies rows skipped at various stages for the end-of-run
// summary (spec.md §7 Observability).
type SkippedCounts struct {
	NoTrialId     int `json:"noTrialId"`
	NoRegistration int `json:"noRegistration"`
}

// Progress is the durable state machine backing one batch run. It is
// written after every observable state change (spec.md §5) and read back on
// restart to resume at Stage.
type Progress struct {
	// RunID identifies this batch run across its Progress file's lifetime,
	// threaded into chunk input filenames and log fields so multiple runs'
	// artifacts never collide if written to a shared directory.
	RunID string `json:"runId"`
	Input string `json:"input"`
	Stage Stage  `json:"stage"`

	Registrations map[string]Registration   `json:"registrations"`
	Publications  map[string]PublicationSet `json:"publications"`
	// Datasets maps trialId to the validation dataset named in the input row
	// (spec.md §6's `dataset` column), used by PUB_DISCOVERY to pick the
	// right max-date cutoff on a --validation-run.
	Datasets map[string]string `json:"datasets,omitempty"`

	BatchJobs    BatchJobs                 `json:"batchJobs"`
	QueryResults map[string]QueryGenResult `json:"queryResults,omitempty"`

	Rows map[string]RowState `json:"rows"`

	StartedAt     time.Time     `json:"startedAt"`
	SkippedCounts SkippedCounts `json:"skippedCounts"`
}

// NewProgress creates a fresh Progress at stage PREP for a given input path.
func NewProgress(input string, now time.Time) *Progress {
	return &Progress{
		RunID:         uuid.NewString(),
		Input:         input,
		Stage:         StagePrep,
		Registrations: map[string]Registration{},
		Publications:  map[string]PublicationSet{},
		Datasets:      map[string]string{},
		QueryResults:  map[string]QueryGenResult{},
		Rows:          map[string]RowState{},
		StartedAt:     now,
	}
}
