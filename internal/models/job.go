package models

import "time"

// Extraction job statuses
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Pipeline stage names, recorded on the job when a stage fails.
const (
	StageValidate  = "validate"
	StageRasterize = "rasterize"
	StageOCR       = "ocr"
	StageNormalize = "normalize"
	StageExtract   = "extract"
	StagePersist   = "persist"
)

// ExtractJob tracks a single run of the extraction pipeline for a receipt.
type ExtractJob struct {
	ID           int64      `json:"-"`
	PublicID     string     `json:"id"`
	ReceiptID    int64      `json:"-"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	FailedStage  string     `json:"failed_stage,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	NextAttempt  time.Time  `json:"-"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Retryable reports whether the job may be attempted again.
func (j *ExtractJob) Retryable() bool {
	return j.Attempts < j.MaxAttempts
}
