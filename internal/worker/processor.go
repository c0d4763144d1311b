package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/extract"
	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/internal/pipeline"
	"github.com/tallyfold/receiptd/pkg/database"
)

// ReceiptRepo is the receipt repository contract the processor needs.
type ReceiptRepo interface {
	GetByID(id int64) (*models.Receipt, error)
	UpdateStatus(tx *sql.Tx, id int64, status string) error
	UpdateExtraction(tx *sql.Tx, receipt *models.Receipt) error
}

// JobRepo is the job repository contract the processor needs.
type JobRepo interface {
	ClaimPending(limit int) ([]*models.ExtractJob, error)
	MarkCompleted(tx *sql.Tx, id int64) error
	MarkFailed(id int64, stage, errMsg string, retryable bool, backoff time.Duration) error
}

// Notifier posts extraction outcomes to an external channel. Implementations
// must tolerate being called from the worker goroutine.
type Notifier interface {
	ExtractionFailed(ctx context.Context, receipt *models.Receipt, reason string) error
	ExtractionCompleted(ctx context.Context, receipt *models.Receipt) error
}

// ProcessorConfig holds processor tuning knobs.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	RetryBackoff time.Duration
}

// ProcessorStatus reports current processor state for the health endpoint.
type ProcessorStatus struct {
	IsRunning      bool      `json:"is_running"`
	LastPolled     time.Time `json:"last_polled"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	LastError      string    `json:"last_error,omitempty"`
}

// Processor polls for pending extraction jobs and runs the pipeline on
// each, with a per-job timeout and bounded retries.
type Processor struct {
	cfg ProcessorConfig

	db          *database.DB
	receiptRepo ReceiptRepo
	jobRepo     JobRepo
	pipe        *pipeline.Pipeline
	notifier    Notifier // may be nil
	logger      *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isRunning      bool
	lastPolled     time.Time
	processedCount int
	failedCount    int
	lastError      error
}

// NewProcessor creates a new extraction job processor.
func NewProcessor(
	cfg ProcessorConfig,
	db *database.DB,
	receiptRepo ReceiptRepo,
	jobRepo JobRepo,
	pipe *pipeline.Pipeline,
	notifier Notifier,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		cfg:         cfg,
		db:          db,
		receiptRepo: receiptRepo,
		jobRepo:     jobRepo,
		pipe:        pipe,
		notifier:    notifier,
		logger:      logger,
	}
}

// Name implements Worker.
func (p *Processor) Name() string { return "extract-processor" }

// Start begins the polling loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true
	p.mu.Unlock()

	p.logger.Info("Processor started",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("batch_size", p.cfg.BatchSize))

	go p.pollLoop()
	return nil
}

// Stop gracefully terminates the processor.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	p.logger.Info("Processor stopped",
		zap.Int("processed_count", p.processedCount),
		zap.Int("failed_count", p.failedCount))
}

// Status returns current processor state.
func (p *Processor) Status() ProcessorStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := ProcessorStatus{
		IsRunning:      p.isRunning,
		LastPolled:     p.lastPolled,
		ProcessedCount: p.processedCount,
		FailedCount:    p.failedCount,
	}
	if p.lastError != nil {
		status.LastError = p.lastError.Error()
	}
	return status
}

func (p *Processor) pollLoop() {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Poll loop context cancelled")
			return

		case <-ticker.C:
			if err := p.processBatch(); err != nil {
				p.mu.Lock()
				p.lastError = err
				p.mu.Unlock()
				p.logger.Error("Failed to process job batch", zap.Error(err))
			}

			p.mu.Lock()
			p.lastPolled = time.Now()
			p.mu.Unlock()
		}
	}
}

// processBatch claims due jobs and runs each to completion.
func (p *Processor) processBatch() error {
	jobs, err := p.jobRepo.ClaimPending(p.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	p.logger.Debug("Claimed extraction jobs", zap.Int("count", len(jobs)))

	for _, job := range jobs {
		select {
		case <-p.ctx.Done():
			return nil
		default:
		}
		p.processJob(job)
	}
	return nil
}

func (p *Processor) processJob(job *models.ExtractJob) {
	logger := p.logger.With(
		zap.String("job_id", job.PublicID),
		zap.Int("attempt", job.Attempts))

	receipt, err := p.receiptRepo.GetByID(job.ReceiptID)
	if err != nil || receipt == nil {
		if err == nil {
			err = fmt.Errorf("receipt %d not found", job.ReceiptID)
		}
		logger.Error("Failed to load receipt for job", zap.Error(err))
		p.failJob(job, nil, models.StagePersist, err)
		return
	}

	logger = logger.With(zap.String("receipt_id", receipt.PublicID))

	if err := p.receiptRepo.UpdateStatus(nil, receipt.ID, models.ReceiptStatusProcessing); err != nil {
		logger.Error("Failed to mark receipt processing", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.JobTimeout)
	result, err := p.pipe.Process(ctx, receipt)
	cancel()

	if err != nil {
		stage := models.StageExtract
		var se *pipeline.StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		logger.Warn("Extraction pipeline failed",
			zap.String("stage", stage),
			zap.Error(err))
		p.failJob(job, receipt, stage, err)
		return
	}

	if err := p.persistResult(receipt, job, result); err != nil {
		logger.Error("Failed to persist extraction result", zap.Error(err))
		p.failJob(job, receipt, models.StagePersist, err)
		return
	}

	p.mu.Lock()
	p.processedCount++
	p.mu.Unlock()

	logger.Info("Extraction completed",
		zap.String("method", result.Method),
		zap.String("merchant", result.Data.MerchantName),
		zap.String("total", result.Data.Total))

	if p.notifier != nil {
		if err := p.notifier.ExtractionCompleted(p.ctx, receipt); err != nil {
			logger.Warn("Completion notification failed", zap.Error(err))
		}
	}
}

// persistResult writes the receipt fields, items and job completion in one
// transaction so a partial failure never leaves a half-updated receipt.
func (p *Processor) persistResult(receipt *models.Receipt, job *models.ExtractJob, result *extract.Result) error {
	data := result.Data

	receipt.Status = models.ReceiptStatusExtracted
	receipt.MerchantName = data.MerchantName
	receipt.CurrencyCode = data.CurrencyCode
	receipt.Subtotal = data.Subtotal
	receipt.Tax = data.Tax
	receipt.Tip = data.Tip
	receipt.Total = data.Total
	receipt.PaymentMethod = data.PaymentMethod
	receipt.PaymentLast4 = data.PaymentLast4
	receipt.ExtractionMethod = result.Method
	receipt.Confidence = data.Confidence

	if txDate, err := time.Parse("2006-01-02", data.TxDate); err == nil {
		receipt.TxDate = &txDate
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode extracted data: %w", err)
	}
	receipt.ExtractedData = string(raw)

	receipt.Items = receipt.Items[:0]
	for i, item := range data.Items {
		receipt.Items = append(receipt.Items, &models.ReceiptItem{
			Position:  i + 1,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.Amount,
		})
	}

	return p.db.WithTransaction(func(tx *sql.Tx) error {
		if err := p.receiptRepo.UpdateExtraction(tx, receipt); err != nil {
			return err
		}
		return p.jobRepo.MarkCompleted(tx, job.ID)
	})
}

// failJob records the failure, rescheduling when attempts remain. Signature
// validation failures are deterministic and never retried.
func (p *Processor) failJob(job *models.ExtractJob, receipt *models.Receipt, stage string, cause error) {
	retryable := job.Retryable() && stage != models.StageValidate

	if err := p.jobRepo.MarkFailed(job.ID, stage, cause.Error(), retryable, p.cfg.RetryBackoff); err != nil {
		p.logger.Error("Failed to record job failure", zap.Error(err))
	}

	if retryable {
		return
	}

	p.mu.Lock()
	p.failedCount++
	p.mu.Unlock()

	if receipt != nil {
		if err := p.receiptRepo.UpdateStatus(nil, receipt.ID, models.ReceiptStatusFailed); err != nil {
			p.logger.Error("Failed to mark receipt failed", zap.Error(err))
		}
		if p.notifier != nil {
			reason := fmt.Sprintf("%s stage: %v", stage, cause)
			if err := p.notifier.ExtractionFailed(p.ctx, receipt, reason); err != nil {
				p.logger.Warn("Failure notification failed", zap.Error(err))
			}
		}
	}
}
