package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
)

// fakeReceiptRepo records status updates.
type fakeReceiptRepo struct {
	mu       sync.Mutex
	receipts map[int64]*models.Receipt
	statuses map[int64]string
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{
		receipts: make(map[int64]*models.Receipt),
		statuses: make(map[int64]string),
	}
}

func (f *fakeReceiptRepo) GetByID(id int64) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[id], nil
}

func (f *fakeReceiptRepo) UpdateStatus(tx *sql.Tx, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeReceiptRepo) UpdateExtraction(tx *sql.Tx, receipt *models.Receipt) error {
	return nil
}

// fakeJobRepo records failure bookkeeping.
type fakeJobRepo struct {
	mu            sync.Mutex
	claimed       []*models.ExtractJob
	failedStage   string
	failedMsg     string
	lastRetryable bool
	markFailedN   int
}

func (f *fakeJobRepo) ClaimPending(limit int) ([]*models.ExtractJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := f.claimed
	f.claimed = nil
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (f *fakeJobRepo) MarkCompleted(tx *sql.Tx, id int64) error { return nil }

func (f *fakeJobRepo) MarkFailed(id int64, stage, errMsg string, retryable bool, backoff time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markFailedN++
	f.failedStage = stage
	f.failedMsg = errMsg
	f.lastRetryable = retryable
	return nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu        sync.Mutex
	failed    []string
	completed []string
}

func (f *fakeNotifier) ExtractionFailed(ctx context.Context, receipt *models.Receipt, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, reason)
	return nil
}

func (f *fakeNotifier) ExtractionCompleted(ctx context.Context, receipt *models.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, receipt.PublicID)
	return nil
}

func testConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval: time.Hour, // never fires during tests
		BatchSize:    5,
		JobTimeout:   time.Minute,
		RetryBackoff: 30 * time.Second,
	}
}

func TestProcessor_Lifecycle(t *testing.T) {
	p := NewProcessor(testConfig(), nil, newFakeReceiptRepo(), &fakeJobRepo{}, nil, nil, zap.NewNop())

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "double start must fail")

	status := p.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, "extract-processor", p.Name())

	p.Stop()
	assert.False(t, p.Status().IsRunning)

	// Stopping twice is safe.
	p.Stop()
}

func TestProcessor_FailJob(t *testing.T) {
	receipt := &models.Receipt{ID: 1, PublicID: "r-1", Status: models.ReceiptStatusProcessing}

	newProcessor := func(jobs *fakeJobRepo, receipts *fakeReceiptRepo, notifier Notifier) *Processor {
		p := NewProcessor(testConfig(), nil, receipts, jobs, nil, notifier, zap.NewNop())
		p.ctx = context.Background()
		return p
	}

	t.Run("retryable failure reschedules without touching the receipt", func(t *testing.T) {
		jobs := &fakeJobRepo{}
		receipts := newFakeReceiptRepo()
		notifier := &fakeNotifier{}
		p := newProcessor(jobs, receipts, notifier)

		job := &models.ExtractJob{ID: 10, PublicID: "j-1", Attempts: 1, MaxAttempts: 3}
		p.failJob(job, receipt, models.StageOCR, fmt.Errorf("engine crashed"))

		assert.True(t, jobs.lastRetryable)
		assert.Equal(t, models.StageOCR, jobs.failedStage)
		assert.Empty(t, receipts.statuses, "receipt status must not change")
		assert.Empty(t, notifier.failed)
		assert.Zero(t, p.Status().FailedCount)
	})

	t.Run("exhausted attempts fail terminally", func(t *testing.T) {
		jobs := &fakeJobRepo{}
		receipts := newFakeReceiptRepo()
		notifier := &fakeNotifier{}
		p := newProcessor(jobs, receipts, notifier)

		job := &models.ExtractJob{ID: 11, PublicID: "j-2", Attempts: 3, MaxAttempts: 3}
		p.failJob(job, receipt, models.StageOCR, fmt.Errorf("engine crashed"))

		assert.False(t, jobs.lastRetryable)
		assert.Equal(t, models.ReceiptStatusFailed, receipts.statuses[receipt.ID])
		require.Len(t, notifier.failed, 1)
		assert.Contains(t, notifier.failed[0], "ocr stage")
		assert.Equal(t, 1, p.Status().FailedCount)
	})

	t.Run("validation failures never retry", func(t *testing.T) {
		jobs := &fakeJobRepo{}
		receipts := newFakeReceiptRepo()
		p := newProcessor(jobs, receipts, nil)

		job := &models.ExtractJob{ID: 12, PublicID: "j-3", Attempts: 1, MaxAttempts: 3}
		p.failJob(job, receipt, models.StageValidate, fmt.Errorf("not a pdf"))

		assert.False(t, jobs.lastRetryable)
		assert.Equal(t, models.ReceiptStatusFailed, receipts.statuses[receipt.ID])
	})

	t.Run("nil receipt skips status update and notification", func(t *testing.T) {
		jobs := &fakeJobRepo{}
		receipts := newFakeReceiptRepo()
		p := newProcessor(jobs, receipts, nil)

		job := &models.ExtractJob{ID: 13, PublicID: "j-4", Attempts: 3, MaxAttempts: 3}
		p.failJob(job, nil, models.StagePersist, fmt.Errorf("receipt 99 not found"))

		assert.Equal(t, 1, jobs.markFailedN)
		assert.Empty(t, receipts.statuses)
	})
}
