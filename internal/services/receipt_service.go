package services

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/internal/pdf"
	"github.com/tallyfold/receiptd/internal/repository"
	"github.com/tallyfold/receiptd/internal/storage"
	"github.com/tallyfold/receiptd/pkg/database"
	"github.com/tallyfold/receiptd/pkg/utils"
)

// ErrNotFound is returned when a receipt or job does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyFile is returned for zero-byte uploads.
var ErrEmptyFile = errors.New("uploaded file is empty")

// TooLargeError is returned when an upload exceeds the configured cap.
type TooLargeError struct {
	Size int64
	Max  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file size %d exceeds maximum %d", e.Size, e.Max)
}

// DuplicateError is returned when an upload's content hash already exists.
type DuplicateError struct {
	ExistingPublicID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate of receipt %s", e.ExistingPublicID)
}

// ReceiptService implements the upload and lifecycle operations for receipts.
type ReceiptService struct {
	db            *database.DB
	receipts      *repository.ReceiptRepository
	jobs          *repository.JobRepository
	files         storage.FileStorage
	folders       *storage.FolderManager
	maxUploadSize int64
	maxAttempts   int
	logger        *zap.Logger
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	db *database.DB,
	receipts *repository.ReceiptRepository,
	jobs *repository.JobRepository,
	files storage.FileStorage,
	folders *storage.FolderManager,
	maxUploadSize int64,
	maxAttempts int,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		db:            db,
		receipts:      receipts,
		jobs:          jobs,
		files:         files,
		folders:       folders,
		maxUploadSize: maxUploadSize,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// Upload stores a new receipt file and enqueues its extraction job. The
// receipt and job rows are created in one transaction so an enqueued job
// always has a receipt behind it.
func (s *ReceiptService) Upload(filename string, content []byte) (*models.Receipt, *models.ExtractJob, error) {
	if len(content) == 0 {
		return nil, nil, ErrEmptyFile
	}
	if s.maxUploadSize > 0 && int64(len(content)) > s.maxUploadSize {
		return nil, nil, &TooLargeError{Size: int64(len(content)), Max: s.maxUploadSize}
	}

	filename = utils.SanitizeFilename(filename)

	mimeType, err := pdf.DetectContentType(content, filename)
	if err != nil {
		return nil, nil, err
	}

	sum := sha256.Sum256(content)
	contentHash := hex.EncodeToString(sum[:])

	dup, err := s.receipts.CheckDuplicate(contentHash)
	if err != nil {
		return nil, nil, err
	}
	if dup.IsDuplicate {
		return nil, nil, &DuplicateError{ExistingPublicID: dup.ExistingPublicID}
	}

	receiptID := uuid.New().String()

	if _, err := s.folders.CreateReceiptFolder(receiptID); err != nil {
		return nil, nil, fmt.Errorf("failed to create receipt folder: %w", err)
	}

	filePath := s.folders.OriginalPath(receiptID, filename)
	if err := s.files.SaveFile(filePath, content); err != nil {
		s.cleanupFolder(receiptID)
		return nil, nil, fmt.Errorf("failed to store file: %w", err)
	}

	receipt := &models.Receipt{
		PublicID:         receiptID,
		ContentHash:      contentHash,
		OriginalFilename: filename,
		FilePath:         filePath,
		FileSize:         int64(len(content)),
		MimeType:         mimeType,
		Status:           models.ReceiptStatusUploaded,
	}
	job := &models.ExtractJob{
		PublicID:    uuid.New().String(),
		MaxAttempts: s.maxAttempts,
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.receipts.Create(tx, receipt); err != nil {
			return err
		}
		job.ReceiptID = receipt.ID
		return s.jobs.Create(tx, job)
	})
	if err != nil {
		s.cleanupFolder(receiptID)
		return nil, nil, err
	}

	s.logger.Info("Receipt uploaded",
		zap.String("receipt_id", receipt.PublicID),
		zap.String("filename", filename),
		zap.Int64("size", receipt.FileSize),
		zap.String("mime_type", mimeType))

	return receipt, job, nil
}

// Get returns a receipt with its line items.
func (s *ReceiptService) Get(publicID string) (*models.Receipt, error) {
	receipt, err := s.receipts.GetByPublicID(publicID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrNotFound
	}

	items, err := s.receipts.GetItems(receipt.ID)
	if err != nil {
		return nil, err
	}
	receipt.Items = items

	return receipt, nil
}

// List returns a page of receipts plus the total count for the filter.
func (s *ReceiptService) List(filter repository.ReceiptListFilter) ([]*models.Receipt, int, error) {
	return s.receipts.List(filter)
}

// FilePath returns the stored file path and original filename for download.
func (s *ReceiptService) FilePath(publicID string) (path, filename string, err error) {
	receipt, err := s.receipts.GetByPublicID(publicID)
	if err != nil {
		return "", "", err
	}
	if receipt == nil {
		return "", "", ErrNotFound
	}
	return receipt.FilePath, receipt.OriginalFilename, nil
}

// Delete removes a receipt row and its stored files. The folder removal is
// best effort; an orphaned folder is harmless and logged.
func (s *ReceiptService) Delete(publicID string) error {
	receipt, err := s.receipts.GetByPublicID(publicID)
	if err != nil {
		return err
	}
	if receipt == nil {
		return ErrNotFound
	}

	if err := s.receipts.Delete(receipt.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if err := s.folders.DeleteReceiptFolder(receipt.PublicID); err != nil {
		s.logger.Warn("Failed to delete receipt folder",
			zap.String("receipt_id", receipt.PublicID),
			zap.Error(err))
	}

	s.logger.Info("Receipt deleted", zap.String("receipt_id", publicID))
	return nil
}

// Reprocess enqueues a fresh extraction job for an existing receipt. Refused
// while a job for the receipt is still pending or running.
func (s *ReceiptService) Reprocess(publicID string) (*models.ExtractJob, error) {
	receipt, err := s.receipts.GetByPublicID(publicID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrNotFound
	}

	latest, err := s.jobs.GetLatestForReceipt(receipt.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && (latest.Status == models.JobStatusPending || latest.Status == models.JobStatusRunning) {
		return nil, fmt.Errorf("extraction already in progress for receipt %s", publicID)
	}

	job := &models.ExtractJob{
		PublicID:    uuid.New().String(),
		ReceiptID:   receipt.ID,
		MaxAttempts: s.maxAttempts,
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.jobs.Create(tx, job); err != nil {
			return err
		}
		return s.receipts.UpdateStatus(tx, receipt.ID, models.ReceiptStatusUploaded)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Receipt reprocess enqueued",
		zap.String("receipt_id", publicID),
		zap.String("job_id", job.PublicID))

	return job, nil
}

// GetJob returns a job by its public ID.
func (s *ReceiptService) GetJob(publicID string) (*models.ExtractJob, error) {
	job, err := s.jobs.GetByPublicID(publicID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *ReceiptService) cleanupFolder(receiptID string) {
	if err := s.folders.DeleteReceiptFolder(receiptID); err != nil {
		s.logger.Warn("Failed to clean up receipt folder",
			zap.String("receipt_id", receiptID),
			zap.Error(err))
	}
}
