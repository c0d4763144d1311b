package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tallyfold/receiptd/internal/models"
	"go.uber.org/zap"
)

const receiptColumns = `id, public_id, content_hash, original_filename, file_path, file_size,
	mime_type, status, merchant_name, tx_date, currency_code, subtotal, tax, tip, total,
	payment_method, payment_last4, extraction_method, confidence, extracted_data,
	created_at, updated_at`

// ReceiptListFilter narrows List results.
type ReceiptListFilter struct {
	Status   string
	Merchant string // substring match
	From     *time.Time
	To       *time.Time
	Limit    int // -1 returns all rows
	Offset   int
}

// ReceiptRepository handles receipt database operations
type ReceiptRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sql.DB, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new receipt record
func (r *ReceiptRepository) Create(tx *sql.Tx, receipt *models.Receipt) error {
	query := `
		INSERT INTO receipts (
			public_id, content_hash, original_filename, file_path, file_size,
			mime_type, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	result, err := exec(query,
		receipt.PublicID,
		receipt.ContentHash,
		receipt.OriginalFilename,
		receipt.FilePath,
		receipt.FileSize,
		receipt.MimeType,
		receipt.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	receipt.ID = id
	return nil
}

// CheckDuplicate looks up an existing receipt with the same content hash.
func (r *ReceiptRepository) CheckDuplicate(contentHash string) (*models.DuplicateCheckResult, error) {
	query := `
		SELECT public_id, created_at
		FROM receipts
		WHERE content_hash = ?
		LIMIT 1
	`

	var publicID string
	var createdAt time.Time

	err := r.db.QueryRow(query, contentHash).Scan(&publicID, &createdAt)
	if err == sql.ErrNoRows {
		return &models.DuplicateCheckResult{IsDuplicate: false}, nil
	}
	if err != nil {
		r.logger.Error("Failed to check duplicate receipt", zap.Error(err))
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return &models.DuplicateCheckResult{
		IsDuplicate:      true,
		ExistingPublicID: publicID,
		FirstSeenAt:      &createdAt,
	}, nil
}

// GetByPublicID retrieves a receipt (without items) by its UUID. Returns
// nil, nil when no row matches.
func (r *ReceiptRepository) GetByPublicID(publicID string) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE public_id = ?`
	return r.scanOne(r.db.QueryRow(query, publicID))
}

// GetByID retrieves a receipt by its internal row ID.
func (r *ReceiptRepository) GetByID(id int64) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

func (r *ReceiptRepository) scanOne(row *sql.Row) (*models.Receipt, error) {
	var receipt models.Receipt
	var txDate sql.NullTime

	err := row.Scan(
		&receipt.ID,
		&receipt.PublicID,
		&receipt.ContentHash,
		&receipt.OriginalFilename,
		&receipt.FilePath,
		&receipt.FileSize,
		&receipt.MimeType,
		&receipt.Status,
		&receipt.MerchantName,
		&txDate,
		&receipt.CurrencyCode,
		&receipt.Subtotal,
		&receipt.Tax,
		&receipt.Tip,
		&receipt.Total,
		&receipt.PaymentMethod,
		&receipt.PaymentLast4,
		&receipt.ExtractionMethod,
		&receipt.Confidence,
		&receipt.ExtractedData,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt", zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	if txDate.Valid {
		receipt.TxDate = &txDate.Time
	}
	return &receipt, nil
}

// List returns a page of receipts plus the total count for the filter.
func (r *ReceiptRepository) List(filter ReceiptListFilter) ([]*models.Receipt, int, error) {
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Merchant != "" {
		conds = append(conds, "merchant_name LIKE ?")
		args = append(args, "%"+filter.Merchant+"%")
	}
	if filter.From != nil {
		conds = append(conds, "tx_date >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "tx_date <= ?")
		args = append(args, *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM receipts"+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count receipts", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list receipts", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		var receipt models.Receipt
		var txDate sql.NullTime

		err := rows.Scan(
			&receipt.ID,
			&receipt.PublicID,
			&receipt.ContentHash,
			&receipt.OriginalFilename,
			&receipt.FilePath,
			&receipt.FileSize,
			&receipt.MimeType,
			&receipt.Status,
			&receipt.MerchantName,
			&txDate,
			&receipt.CurrencyCode,
			&receipt.Subtotal,
			&receipt.Tax,
			&receipt.Tip,
			&receipt.Total,
			&receipt.PaymentMethod,
			&receipt.PaymentLast4,
			&receipt.ExtractionMethod,
			&receipt.Confidence,
			&receipt.ExtractedData,
			&receipt.CreatedAt,
			&receipt.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan receipt: %w", err)
		}

		if txDate.Valid {
			receipt.TxDate = &txDate.Time
		}
		receipts = append(receipts, &receipt)
	}

	return receipts, total, rows.Err()
}

// UpdateStatus sets the receipt status.
func (r *ReceiptRepository) UpdateStatus(tx *sql.Tx, id int64, status string) error {
	query := `UPDATE receipts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	exec := r.db.Exec
	if tx != nil {
		exec = tx.Exec
	}

	if _, err := exec(query, status, id); err != nil {
		r.logger.Error("Failed to update receipt status",
			zap.Int64("receipt_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update receipt status: %w", err)
	}
	return nil
}

// UpdateExtraction writes the extracted fields onto the receipt row and
// replaces its line items. Must run inside a transaction so a failed item
// insert never leaves a half-updated receipt.
func (r *ReceiptRepository) UpdateExtraction(tx *sql.Tx, receipt *models.Receipt) error {
	query := `
		UPDATE receipts SET
			status = ?, merchant_name = ?, tx_date = ?, currency_code = ?,
			subtotal = ?, tax = ?, tip = ?, total = ?,
			payment_method = ?, payment_last4 = ?,
			extraction_method = ?, confidence = ?, extracted_data = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var txDate interface{}
	if receipt.TxDate != nil {
		txDate = *receipt.TxDate
	}

	_, err := tx.Exec(query,
		receipt.Status,
		receipt.MerchantName,
		txDate,
		receipt.CurrencyCode,
		receipt.Subtotal,
		receipt.Tax,
		receipt.Tip,
		receipt.Total,
		receipt.PaymentMethod,
		receipt.PaymentLast4,
		receipt.ExtractionMethod,
		receipt.Confidence,
		receipt.ExtractedData,
		receipt.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update receipt extraction", zap.Int64("receipt_id", receipt.ID), zap.Error(err))
		return fmt.Errorf("failed to update receipt: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM receipt_items WHERE receipt_id = ?`, receipt.ID); err != nil {
		return fmt.Errorf("failed to clear receipt items: %w", err)
	}

	itemQuery := `
		INSERT INTO receipt_items (receipt_id, position, name, quantity, unit_price, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, item := range receipt.Items {
		if _, err := tx.Exec(itemQuery, receipt.ID, i+1, item.Name, item.Quantity, item.UnitPrice, item.Amount); err != nil {
			return fmt.Errorf("failed to insert receipt item: %w", err)
		}
	}

	return nil
}

// GetItems returns the line items for a receipt in position order.
func (r *ReceiptRepository) GetItems(receiptID int64) ([]*models.ReceiptItem, error) {
	query := `
		SELECT id, receipt_id, position, name, quantity, unit_price, amount
		FROM receipt_items
		WHERE receipt_id = ?
		ORDER BY position
	`

	rows, err := r.db.Query(query, receiptID)
	if err != nil {
		r.logger.Error("Failed to get receipt items", zap.Int64("receipt_id", receiptID), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt items: %w", err)
	}
	defer rows.Close()

	var items []*models.ReceiptItem
	for rows.Next() {
		var item models.ReceiptItem
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.Position, &item.Name, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan receipt item: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// Delete removes a receipt. Items and jobs go with it via ON DELETE CASCADE.
func (r *ReceiptRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM receipts WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete receipt", zap.Int64("receipt_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete receipt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
