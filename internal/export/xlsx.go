package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/internal/repository"
)

// Service produces XLSX workbooks of extracted receipts.
type Service struct {
	receipts *repository.ReceiptRepository
	logger   *zap.Logger
}

// NewService creates a new export service.
func NewService(receipts *repository.ReceiptRepository, logger *zap.Logger) *Service {
	return &Service{receipts: receipts, logger: logger}
}

// ExportReceiptsXLSX returns an XLSX workbook (as bytes) for the given date
// window. If only from is provided the window runs from..today; if only to,
// beginning..to; if neither, all receipts.
func (s *Service) ExportReceiptsXLSX(from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		now := time.Now().UTC()
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	recs, _, err := s.receipts.List(repository.ReceiptListFilter{
		From:  fromDate,
		To:    toDate,
		Limit: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headers := []string{
		"Receipt ID",
		"Transaction Date",
		"Merchant",
		"Currency",
		"Subtotal",
		"Tax",
		"Tip",
		"Total",
		"Payment Method",
		"Status",
		"Extraction Method",
		"Original Filename",
		"Uploaded At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := 2
	for _, r := range recs {
		txDate := ""
		if r.TxDate != nil {
			txDate = r.TxDate.Format("2006-01-02")
		}
		values := []interface{}{
			r.PublicID,
			txDate,
			r.MerchantName,
			r.CurrencyCode,
			r.Subtotal,
			r.Tax,
			r.Tip,
			r.Total,
			paymentLabel(r),
			r.Status,
			r.ExtractionMethod,
			r.OriginalFilename,
			r.CreatedAt.Format(time.RFC3339),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "M", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("Export finished",
		zap.Int("receipt_count", len(recs)),
		zap.Duration("duration", time.Since(start)))

	return buf.Bytes(), nil
}

func paymentLabel(r *models.Receipt) string {
	if r.PaymentMethod == "" {
		return ""
	}
	if r.PaymentLast4 != "" {
		return r.PaymentMethod + " •" + r.PaymentLast4
	}
	return r.PaymentMethod
}
