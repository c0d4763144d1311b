package extract

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/pkg/utils"
)

// Result is the outcome of a successful extraction.
type Result struct {
	Data        *models.ExtractedReceiptData
	Method      string // models.ExtractionMethodHeuristic or ...LLM
	RawLLMReply []byte // kept as an artifact, nil for heuristic runs
}

// Extractor runs the heuristic parser first and falls back to the LLM when
// the heuristic confidence is below the configured threshold.
type Extractor struct {
	heuristics      *HeuristicParser // nil when disabled
	llm             *LLMExtractor    // nil when no API key is configured
	threshold       float64
	defaultCurrency string
	logger          *zap.Logger
}

// NewExtractor creates a new Extractor
func NewExtractor(heuristics *HeuristicParser, llm *LLMExtractor, threshold float64, defaultCurrency string, logger *zap.Logger) *Extractor {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Extractor{
		heuristics:      heuristics,
		llm:             llm,
		threshold:       threshold,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// Extract turns normalized OCR text into shaped receipt fields.
func (e *Extractor) Extract(ctx context.Context, ocrText string) (*Result, error) {
	var heuristic *models.ExtractedReceiptData

	if e.heuristics != nil {
		heuristic = e.heuristics.Parse(ocrText)
		if heuristic.Confidence >= e.threshold {
			if err := e.shape(heuristic); err == nil {
				return &Result{Data: heuristic, Method: models.ExtractionMethodHeuristic}, nil
			} else {
				e.logger.Debug("Heuristic result failed shaping, falling back", zap.Error(err))
			}
		} else {
			e.logger.Debug("Heuristic confidence below threshold",
				zap.Float64("confidence", heuristic.Confidence),
				zap.Float64("threshold", e.threshold))
		}
	}

	if e.llm != nil {
		data, raw, err := e.llm.Extract(ctx, ocrText)
		if err != nil {
			return nil, err
		}
		if err := e.shape(data); err != nil {
			return nil, fmt.Errorf("llm result rejected: %w", err)
		}
		return &Result{Data: data, Method: models.ExtractionMethodLLM, RawLLMReply: raw}, nil
	}

	// No LLM configured: accept a below-threshold heuristic result as long
	// as the required fields survive shaping.
	if heuristic != nil {
		if err := e.shape(heuristic); err != nil {
			return nil, fmt.Errorf("heuristic extraction incomplete and no LLM fallback configured: %w", err)
		}
		e.logger.Warn("Accepting low-confidence heuristic result, no LLM fallback configured",
			zap.Float64("confidence", heuristic.Confidence))
		return &Result{Data: heuristic, Method: models.ExtractionMethodHeuristic}, nil
	}

	return nil, fmt.Errorf("no extraction method available")
}

// shape enforces required fields and normalizes the result in place.
func (e *Extractor) shape(data *models.ExtractedReceiptData) error {
	if data.MerchantName == "" {
		return fmt.Errorf("missing merchant name")
	}
	if data.TxDate == "" {
		return fmt.Errorf("missing transaction date")
	}
	if _, err := time.Parse("2006-01-02", data.TxDate); err != nil {
		return fmt.Errorf("invalid transaction date %q: %w", data.TxDate, err)
	}
	if data.Total == "" {
		return fmt.Errorf("missing total")
	}
	if err := utils.ValidateAmountString(data.Total); err != nil {
		return fmt.Errorf("invalid total: %w", err)
	}

	if data.CurrencyCode == "" {
		data.CurrencyCode = e.defaultCurrency
	}
	if err := utils.ValidateCurrencyCode(data.CurrencyCode); err != nil {
		return err
	}

	// Drop optional amounts that do not parse rather than failing the run.
	for _, field := range []*string{&data.Subtotal, &data.Tax, &data.Tip, &data.Discount} {
		if *field != "" && utils.ValidateAmountString(*field) != nil {
			*field = ""
		}
	}

	data.Items = e.saneItems(data.Items, data.Total)

	return nil
}

// saneItems drops line items whose amount is implausible against the
// receipt total. OCR column misreads produce these regularly.
func (e *Extractor) saneItems(items []models.ExtractedItem, total string) []models.ExtractedItem {
	totalVal, err := strconv.ParseFloat(total, 64)
	if err != nil || totalVal <= 0 {
		return items
	}

	kept := items[:0]
	for _, item := range items {
		if item.Amount != "" {
			amt, err := strconv.ParseFloat(item.Amount, 64)
			if err != nil {
				item.Amount = ""
			} else if amt > totalVal {
				e.logger.Debug("Dropping implausible line item",
					zap.String("name", item.Name),
					zap.String("amount", item.Amount),
					zap.String("total", total))
				continue
			}
		}
		kept = append(kept, item)
	}
	return kept
}
