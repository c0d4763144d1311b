package models

import "time"

// Receipt statuses
const (
	ReceiptStatusUploaded   = "uploaded"
	ReceiptStatusProcessing = "processing"
	ReceiptStatusExtracted  = "extracted"
	ReceiptStatusFailed     = "failed"
)

// Extraction methods
const (
	ExtractionMethodHeuristic = "heuristic"
	ExtractionMethodLLM       = "llm"
)

// Receipt represents an uploaded receipt file and its extracted fields.
// Monetary amounts are stored as fixed two-decimal strings to avoid
// float drift in and out of the database.
type Receipt struct {
	ID               int64          `json:"-"`
	PublicID         string         `json:"id"` // UUID exposed via the API
	ContentHash      string         `json:"content_hash"`
	OriginalFilename string         `json:"original_filename"`
	FilePath         string         `json:"-"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	Status           string         `json:"status"`
	MerchantName     string         `json:"merchant_name,omitempty"`
	TxDate           *time.Time     `json:"tx_date,omitempty"`
	CurrencyCode     string         `json:"currency_code,omitempty"`
	Subtotal         string         `json:"subtotal,omitempty"`
	Tax              string         `json:"tax,omitempty"`
	Tip              string         `json:"tip,omitempty"`
	Total            string         `json:"total,omitempty"`
	PaymentMethod    string         `json:"payment_method,omitempty"`
	PaymentLast4     string         `json:"payment_last4,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	ExtractedData    string         `json:"-"` // full JSON of the extraction result
	Items            []*ReceiptItem `json:"items,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ReceiptItem represents a single line item on a receipt.
type ReceiptItem struct {
	ID        int64   `json:"-"`
	ReceiptID int64   `json:"-"`
	Position  int     `json:"position"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity,omitempty"`
	UnitPrice string  `json:"unit_price,omitempty"`
	Amount    string  `json:"amount,omitempty"`
}

// ExtractedReceiptData is the normalized output of the extraction pipeline,
// produced either by the heuristic parser or by the LLM fallback.
type ExtractedReceiptData struct {
	MerchantName  string          `json:"merchant_name"`
	TxDate        string          `json:"tx_date"` // YYYY-MM-DD
	CurrencyCode  string          `json:"currency_code"`
	Subtotal      string          `json:"subtotal,omitempty"`
	Tax           string          `json:"tax,omitempty"`
	Tip           string          `json:"tip,omitempty"`
	Discount      string          `json:"discount,omitempty"`
	Total         string          `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentLast4  string          `json:"payment_last4,omitempty"`
	Items         []ExtractedItem `json:"items,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
}

// ExtractedItem is a line item as produced by the pipeline.
type ExtractedItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity,omitempty"`
	UnitPrice string  `json:"unit_price,omitempty"`
	Amount    string  `json:"amount,omitempty"`
}

// DuplicateCheckResult reports whether an uploaded file's content hash
// has been seen before.
type DuplicateCheckResult struct {
	IsDuplicate      bool       `json:"is_duplicate"`
	ExistingPublicID string     `json:"existing_id,omitempty"`
	FirstSeenAt      *time.Time `json:"first_seen_at,omitempty"`
}
