package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tallyfold/receiptd/internal/models"
	"go.uber.org/zap"
)

// Confidence weights per recovered field. Total dominates: a receipt
// without a total is not worth much.
const (
	weightMerchant = 0.20
	weightDate     = 0.25
	weightTotal    = 0.35
	weightCurrency = 0.05
	weightItems    = 0.15
)

var (
	reISODate    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reSlashDate  = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	reMonthDate  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	reAmount     = regexp.MustCompile(`-?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}\b`)
	reCurrency   = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|CHF|JPY|CNY|SEK|NOK)\b`)
	rePayMethod  = regexp.MustCompile(`(?i)\b(visa|mastercard|amex|discover|maestro|debit|credit|cash)\b`)
	reCardLast4  = regexp.MustCompile(`(?:[xX*•]{2,}\s*|ending\s+in\s+)(\d{4})\b`)
	reMostDigits = regexp.MustCompile(`^[\d\s\-.#/:]+$`)
	reItemLine   = regexp.MustCompile(`^(?:(\d{1,3})\s*[xX@]?\s+)?(\S.{1,48}?)\s+\$?(-?\d+\.\d{2})$`)
)

var monthIndex = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Keywords that mark summary lines rather than purchasable items.
var summaryKeywords = []string{
	"total", "subtotal", "sub-total", "tax", "vat", "gst", "tip", "gratuity",
	"change", "cash", "tender", "balance", "due", "discount", "payment",
	"card", "visa", "mastercard", "amount", "rounding",
}

// HeuristicParser extracts receipt fields from normalized OCR text with
// regexes and keyword scans. It never errors; missing fields simply lower
// the confidence score, which decides whether the LLM fallback runs.
type HeuristicParser struct {
	defaultCurrency string
	logger          *zap.Logger
}

// NewHeuristicParser creates a new HeuristicParser
func NewHeuristicParser(defaultCurrency string, logger *zap.Logger) *HeuristicParser {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &HeuristicParser{
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// Parse extracts fields from normalized receipt text.
func (p *HeuristicParser) Parse(text string) *models.ExtractedReceiptData {
	lines := splitLines(text)

	data := &models.ExtractedReceiptData{
		MerchantName: p.findMerchant(lines),
		TxDate:       p.findDate(text),
	}

	p.findAmounts(lines, data)
	data.CurrencyCode = p.findCurrency(text)
	data.PaymentMethod, data.PaymentLast4 = p.findPayment(text)
	data.Items = p.findItems(lines)

	data.Confidence = p.score(data)

	p.logger.Debug("Heuristic parse finished",
		zap.String("merchant", data.MerchantName),
		zap.String("tx_date", data.TxDate),
		zap.String("total", data.Total),
		zap.Int("item_count", len(data.Items)),
		zap.Float64("confidence", data.Confidence))

	return data
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// findMerchant takes the first plausible header line: not a date, not
// mostly digits, not a summary keyword line.
func (p *HeuristicParser) findMerchant(lines []string) string {
	for i, line := range lines {
		if i > 4 {
			break
		}
		if len(line) < 3 || len(line) > 60 {
			continue
		}
		if reMostDigits.MatchString(line) {
			continue
		}
		if reISODate.MatchString(line) || reSlashDate.MatchString(line) || reMonthDate.MatchString(line) {
			continue
		}
		if isSummaryLine(line) {
			continue
		}
		return strings.TrimSpace(line)
	}
	return ""
}

// findDate returns the first recognizable date, normalized to YYYY-MM-DD.
func (p *HeuristicParser) findDate(text string) string {
	if m := reISODate.FindStringSubmatch(text); m != nil {
		if d, err := time.Parse("2006-01-02", m[0]); err == nil {
			return d.Format("2006-01-02")
		}
	}

	if m := reSlashDate.FindStringSubmatch(text); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		month, day := first, second
		// A first component over 12 can only be a day (DD/MM/YYYY).
		if first > 12 && second <= 12 {
			month, day = second, first
		}
		if validDate(year, month, day) {
			return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		}
	}

	if m := reMonthDate.FindStringSubmatch(text); m != nil {
		month := monthIndex[strings.ToLower(m[1])]
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if validDate(year, int(month), day) {
			return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		}
	}

	return ""
}

func validDate(year, month, day int) bool {
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month
}

// findAmounts scans labeled lines for total, subtotal, tax and tip. When no
// labeled total exists, the largest amount on the receipt is used.
func (p *HeuristicParser) findAmounts(lines []string, data *models.ExtractedReceiptData) {
	var largest float64
	var largestStr string

	for _, line := range lines {
		lower := strings.ToLower(line)
		amounts := reAmount.FindAllString(line, -1)
		if len(amounts) == 0 {
			continue
		}
		// Rightmost amount on the line is the value column.
		amount := normalizeAmount(amounts[len(amounts)-1])

		switch {
		case data.Subtotal == "" && (strings.Contains(lower, "subtotal") || strings.Contains(lower, "sub-total")):
			data.Subtotal = amount
		case data.Tax == "" && (strings.Contains(lower, "tax") || strings.Contains(lower, "vat") || strings.Contains(lower, "gst")):
			data.Tax = amount
		case data.Tip == "" && (strings.Contains(lower, "tip") || strings.Contains(lower, "gratuity")):
			data.Tip = amount
		case data.Total == "" && !strings.Contains(lower, "subtotal") &&
			(strings.Contains(lower, "total") || strings.Contains(lower, "amount due") || strings.Contains(lower, "balance due")):
			data.Total = amount
		}

		if v, err := strconv.ParseFloat(amount, 64); err == nil && v > largest {
			largest = v
			largestStr = amount
		}
	}

	if data.Total == "" && largestStr != "" {
		data.Total = largestStr
	}
}

func normalizeAmount(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fmt.Sprintf("%.2f", f)
	}
	return s
}

func (p *HeuristicParser) findCurrency(text string) string {
	if m := reCurrency.FindString(text); m != "" {
		return m
	}
	switch {
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "£"):
		return "GBP"
	case strings.Contains(text, "$"):
		return p.defaultCurrency
	}
	return ""
}

func (p *HeuristicParser) findPayment(text string) (method, last4 string) {
	if m := rePayMethod.FindString(text); m != "" {
		method = strings.ToUpper(m)
	}
	if m := reCardLast4.FindStringSubmatch(text); m != nil {
		last4 = m[1]
	}
	return method, last4
}

// findItems extracts "qty? name price" shaped lines, skipping summary rows.
func (p *HeuristicParser) findItems(lines []string) []models.ExtractedItem {
	var items []models.ExtractedItem

	for _, line := range lines {
		if isSummaryLine(line) {
			continue
		}
		m := reItemLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		name := strings.TrimSpace(m[2])
		if name == "" || reMostDigits.MatchString(name) {
			continue
		}

		item := models.ExtractedItem{
			Name:   name,
			Amount: normalizeAmount(m[3]),
		}
		if m[1] != "" {
			if qty, err := strconv.Atoi(m[1]); err == nil && qty > 0 {
				item.Quantity = float64(qty)
				if amt, err := strconv.ParseFloat(item.Amount, 64); err == nil && qty > 1 {
					item.UnitPrice = fmt.Sprintf("%.2f", amt/float64(qty))
				}
			}
		}
		items = append(items, item)
	}

	return items
}

func isSummaryLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range summaryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// score turns field coverage into a 0..1 confidence value.
func (p *HeuristicParser) score(data *models.ExtractedReceiptData) float64 {
	var score float64
	if data.MerchantName != "" {
		score += weightMerchant
	}
	if data.TxDate != "" {
		score += weightDate
	}
	if data.Total != "" {
		score += weightTotal
	}
	if data.CurrencyCode != "" {
		score += weightCurrency
	}
	if len(data.Items) > 0 {
		score += weightItems
	}
	return score
}
