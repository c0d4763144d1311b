package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
)

const maxPromptTextLen = 6000

// ChatCompleter is the slice of the OpenAI client the extractor needs;
// tests substitute a fake.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMExtractor sends normalized OCR text to the chat API and shapes the
// JSON reply into ExtractedReceiptData. Replies are repaired leniently and
// validated against the receipt schema before acceptance.
type LLMExtractor struct {
	client      ChatCompleter
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewLLMExtractor creates an extractor backed by the OpenAI API.
func NewLLMExtractor(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logger,
	}
}

// NewLLMExtractorWithClient is like NewLLMExtractor but with an injected
// client, for tests.
func NewLLMExtractorWithClient(client ChatCompleter, model string, logger *zap.Logger) *LLMExtractor {
	return &LLMExtractor{
		client:      client,
		model:       model,
		temperature: 0.1,
		maxTokens:   2048,
		timeout:     time.Minute,
		logger:      logger,
	}
}

// Extract parses receipt fields out of OCR text. The raw model reply is
// returned alongside the result so callers can keep it as an artifact.
func (e *LLMExtractor) Extract(ctx context.Context, ocrText string) (*models.ExtractedReceiptData, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(ocrText),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Chat completion failed", zap.Error(err))
		return nil, nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, nil, fmt.Errorf("no response choices from model")
	}

	raw := []byte(resp.Choices[0].Message.Content)

	repaired, fixes, err := RepairJSON(raw)
	if err != nil {
		e.logger.Error("Failed to repair model reply",
			zap.Error(err),
			zap.ByteString("reply", raw))
		return nil, raw, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if len(fixes) > 0 {
		e.logger.Debug("Repaired model reply", zap.Strings("fixes", fixes))
	}

	if err := ValidateJSONAgainstSchema(BuildReceiptJSONSchema(), repaired); err != nil {
		e.logger.Error("Model reply failed schema validation",
			zap.Error(err),
			zap.ByteString("repaired", repaired))
		return nil, raw, fmt.Errorf("model reply failed validation: %w", err)
	}

	var data models.ExtractedReceiptData
	if err := json.Unmarshal(repaired, &data); err != nil {
		return nil, raw, fmt.Errorf("failed to decode extraction result: %w", err)
	}

	e.logger.Info("LLM extraction finished",
		zap.String("merchant", data.MerchantName),
		zap.String("tx_date", data.TxDate),
		zap.String("total", data.Total),
		zap.Int("item_count", len(data.Items)))

	return &data, raw, nil
}

func buildSystemPrompt() string {
	schema, _ := json.Marshal(BuildReceiptJSONSchema())
	return "You are a receipt parser. You read noisy OCR text from retail receipts " +
		"and return ONLY a JSON object matching this JSON Schema:\n" + string(schema) + "\n" +
		"Rules: use ISO-8601 dates (YYYY-MM-DD); currency_code is a 3-letter ISO 4217 code; " +
		"all money values are strings with exactly two decimals and no currency symbols; " +
		"omit fields that are not visible rather than outputting null; " +
		"extract line items exactly as printed, skipping subtotal/tax/total rows."
}

func buildUserPrompt(ocrText string) string {
	if len(ocrText) > maxPromptTextLen {
		ocrText = ocrText[:maxPromptTextLen] + "\n…(truncated)"
	}
	return "OCR text of the receipt:\n\n" + ocrText
}
