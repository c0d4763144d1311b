package extract

import (
	"context"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
)

// fakeChatCompleter returns a canned reply or error.
type fakeChatCompleter struct {
	reply     string
	err       error
	callCount int
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.callCount++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

const llmReply = `{"merchant_name":"LLM Cafe","tx_date":"2024-03-15","currency_code":"EUR","total":"21.00"}`

func TestExtractor_Extract(t *testing.T) {
	logger := zap.NewNop()

	t.Run("confident heuristic skips the LLM", func(t *testing.T) {
		fake := &fakeChatCompleter{reply: llmReply}
		llm := NewLLMExtractorWithClient(fake, "test-model", logger)
		heuristics := NewHeuristicParser("USD", logger)
		extractor := NewExtractor(heuristics, llm, 0.6, "USD", logger)

		result, err := extractor.Extract(context.Background(), sampleReceipt)
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionMethodHeuristic, result.Method)
		assert.Equal(t, "COFFEE CORNER", result.Data.MerchantName)
		assert.Zero(t, fake.callCount)
		assert.Nil(t, result.RawLLMReply)
	})

	t.Run("low confidence falls back to LLM", func(t *testing.T) {
		fake := &fakeChatCompleter{reply: llmReply}
		llm := NewLLMExtractorWithClient(fake, "test-model", logger)
		heuristics := NewHeuristicParser("USD", logger)
		extractor := NewExtractor(heuristics, llm, 0.6, "USD", logger)

		// No date, no labeled total header: confidence stays low.
		result, err := extractor.Extract(context.Background(), "???\n==\n1.00")
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionMethodLLM, result.Method)
		assert.Equal(t, "LLM Cafe", result.Data.MerchantName)
		assert.Equal(t, 1, fake.callCount)
		assert.JSONEq(t, llmReply, string(result.RawLLMReply))
	})

	t.Run("LLM failure surfaces", func(t *testing.T) {
		fake := &fakeChatCompleter{err: fmt.Errorf("rate limited")}
		llm := NewLLMExtractorWithClient(fake, "test-model", logger)
		extractor := NewExtractor(nil, llm, 0.6, "USD", logger)

		_, err := extractor.Extract(context.Background(), "anything")
		assert.Error(t, err)
	})

	t.Run("no LLM accepts shapeable low-confidence heuristic", func(t *testing.T) {
		heuristics := NewHeuristicParser("USD", logger)
		extractor := NewExtractor(heuristics, nil, 0.99, "USD", logger)

		result, err := extractor.Extract(context.Background(), "CORNER SHOP\n2024-03-15\nTotal 5.00")
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionMethodHeuristic, result.Method)
		assert.Equal(t, "5.00", result.Data.Total)
		assert.Equal(t, "USD", result.Data.CurrencyCode)
	})

	t.Run("no LLM and unshapeable heuristic errors", func(t *testing.T) {
		heuristics := NewHeuristicParser("USD", logger)
		extractor := NewExtractor(heuristics, nil, 0.6, "USD", logger)

		_, err := extractor.Extract(context.Background(), "just some words")
		assert.Error(t, err)
	})

	t.Run("no methods configured errors", func(t *testing.T) {
		extractor := NewExtractor(nil, nil, 0.6, "USD", logger)
		_, err := extractor.Extract(context.Background(), "anything")
		assert.Error(t, err)
	})
}

func TestExtractor_Shape(t *testing.T) {
	extractor := NewExtractor(nil, nil, 0.6, "USD", zap.NewNop())

	t.Run("fills default currency", func(t *testing.T) {
		data := &models.ExtractedReceiptData{
			MerchantName: "Cafe", TxDate: "2024-03-15", Total: "5.00",
		}
		require.NoError(t, extractor.shape(data))
		assert.Equal(t, "USD", data.CurrencyCode)
	})

	t.Run("rejects bad date", func(t *testing.T) {
		data := &models.ExtractedReceiptData{
			MerchantName: "Cafe", TxDate: "15/03/2024", Total: "5.00",
		}
		assert.Error(t, extractor.shape(data))
	})

	t.Run("clears unparseable optional amounts", func(t *testing.T) {
		data := &models.ExtractedReceiptData{
			MerchantName: "Cafe", TxDate: "2024-03-15", Total: "5.00",
			Tax: "abc", Tip: "1.00",
		}
		require.NoError(t, extractor.shape(data))
		assert.Empty(t, data.Tax)
		assert.Equal(t, "1.00", data.Tip)
	})

	t.Run("drops items above the total", func(t *testing.T) {
		data := &models.ExtractedReceiptData{
			MerchantName: "Cafe", TxDate: "2024-03-15", Total: "5.00",
			Items: []models.ExtractedItem{
				{Name: "Coffee", Amount: "4.50"},
				{Name: "Misread", Amount: "450.00"},
			},
		}
		require.NoError(t, extractor.shape(data))
		require.Len(t, data.Items, 1)
		assert.Equal(t, "Coffee", data.Items[0].Name)
	})
}
