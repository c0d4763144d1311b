package notification

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/models"
)

// LarkConfig holds Lark notifier configuration.
type LarkConfig struct {
	AppID         string
	AppSecret     string
	ChatID        string
	NotifySuccess bool
}

// LarkNotifier posts extraction outcomes to a Lark group chat. Failures are
// always announced; successful extractions only when NotifySuccess is set.
type LarkNotifier struct {
	client        *lark.Client
	chatID        string
	notifySuccess bool
	logger        *zap.Logger
}

// NewLarkNotifier creates a notifier, or nil when no app credentials are
// configured so callers can skip the nil check at wire-up.
func NewLarkNotifier(cfg LarkConfig, logger *zap.Logger) *LarkNotifier {
	if cfg.AppID == "" {
		return nil
	}

	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)

	return &LarkNotifier{
		client:        client,
		chatID:        cfg.ChatID,
		notifySuccess: cfg.NotifySuccess,
		logger:        logger,
	}
}

// ExtractionFailed announces a terminally failed receipt.
func (n *LarkNotifier) ExtractionFailed(ctx context.Context, receipt *models.Receipt, reason string) error {
	text := fmt.Sprintf("Receipt extraction failed\nReceipt: %s\nFile: %s\nReason: %s",
		receipt.PublicID, receipt.OriginalFilename, reason)
	return n.sendText(ctx, text)
}

// ExtractionCompleted announces a successfully extracted receipt.
func (n *LarkNotifier) ExtractionCompleted(ctx context.Context, receipt *models.Receipt) error {
	if !n.notifySuccess {
		return nil
	}
	text := fmt.Sprintf("Receipt extracted\nReceipt: %s\nMerchant: %s\nTotal: %s %s",
		receipt.PublicID, receipt.MerchantName, receipt.Total, receipt.CurrencyCode)
	return n.sendText(ctx, text)
}

func (n *LarkNotifier) sendText(ctx context.Context, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("chat_id", n.chatID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("chat_id", n.chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("chat_id", n.chatID))

	return nil
}
