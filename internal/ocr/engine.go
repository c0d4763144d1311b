package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// Engine recognizes text in a single page image.
type Engine interface {
	Recognize(ctx context.Context, imagePNG []byte) (string, error)
	Close() error
}

// TesseractEngine wraps a gosseract client. The underlying client is not
// safe for concurrent use, so a mutex keeps at most one recognition in
// flight process-wide. When the context deadline expires the caller gets
// an error immediately; the running recognition finishes in the background
// and releases the lock, so the engine is never torn down mid-call.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
	logger *zap.Logger
}

// NewTesseractEngine creates the engine with optional language hints and
// tessdata directory.
func NewTesseractEngine(languages []string, tessdataDir string, logger *zap.Logger) (*TesseractEngine, error) {
	client := gosseract.NewClient()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR languages: %w", err)
		}
	}
	if tessdataDir != "" {
		if err := client.SetTessdataPrefix(tessdataDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata dir: %w", err)
		}
	}

	logger.Info("Tesseract engine initialized",
		zap.Strings("languages", languages))

	return &TesseractEngine{
		client: client,
		logger: logger,
	}, nil
}

// Recognize runs Tesseract on a PNG-encoded page.
func (e *TesseractEngine) Recognize(ctx context.Context, imagePNG []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		text string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if err := e.client.SetImageFromBytes(imagePNG); err != nil {
			done <- result{err: fmt.Errorf("failed to set image: %w", err)}
			return
		}
		text, err := e.client.Text()
		if err != nil {
			done <- result{err: fmt.Errorf("recognition failed: %w", err)}
			return
		}
		done <- result{text: text}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("OCR cancelled before completion", zap.Error(ctx.Err()))
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.text) == "" {
			return "", fmt.Errorf("no text recognized")
		}
		return res.text, nil
	}
}

// Close releases Tesseract resources.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
