package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/extract"
	"github.com/tallyfold/receiptd/internal/models"
	"github.com/tallyfold/receiptd/internal/ocr"
	"github.com/tallyfold/receiptd/internal/pdf"
	"github.com/tallyfold/receiptd/internal/storage"
)

// StageError tags a pipeline failure with the stage that produced it, so
// jobs can record where extraction broke down.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Pipeline runs the extraction sequence for one stored receipt file:
// validate signature → rasterize → OCR → normalize → extract fields.
// Persistence is the caller's job; the pipeline only touches artifacts.
type Pipeline struct {
	rasterizer    *pdf.Rasterizer
	engine        ocr.Engine
	extractor     *extract.Extractor
	files         storage.FileStorage
	folders       *storage.FolderManager
	ocrTimeout    time.Duration
	keepArtifacts bool
	logger        *zap.Logger
}

// Config holds pipeline construction parameters.
type Config struct {
	OCRTimeout    time.Duration
	KeepArtifacts bool
}

// New creates a new Pipeline
func New(
	rasterizer *pdf.Rasterizer,
	engine ocr.Engine,
	extractor *extract.Extractor,
	files storage.FileStorage,
	folders *storage.FolderManager,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		rasterizer:    rasterizer,
		engine:        engine,
		extractor:     extractor,
		files:         files,
		folders:       folders,
		ocrTimeout:    cfg.OCRTimeout,
		keepArtifacts: cfg.KeepArtifacts,
		logger:        logger,
	}
}

// Process runs all stages for the receipt's stored file. Errors are always
// *StageError.
func (p *Pipeline) Process(ctx context.Context, receipt *models.Receipt) (*extract.Result, error) {
	start := time.Now()

	// Stage 1: re-validate the stored file's signature. Catches files that
	// changed on disk since upload.
	content, err := os.ReadFile(receipt.FilePath)
	if err != nil {
		return nil, stageErr(models.StageValidate, fmt.Errorf("failed to read stored file: %w", err))
	}
	if _, err := pdf.DetectContentType(content, receipt.FilePath); err != nil {
		return nil, stageErr(models.StageValidate, err)
	}

	// Stage 2: rasterize.
	pages, err := p.rasterizer.RenderPages(receipt.FilePath)
	if err != nil {
		return nil, stageErr(models.StageRasterize, err)
	}
	if p.keepArtifacts {
		for i, page := range pages {
			path := p.folders.PagePath(receipt.PublicID, i+1)
			if err := p.files.SaveFile(path, page); err != nil {
				p.logger.Warn("Failed to save page artifact", zap.String("path", path), zap.Error(err))
			}
		}
	}

	// Stage 3: OCR each page under its own deadline.
	var sb strings.Builder
	for i, page := range pages {
		ocrCtx, cancel := context.WithTimeout(ctx, p.ocrTimeout)
		text, err := p.engine.Recognize(ocrCtx, page)
		cancel()
		if err != nil {
			return nil, stageErr(models.StageOCR, fmt.Errorf("page %d: %w", i+1, err))
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	rawText := sb.String()

	// Stage 4: normalize. Empty output after normalization means OCR found
	// nothing usable, which is an OCR failure rather than an empty receipt.
	normalized := ocr.Normalize(rawText)
	if normalized == "" {
		return nil, stageErr(models.StageOCR, fmt.Errorf("no text recognized"))
	}
	if p.keepArtifacts {
		path := p.folders.ArtifactPath(receipt.PublicID, storage.OCRTextFile)
		if err := p.files.SaveFile(path, []byte(normalized)); err != nil {
			p.logger.Warn("Failed to save OCR artifact", zap.String("path", path), zap.Error(err))
		}
	}

	// Stage 5: field extraction.
	result, err := p.extractor.Extract(ctx, normalized)
	if err != nil {
		return nil, stageErr(models.StageExtract, err)
	}
	if p.keepArtifacts && len(result.RawLLMReply) > 0 {
		path := p.folders.ArtifactPath(receipt.PublicID, storage.LLMReplyFile)
		if err := p.files.SaveFile(path, result.RawLLMReply); err != nil {
			p.logger.Warn("Failed to save LLM artifact", zap.String("path", path), zap.Error(err))
		}
	}

	p.logger.Info("Pipeline finished",
		zap.String("receipt_id", receipt.PublicID),
		zap.String("method", result.Method),
		zap.Int("pages", len(pages)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}
