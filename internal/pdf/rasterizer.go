package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Rasterizer renders PDF pages to PNG images via mupdf. Image uploads skip
// rendering and are decoded directly.
type Rasterizer struct {
	maxPages int
	dpi      int
	logger   *zap.Logger
}

// NewRasterizer creates a new Rasterizer
func NewRasterizer(maxPages, dpi int, logger *zap.Logger) *Rasterizer {
	return &Rasterizer{
		maxPages: maxPages,
		dpi:      dpi,
		logger:   logger,
	}
}

// RenderPages converts the file at path to one PNG per page, capped at the
// configured page count.
func (r *Rasterizer) RenderPages(path string) ([][]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return r.readImageFile(path, ext)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if pageCount > r.maxPages {
		r.logger.Debug("Capping rendered pages",
			zap.Int("total_pages", pageCount),
			zap.Int("max_pages", r.maxPages))
		pageCount = r.maxPages
	}

	var pages [][]byte
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		img, err := doc.ImageDPI(pageNum, float64(r.dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", pageNum+1, err)
		}

		encoded, err := encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", pageNum+1, err)
		}
		pages = append(pages, encoded)
	}

	r.logger.Debug("Rendered PDF pages",
		zap.String("path", path),
		zap.Int("page_count", len(pages)))

	return pages, nil
}

// readImageFile decodes an image upload and re-encodes it as a single PNG
// page so downstream stages see one format.
func (r *Rasterizer) readImageFile(path, ext string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(file)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(file)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	encoded, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return [][]byte{encoded}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
