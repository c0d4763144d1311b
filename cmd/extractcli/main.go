// Command extractcli runs the extraction pipeline once over a local PDF or
// image file and prints the extracted fields as JSON. Useful for tuning the
// heuristics and OCR settings without a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/extract"
	"github.com/tallyfold/receiptd/internal/ocr"
	"github.com/tallyfold/receiptd/internal/pdf"
)

func main() {
	var (
		languages  = flag.String("lang", "eng", "comma-separated OCR languages")
		maxPages   = flag.Int("max-pages", 2, "maximum pages to OCR")
		dpi        = flag.Int("dpi", 300, "render resolution")
		threshold  = flag.Float64("threshold", 0.6, "heuristic confidence threshold")
		currency   = flag.String("currency", "USD", "default currency code")
		model      = flag.String("model", "gpt-4o-mini", "chat model for the LLM fallback")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall run timeout")
		ocrTimeout = flag.Duration("ocr-timeout", 60*time.Second, "per-page OCR timeout")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <receipt.pdf>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	_ = gotenv.Load()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	if err := run(path, *languages, *maxPages, *dpi, *threshold, *currency, *model, *timeout, *ocrTimeout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, languages string, maxPages, dpi int, threshold float64, currency, model string, timeout, ocrTimeout time.Duration, logger *zap.Logger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := pdf.DetectContentType(content, path); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rasterizer := pdf.NewRasterizer(maxPages, dpi, logger)
	pages, err := rasterizer.RenderPages(path)
	if err != nil {
		return fmt.Errorf("failed to rasterize: %w", err)
	}

	engine, err := ocr.NewTesseractEngine(splitLanguages(languages), os.Getenv("TESSDATA_PREFIX"), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	var text string
	for i, page := range pages {
		pageCtx, cancelPage := context.WithTimeout(ctx, ocrTimeout)
		pageText, err := engine.Recognize(pageCtx, page)
		cancelPage()
		if err != nil {
			return fmt.Errorf("OCR page %d: %w", i+1, err)
		}
		text += pageText + "\n"
	}

	normalized := ocr.Normalize(text)
	if normalized == "" {
		return fmt.Errorf("no text recognized")
	}

	heuristics := extract.NewHeuristicParser(currency, logger)
	var llm *extract.LLMExtractor
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		llm = extract.NewLLMExtractor(apiKey, model, 0.1, 2048, timeout, logger)
	}
	extractor := extract.NewExtractor(heuristics, llm, threshold, currency, logger)

	result, err := extractor.Extract(ctx, normalized)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	out := struct {
		Method string      `json:"method"`
		Data   interface{} `json:"data"`
	}{Method: result.Method, Data: result.Data}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func splitLanguages(s string) []string {
	var langs []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}
