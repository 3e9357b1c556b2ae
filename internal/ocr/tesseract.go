// File: internal/ocr/tesseract.go
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap"
)

// TesseractEngine runs OCR in process through libtesseract.
type TesseractEngine struct {
	logger *zap.Logger

	// The gosseract client is not safe for concurrent use.
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine creates a tesseract client tuned for game UI text.
func NewTesseractEngine(cfg config.OCRConfig, logger *zap.Logger) (*TesseractEngine, error) {
	client := gosseract.NewClient()

	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Station and carrier names are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	return &TesseractEngine{
		logger: logger.Named("ocr.tesseract"),
		client: client,
	}, nil
}

// Recognize returns one fragment per detected text line.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return Reading{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return Reading{}, fmt.Errorf("tesseract engine closed: %w", ErrUnavailable)
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return Reading{}, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return Reading{}, fmt.Errorf("OCR failed: %w", err)
	}

	reading := Reading{Fragments: make([]Fragment, 0, len(boxes))}
	for _, b := range boxes {
		text := strings.Join(strings.Fields(b.Word), " ")
		if text == "" {
			continue
		}
		reading.Fragments = append(reading.Fragments, Fragment{
			Text:       text,
			Bounds:     b.Box,
			Confidence: b.Confidence / 100.0,
		})
	}
	e.logger.Debug("Recognized text.", zap.Strings("lines", reading.Texts()))
	return reading, nil
}

// Close releases the native client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
