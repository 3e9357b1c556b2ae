// File: internal/ocr/ocr.go

// Package ocr turns captured pixels into text fragments. Two engines are
// provided: an in-process tesseract engine and a client for a remote OCR
// server. Both report an unreachable backend with ErrUnavailable so callers
// can tell "the engine is down" apart from "there is no text".
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrUnavailable reports that the OCR backend could not be reached.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Fragment is one recognized piece of text.
type Fragment struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64
}

// Reading is a single snapshot of recognized text, in reading order.
type Reading struct {
	Fragments []Fragment
}

// Texts returns the text of every non-blank fragment.
func (r Reading) Texts() []string {
	out := make([]string, 0, len(r.Fragments))
	for _, f := range r.Fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Joined returns all fragment texts joined by single spaces.
func (r Reading) Joined() string {
	return strings.Join(r.Texts(), " ")
}

// Empty reports whether the reading holds no text at all.
func (r Reading) Empty() bool {
	return len(r.Texts()) == 0
}

// NewReading builds a Reading from plain strings. Handy for fakes.
func NewReading(texts ...string) Reading {
	r := Reading{Fragments: make([]Fragment, 0, len(texts))}
	for _, t := range texts {
		r.Fragments = append(r.Fragments, Fragment{Text: t, Confidence: 1})
	}
	return r
}

// Engine recognizes text in an image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Reading, error)
}

// Closer is implemented by engines holding native resources.
type Closer interface {
	Engine
	Close() error
}

// New builds the engine selected by cfg.Engine.
func New(cfg config.OCRConfig, logger *zap.Logger) (Closer, error) {
	switch cfg.Engine {
	case "tesseract":
		return NewTesseractEngine(cfg, logger)
	case "remote":
		return NewRemoteEngine(cfg, logger, nil)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}

// encodePNG converts img to PNG bytes through OpenCV.
func encodePNG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}
