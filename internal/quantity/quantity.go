// File: internal/quantity/quantity.go

// Package quantity drives a numeric stepper field in the game UI to an
// exact value using only left/right presses and OCR read-back.
package quantity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/vision"
	"go.uber.org/zap"
)

// ErrQuantityMismatch is returned when the field could not be brought to
// the requested value within the correction budget.
var ErrQuantityMismatch = errors.New("quantity mismatch")

// binarizeThreshold separates the bright digits from the panel background.
const binarizeThreshold = 128

// Side says whether the field belongs to a buy or a sell panel.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// FieldReader reads the raw text of the quantity field.
type FieldReader interface {
	ReadField(ctx context.Context, r screen.Region) (ocr.Reading, error)
}

// OCRFieldReader captures the field, binarizes it and runs OCR.
type OCRFieldReader struct {
	capturer screen.Capturer
	engine   ocr.Engine
}

// NewOCRFieldReader creates the production FieldReader.
func NewOCRFieldReader(capturer screen.Capturer, engine ocr.Engine) *OCRFieldReader {
	return &OCRFieldReader{capturer: capturer, engine: engine}
}

// ReadField implements FieldReader.
func (r *OCRFieldReader) ReadField(ctx context.Context, region screen.Region) (ocr.Reading, error) {
	img, err := r.capturer.Capture(ctx, region)
	if err != nil {
		return ocr.Reading{}, fmt.Errorf("capture quantity field: %w", err)
	}
	bin, err := vision.Binarize(img, binarizeThreshold)
	if err != nil {
		return ocr.Reading{}, err
	}
	return r.engine.Recognize(ctx, bin)
}

var digitRun = regexp.MustCompile(`\d+`)

// ParseQuantity reads a stepper display such as "1,250" or "250/784".
// Thousands separators are dropped and only the part before a slash is
// used; when that is not a clean number the first run of digits wins.
func ParseQuantity(text string) (int, bool) {
	s := strings.ReplaceAll(text, ",", "")
	if s == "" {
		return 0, false
	}
	head := strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
	if n, err := strconv.Atoi(head); err == nil && n >= 0 {
		return n, true
	}
	m := digitRun.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Controller sets quantity fields.
type Controller struct {
	reader FieldReader
	input  input.Sender
	cfg    config.QuantityConfig
	logger *zap.Logger
}

// New creates a Controller.
func New(reader FieldReader, sender input.Sender, cfg config.QuantityConfig, logger *zap.Logger) *Controller {
	return &Controller{
		reader: reader,
		input:  sender,
		cfg:    cfg,
		logger: logger.Named("quantity"),
	}
}

func (c *Controller) read(ctx context.Context, field screen.Region) (int, bool, error) {
	reading, err := c.reader.ReadField(ctx, field)
	if err != nil {
		return 0, false, err
	}
	n, ok := ParseQuantity(strings.Join(reading.Texts(), ""))
	return n, ok, nil
}

// SetQuantity drives the field at region field to target and returns the
// value it settled at. Without useMaximum that is always target. With
// useMaximum it holds "increase" and lets the game clamp to what the market
// and the hold allow; a clamp above target is corrected down, one below is
// returned as is. A field that does not converge yields ErrQuantityMismatch,
// which callers treat as a failed purchase rather than a crash.
func (c *Controller) SetQuantity(ctx context.Context, field screen.Region, target int, side Side, useMaximum bool) (int, error) {
	log := c.logger.With(zap.Stringer("side", side), zap.Int("target", target))
	if target < 0 {
		return 0, fmt.Errorf("quantity target must be non-negative, got %d", target)
	}

	if useMaximum {
		log.Debug("Setting quantity to maximum.")
		if err := c.input.Send(ctx, input.UIRight, input.Hold(c.cfg.MaximumHold)); err != nil {
			return 0, err
		}
	} else {
		if err := c.reset(ctx, field); err != nil {
			return 0, err
		}
		if target > 0 {
			if err := c.input.Send(ctx, input.UIRight, input.Repeat(target)); err != nil {
				return 0, err
			}
		}
	}
	if err := input.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return 0, err
	}

	current, ok, err := c.read(ctx, field)
	if err != nil {
		return 0, err
	}
	if useMaximum && ok && current < target {
		log.Info("Maximum is below the target.", zap.Int("read", current))
		return current, nil
	}
	for i := 0; i < c.cfg.MaxCorrections && !(ok && current == target); i++ {
		if ok {
			diff := target - current
			cmd := input.UIRight
			if diff < 0 {
				cmd = input.UILeft
				diff = -diff
			}
			log.Debug("Correcting quantity.", zap.Int("read", current), zap.Int("presses", diff), zap.String("direction", string(cmd)))
			if err := c.input.Send(ctx, cmd, input.Repeat(diff)); err != nil {
				return 0, err
			}
		}
		if err := input.Sleep(ctx, c.cfg.SettleDelay); err != nil {
			return 0, err
		}
		if current, ok, err = c.read(ctx, field); err != nil {
			return 0, err
		}
	}

	if !ok || current != target {
		log.Warn("Quantity did not converge.", zap.Int("read", current), zap.Bool("readable", ok))
		return 0, fmt.Errorf("%w: wanted %d, read %d", ErrQuantityMismatch, target, current)
	}
	return current, nil
}

// reset holds "decrease" until the field reads zero. A timeout is logged and
// the caller carries on; the correction loop absorbs any remainder.
func (c *Controller) reset(ctx context.Context, field screen.Region) error {
	if err := c.input.Send(ctx, input.UILeft, input.PressDown()); err != nil {
		return err
	}
	defer func() {
		if err := c.input.Send(context.WithoutCancel(ctx), input.UILeft, input.Release()); err != nil {
			c.logger.Warn("Failed to release decrease key.", zap.Error(err))
		}
	}()

	deadline := time.Now().Add(c.cfg.ResetTimeout)
	for time.Now().Before(deadline) {
		n, ok, err := c.read(ctx, field)
		if err != nil {
			if errors.Is(err, ocr.ErrUnavailable) || ctx.Err() != nil {
				return err
			}
			c.logger.Debug("Quantity read failed during reset.", zap.Error(err))
		} else if ok && n == 0 {
			return nil
		}
		if err := input.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
	c.logger.Warn("Timed out waiting for quantity to reset to 0.")
	return nil
}
