// File: internal/listscan/listscan.go

// Package listscan searches scrollable in-game lists one entry at a time.
//
// The game gives no signal for "end of list". The only thing we can observe
// is whether a highlighted row is visible, so the end is inferred from a run
// of consecutive captures with no selection after content has been seen.
package listscan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
	"go.uber.org/zap"
)

// Reader reads the text of the selected row in a captured list image.
// vision.Locator is the production implementation.
type Reader interface {
	ReadSelectedText(ctx context.Context, img image.Image, minSize screen.Size) (ocr.Reading, bool, error)
}

// Predicate decides whether a selected row is the one being looked for.
type Predicate func(reading ocr.Reading) bool

// Exact matches a row whose normalized text equals text.
func Exact(text string) Predicate {
	want := textmatch.Compact(text)
	return func(r ocr.Reading) bool {
		return textmatch.Compact(r.Joined()) == want
	}
}

// Fuzzy matches a row containing a fragment similar to target.
func Fuzzy(target string, threshold float64) Predicate {
	return func(r ocr.Reading) bool {
		_, ok := textmatch.BestMatch(r.Texts(), target, threshold)
		return ok
	}
}

// Func matches rows by their joined text.
func Func(fn func(line string) bool) Predicate {
	return func(r ocr.Reading) bool {
		return fn(r.Joined())
	}
}

// Action tells Walk what to do after visiting a row.
type Action int

const (
	// Continue moves on to the next row.
	Continue Action = iota
	// Stop ends the walk with the list positioned on the current row.
	Stop
)

// Visitor is called for every selected row that has text.
type Visitor func(ctx context.Context, reading ocr.Reading) (Action, error)

// Result reports where a walk ended.
type Result struct {
	Found bool
	// Index is the number of rows stepped over from the top.
	Index   int
	Reading ocr.Reading
}

// Scanner drives list searches. It holds no state between calls.
type Scanner struct {
	capturer screen.Capturer
	reader   Reader
	input    input.Sender
	cfg      config.ScannerConfig
	logger   *zap.Logger
}

// New creates a Scanner.
func New(capturer screen.Capturer, reader Reader, sender input.Sender, cfg config.ScannerConfig, logger *zap.Logger) *Scanner {
	return &Scanner{
		capturer: capturer,
		reader:   reader,
		input:    sender,
		cfg:      cfg,
		logger:   logger.Named("listscan"),
	}
}

// fatal reports errors that no amount of re-reading will fix.
func fatal(err error) bool {
	return errors.Is(err, ocr.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Read captures the target region and reads its selected row.
func (s *Scanner) Read(ctx context.Context, t screen.Target) (ocr.Reading, bool, error) {
	img, err := s.capturer.Capture(ctx, t.Region)
	if err != nil {
		return ocr.Reading{}, false, fmt.Errorf("capture %s: %w", t.Name, err)
	}
	return s.reader.ReadSelectedText(ctx, img, t.MinSize)
}

// SeekTop holds "up" until the selected row stops changing or the seek
// budget runs out. Running out of time is logged, not returned.
func (s *Scanner) SeekTop(ctx context.Context, t screen.Target) error {
	if err := s.input.Send(ctx, input.UIUp, input.PressDown()); err != nil {
		return fmt.Errorf("failed to start scrolling: %w", err)
	}
	defer func() {
		if err := s.input.Send(context.WithoutCancel(ctx), input.UIUp, input.Release()); err != nil {
			s.logger.Warn("Failed to release scroll key.", zap.Error(err))
		}
	}()

	deadline := time.Now().Add(s.cfg.SeekTimeout)
	last, haveLast := "", false
	for time.Now().Before(deadline) {
		if err := input.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
		reading, _, err := s.Read(ctx, t)
		if err != nil {
			if fatal(err) {
				return err
			}
			s.logger.Debug("Read failed while seeking top.", zap.Error(err))
			continue
		}
		current := reading.Joined()
		if haveLast && current == last {
			return nil
		}
		last, haveLast = current, true
	}
	s.logger.Info("List did not settle before the seek budget ran out.", zap.String("list", t.Name))
	return nil
}

// Walk visits every selected row from the current position downwards until
// visit returns Stop, the end of the list is detected, or the iteration cap
// is reached. Callers normally call SeekTop first.
func (s *Scanner) Walk(ctx context.Context, t screen.Target, visit Visitor) (Result, error) {
	seen := false
	misses := 0
	index := 0

	for i := 0; i < s.cfg.MaxIterations; i++ {
		reading, ok, err := s.Read(ctx, t)
		if err != nil {
			if fatal(err) {
				return Result{Index: index}, err
			}
			s.logger.Debug("Read failed, treating as no selection.", zap.Error(err))
			ok = false
		}

		if !ok {
			if seen {
				misses++
				if misses >= s.cfg.EndOfListMisses {
					s.logger.Debug("End of list.", zap.String("list", t.Name), zap.Int("index", index))
					return Result{Index: index}, nil
				}
			}
		} else {
			seen = true
			misses = 0
			if !reading.Empty() {
				action, err := visit(ctx, reading)
				if err != nil {
					return Result{Index: index, Reading: reading}, err
				}
				if action == Stop {
					return Result{Found: true, Index: index, Reading: reading}, nil
				}
			}
		}

		if err := s.step(ctx); err != nil {
			return Result{Index: index}, err
		}
		index++
	}
	s.logger.Info("Iteration cap reached.", zap.String("list", t.Name), zap.Int("cap", s.cfg.MaxIterations))
	return Result{Index: index}, nil
}

func (s *Scanner) step(ctx context.Context) error {
	if err := s.input.Send(ctx, input.UIDown); err != nil {
		return fmt.Errorf("failed to advance list: %w", err)
	}
	return input.Sleep(ctx, s.cfg.StepDelay)
}

// Find seeks to the top of the list and walks it until match accepts a
// row. On success the list is left positioned on that row.
func (s *Scanner) Find(ctx context.Context, t screen.Target, match Predicate) (Result, error) {
	if err := s.SeekTop(ctx, t); err != nil {
		return Result{}, err
	}
	res, err := s.Walk(ctx, t, func(_ context.Context, r ocr.Reading) (Action, error) {
		if match(r) {
			return Stop, nil
		}
		return Continue, nil
	})
	if err != nil {
		return res, err
	}
	if res.Found {
		s.logger.Debug("Found list entry.",
			zap.String("list", t.Name),
			zap.Int("index", res.Index),
			zap.String("text", strings.TrimSpace(res.Reading.Joined())))
	}
	return res, nil
}
