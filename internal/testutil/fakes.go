// File: internal/testutil/fakes.go

// Package testutil holds deterministic stand-ins for the screen, OCR and
// keyboard so UI procedures can be exercised without a running game.
package testutil

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
)

// -- Screen --

// BlankCapturer returns a small blank image for every capture and records
// which regions were asked for.
type BlankCapturer struct {
	mu      sync.Mutex
	Window  image.Rectangle
	Regions []screen.Region
}

// NewBlankCapturer creates a capturer reporting a 1920x1080 window.
func NewBlankCapturer() *BlankCapturer {
	return &BlankCapturer{Window: image.Rect(0, 0, 1920, 1080)}
}

func (c *BlankCapturer) Capture(ctx context.Context, r screen.Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Regions = append(c.Regions, r)
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (c *BlankCapturer) Bounds() (image.Rectangle, error) {
	return c.Window, nil
}

// -- Keyboard --

// KeyLog records every command it is sent.
type KeyLog struct {
	mu       sync.Mutex
	Commands []string
}

func (k *KeyLog) record(cmd input.Command, p input.Press) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case p.IsPressDown():
		k.Commands = append(k.Commands, string(cmd)+":down")
	case p.IsRelease():
		k.Commands = append(k.Commands, string(cmd)+":up")
	case p.Hold > 0:
		k.Commands = append(k.Commands, string(cmd)+":hold")
	default:
		for i := 0; i < p.Repeat; i++ {
			k.Commands = append(k.Commands, string(cmd))
		}
	}
}

// Send implements input.Sender.
func (k *KeyLog) Send(ctx context.Context, cmd input.Command, opts ...input.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.record(cmd, input.Resolve(opts...))
	return nil
}

// Sent returns a copy of the recorded commands.
func (k *KeyLog) Sent() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.Commands...)
}

// Count returns how many times cmd was tapped.
func (k *KeyLog) Count(cmd input.Command) int {
	n := 0
	for _, c := range k.Sent() {
		if c == string(cmd) {
			n++
		}
	}
	return n
}

// -- Lists --

// List simulates a keyboard navigable game list. Rows past the end show no
// selection, which is how the real UI looks once focus leaves the list.
// It implements both input.Sender and listscan.Reader.
type List struct {
	KeyLog

	mu      sync.Mutex
	Items   []string
	Cursor  int
	holding bool
	reads   int
	// Drop lists read numbers (starting at 1) that show no selection, to
	// simulate a dropped frame.
	Drop map[int]bool
	// OnSelect is called with the cursor when UI_Select is pressed.
	OnSelect func(cursor int)
}

// NewList creates a list positioned at cursor.
func NewList(cursor int, items ...string) *List {
	return &List{Items: items, Cursor: cursor, Drop: map[int]bool{}}
}

// Send implements input.Sender.
func (l *List) Send(ctx context.Context, cmd input.Command, opts ...input.Option) error {
	if err := l.KeyLog.Send(ctx, cmd, opts...); err != nil {
		return err
	}
	p := input.Resolve(opts...)

	l.mu.Lock()
	var onSelect func(int)
	cursor := l.Cursor
	switch {
	case cmd == input.UIUp && p.IsPressDown():
		l.holding = true
	case cmd == input.UIUp && p.IsRelease():
		l.holding = false
	case cmd == input.UIDown:
		l.Cursor += p.Repeat
	case cmd == input.UIUp:
		l.Cursor -= p.Repeat
		if l.Cursor < 0 {
			l.Cursor = 0
		}
	case cmd == input.UISelect:
		onSelect = l.OnSelect
	}
	l.mu.Unlock()

	if onSelect != nil {
		onSelect(cursor)
	}
	return nil
}

// ReadSelectedText implements listscan.Reader. While the scroll key is held
// every read moves the cursor one row up.
func (l *List) ReadSelectedText(ctx context.Context, _ image.Image, _ screen.Size) (ocr.Reading, bool, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Reading{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reads++
	if l.holding && l.Cursor > 0 {
		l.Cursor--
	}
	if l.Drop[l.reads] {
		return ocr.Reading{}, false, nil
	}
	if l.Cursor < 0 || l.Cursor >= len(l.Items) {
		return ocr.Reading{}, false, nil
	}
	return ocr.NewReading(l.Items[l.Cursor]), true, nil
}

// Position returns the current cursor.
func (l *List) Position() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Cursor
}

// Remove deletes the row at i, as the game does when a mission is accepted
// or turned in.
func (l *List) Remove(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= 0 && i < len(l.Items) {
		l.Items = append(l.Items[:i:i], l.Items[i+1:]...)
	}
}

// -- Numeric field --

// Stepper simulates a quantity field driven by left and right. Reads return
// the value exactly as written, clamped to [0, Max].
type Stepper struct {
	KeyLog

	mu      sync.Mutex
	Value   int
	Max     int
	holding bool
	// Lag is subtracted from read number LagOnRead (starting at 1) to
	// simulate a field that has not caught up yet. Zero disables it.
	Lag       int
	LagOnRead int
	reads     int
}

// NewStepper creates a field holding value with the given maximum.
func NewStepper(value, max int) *Stepper {
	return &Stepper{Value: value, Max: max}
}

func (s *Stepper) clamp() {
	if s.Value < 0 {
		s.Value = 0
	}
	if s.Value > s.Max {
		s.Value = s.Max
	}
}

// Send implements input.Sender.
func (s *Stepper) Send(ctx context.Context, cmd input.Command, opts ...input.Option) error {
	if err := s.KeyLog.Send(ctx, cmd, opts...); err != nil {
		return err
	}
	p := input.Resolve(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case cmd == input.UILeft && p.IsPressDown():
		s.holding = true
	case cmd == input.UILeft && p.IsRelease():
		s.holding = false
	case cmd == input.UIRight && p.Hold > 0:
		s.Value = s.Max
	case cmd == input.UILeft && p.Hold > 0:
		s.Value = 0
	case cmd == input.UIRight:
		s.Value += p.Repeat
	case cmd == input.UILeft:
		s.Value -= p.Repeat
	}
	s.clamp()
	return nil
}

// ReadField returns the current value as text. Holding left drains the
// field by ten units per read.
func (s *Stepper) ReadField(ctx context.Context, _ screen.Region) (ocr.Reading, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.holding {
		s.Value -= 10
		s.clamp()
	}
	v := s.Value
	if s.reads == s.LagOnRead {
		v -= s.Lag
	}
	return ocr.NewReading(fmt.Sprintf("%d/%d", v, s.Max)), nil
}

// Current returns the field value.
func (s *Stepper) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Value
}
