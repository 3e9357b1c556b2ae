// File: internal/desktop/desktop.go

// Package desktop adapts robotgo to the screen.Capturer and input.Driver
// interfaces. It is the only package that touches the real desktop.
package desktop

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/go-vgo/robotgo"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"go.uber.org/zap"
)

// WindowCapturer captures regions of the game window.
type WindowCapturer struct {
	process string
	title   string
	logger  *zap.Logger

	mu  sync.Mutex
	pid int
}

// NewWindowCapturer creates a capturer for the window described by cfg. The
// window is looked up lazily and re-resolved whenever it disappears.
func NewWindowCapturer(cfg config.ScreenConfig, logger *zap.Logger) *WindowCapturer {
	return &WindowCapturer{
		process: cfg.ProcessName,
		title:   cfg.WindowTitle,
		logger:  logger.Named("desktop"),
	}
}

// Bounds returns the game window in screen coordinates. When the game
// window cannot be found the whole primary screen is used.
func (c *WindowCapturer) Bounds() (image.Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pid == 0 {
		c.pid = c.findWindow()
	}
	if c.pid != 0 {
		x, y, w, h := robotgo.GetBounds(c.pid)
		if w > 0 && h > 0 {
			return image.Rect(x, y, x+w, y+h), nil
		}
		c.logger.Debug("Game window went away, resolving again.", zap.Int("pid", c.pid))
		c.pid = 0
	}

	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("could not determine screen size")
	}
	return image.Rect(0, 0, w, h), nil
}

func (c *WindowCapturer) findWindow() int {
	if c.process == "" {
		return 0
	}
	ids, err := robotgo.FindIds(c.process)
	if err != nil {
		c.logger.Debug("Process lookup failed.", zap.String("process", c.process), zap.Error(err))
		return 0
	}
	for _, pid := range ids {
		if c.title == "" || robotgo.GetTitle(pid) == c.title {
			return pid
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return 0
}

// Capture grabs the pixels inside r.
func (c *WindowCapturer) Capture(ctx context.Context, r screen.Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds, err := c.Bounds()
	if err != nil {
		return nil, err
	}
	abs := r.Abs(bounds)
	if abs.Empty() {
		return nil, fmt.Errorf("region %+v resolves to an empty rectangle", r)
	}

	bitmap := robotgo.CaptureScreen(abs.Min.X, abs.Min.Y, abs.Dx(), abs.Dy())
	if bitmap == nil {
		return nil, fmt.Errorf("screen capture returned no bitmap")
	}
	defer robotgo.FreeBitmap(bitmap)

	img := robotgo.ToImage(bitmap)
	if img == nil {
		return nil, fmt.Errorf("could not convert captured bitmap")
	}
	return img, nil
}

// KeyDriver injects key events with robotgo.
type KeyDriver struct{}

// KeyDown presses key.
func (KeyDriver) KeyDown(key string) error {
	return robotgo.KeyToggle(key, "down")
}

// KeyUp releases key.
func (KeyDriver) KeyUp(key string) error {
	return robotgo.KeyToggle(key, "up")
}
