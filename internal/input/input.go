// File: internal/input/input.go

// Package input sends UI navigation commands to the game as synthesized key
// presses. Commands are logical (UI_Up, UI_Select, ...) and are mapped to
// physical keys through configurable bindings.
package input

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Command is a logical UI navigation command.
type Command string

const (
	UIUp     Command = "UI_Up"
	UIDown   Command = "UI_Down"
	UILeft   Command = "UI_Left"
	UIRight  Command = "UI_Right"
	UISelect Command = "UI_Select"
	UIBack   Command = "UI_Back"
)

// Commands lists every command that needs a binding.
var Commands = []Command{UIUp, UIDown, UILeft, UIRight, UISelect, UIBack}

type keyState int

const (
	stateTap keyState = iota
	stateDown
	stateUp
)

// Press describes how a command is delivered.
type Press struct {
	Repeat int
	Hold   time.Duration
	state  keyState
}

// IsPressDown reports whether the press only pushes the key down.
func (p Press) IsPressDown() bool { return p.state == stateDown }

// IsRelease reports whether the press only releases the key.
func (p Press) IsRelease() bool { return p.state == stateUp }

// Option modifies a Press.
type Option func(*Press)

// Repeat taps the key n times.
func Repeat(n int) Option {
	return func(p *Press) { p.Repeat = n }
}

// Hold keeps the key down for d before releasing it.
func Hold(d time.Duration) Option {
	return func(p *Press) { p.Hold = d }
}

// PressDown pushes the key down and leaves it down.
func PressDown() Option {
	return func(p *Press) { p.state = stateDown }
}

// Release lets go of a key pushed with PressDown.
func Release() Option {
	return func(p *Press) { p.state = stateUp }
}

// Resolve applies opts to a single-tap default.
func Resolve(opts ...Option) Press {
	p := Press{Repeat: 1}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Repeat < 0 {
		p.Repeat = 0
	}
	return p
}

// Sender delivers commands to the game.
type Sender interface {
	Send(ctx context.Context, cmd Command, opts ...Option) error
}

// Driver injects raw key events.
type Driver interface {
	KeyDown(key string) error
	KeyUp(key string) error
}

// Keyboard is the production Sender. Taps are paced by a token bucket so
// long repeat runs do not outpace the game's input polling.
type Keyboard struct {
	driver   Driver
	bindings map[Command]string
	limiter  *rate.Limiter
	tapHold  time.Duration
	logger   *zap.Logger
}

// NewKeyboard validates the bindings in cfg and builds a Keyboard.
func NewKeyboard(cfg config.InputConfig, driver Driver, logger *zap.Logger) (*Keyboard, error) {
	if driver == nil {
		return nil, fmt.Errorf("input driver cannot be nil")
	}
	bindings := make(map[Command]string, len(Commands))
	for _, cmd := range Commands {
		key, ok := cfg.Bindings[strings.ToLower(string(cmd))]
		if !ok || key == "" {
			return nil, fmt.Errorf("no key binding for %s", cmd)
		}
		bindings[cmd] = key
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Keyboard{
		driver:   driver,
		bindings: bindings,
		limiter:  rate.NewLimiter(rate.Limit(cfg.KeysPerSecond), burst),
		tapHold:  cfg.TapHold,
		logger:   logger.Named("input"),
	}, nil
}

// Send delivers cmd. A held key is always released, even when ctx is
// cancelled during the hold.
func (k *Keyboard) Send(ctx context.Context, cmd Command, opts ...Option) error {
	key, ok := k.bindings[cmd]
	if !ok {
		return fmt.Errorf("unknown command %s", cmd)
	}
	p := Resolve(opts...)

	switch {
	case p.IsPressDown():
		if err := k.limiter.Wait(ctx); err != nil {
			return err
		}
		return k.driver.KeyDown(key)
	case p.IsRelease():
		return k.driver.KeyUp(key)
	case p.Hold > 0:
		if err := k.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := k.driver.KeyDown(key); err != nil {
			return fmt.Errorf("key down %s: %w", key, err)
		}
		sleepErr := Sleep(ctx, p.Hold)
		if err := k.driver.KeyUp(key); err != nil {
			return fmt.Errorf("key up %s: %w", key, err)
		}
		return sleepErr
	}

	for i := 0; i < p.Repeat; i++ {
		if err := k.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := k.tap(ctx, key); err != nil {
			return err
		}
	}
	k.logger.Debug("Sent command.", zap.String("command", string(cmd)), zap.Int("repeat", p.Repeat))
	return nil
}

func (k *Keyboard) tap(ctx context.Context, key string) error {
	if err := k.driver.KeyDown(key); err != nil {
		return fmt.Errorf("key down %s: %w", key, err)
	}
	sleepErr := Sleep(ctx, k.tapHold)
	if err := k.driver.KeyUp(key); err != nil {
		return fmt.Errorf("key up %s: %w", key, err)
	}
	return sleepErr
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
