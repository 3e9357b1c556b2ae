// File: internal/journal/journal.go

// Package journal follows the game's telemetry journal. It keeps a running
// picture of where the ship is and lets callers wait for specific events,
// such as the MissionAccepted event that carries a mission's identifier.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
)

// rescanInterval is how often the directory is checked for a newer journal.
const rescanInterval = 5 * time.Second

// Ship statuses.
const (
	StatusUnknown     = "unknown"
	StatusDocked      = "docked"
	StatusUndocked    = "undocked"
	StatusSupercruise = "in_supercruise"
	StatusInSpace     = "in_space"
)

// ErrEventTimeout is returned when an awaited event does not arrive in time.
var ErrEventTimeout = errors.New("timed out waiting for journal event")

// Event is one decoded journal line. Only the fields the automation uses
// are decoded.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Name        string    `json:"event"`
	StarSystem  string    `json:"StarSystem,omitempty"`
	StationName string    `json:"StationName,omitempty"`
	Docked      bool      `json:"Docked,omitempty"`
	MissionID   int64     `json:"MissionID,omitempty"`
	Commodity   string    `json:"Commodity,omitempty"`
	Count       int       `json:"Count,omitempty"`
}

// ShipState is the current docking status and location.
type ShipState struct {
	Status  string `json:"status"`
	Station string `json:"station"`
	System  string `json:"system"`
}

// DockedAt reports whether the ship is docked at station, tolerating case
// and OCR-style spelling differences.
func (s ShipState) DockedAt(station string) bool {
	if s.Status != StatusDocked || station == "" {
		return false
	}
	return textmatch.Compact(s.Station) == textmatch.Compact(station)
}

// apply folds e into s.
func (s ShipState) apply(e Event) ShipState {
	switch e.Name {
	case "Location":
		s.System = e.StarSystem
		if e.Docked {
			s.Status = StatusDocked
			s.Station = e.StationName
		} else {
			s.Status = StatusInSpace
			s.Station = ""
		}
	case "Docked":
		s.Status = StatusDocked
		s.Station = e.StationName
		if e.StarSystem != "" {
			s.System = e.StarSystem
		}
	case "Undocked":
		s.Status = StatusUndocked
	case "SupercruiseEntry", "FSDJump":
		s.Status = StatusSupercruise
		s.Station = ""
		if e.StarSystem != "" {
			s.System = e.StarSystem
		}
	case "SupercruiseExit":
		s.Status = StatusInSpace
		if e.StarSystem != "" {
			s.System = e.StarSystem
		}
	}
	return s
}

// Expectation is a pending wait for the next event with a given name.
type Expectation struct {
	name   string
	ch     chan Event
	cancel func()
}

// Wait blocks until the event arrives, timeout elapses, or ctx is done.
// The expectation is released either way.
func (x *Expectation) Wait(ctx context.Context, timeout time.Duration) (Event, error) {
	defer x.cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-x.ch:
		return e, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("%w: %s", ErrEventTimeout, x.name)
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Cancel releases the expectation without waiting.
func (x *Expectation) Cancel() { x.cancel() }

// Tailer follows the newest journal file in a directory.
type Tailer struct {
	cfg    config.JournalConfig
	logger *zap.Logger

	mu      sync.RWMutex
	state   ShipState
	waiters map[*Expectation]struct{}
}

// NewTailer creates a Tailer. Nothing is read until Run is called.
func NewTailer(cfg config.JournalConfig, logger *zap.Logger) *Tailer {
	return &Tailer{
		cfg:     cfg,
		logger:  logger.Named("journal"),
		state:   ShipState{Status: StatusUnknown},
		waiters: make(map[*Expectation]struct{}),
	}
}

// Current returns the latest ship state.
func (t *Tailer) Current() ShipState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Expect registers interest in the next event called name. Register before
// triggering the action that produces the event so it cannot be missed.
func (t *Tailer) Expect(name string) *Expectation {
	x := &Expectation{name: name, ch: make(chan Event, 1)}
	var once sync.Once
	x.cancel = func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.waiters, x)
			t.mu.Unlock()
		})
	}
	t.mu.Lock()
	t.waiters[x] = struct{}{}
	t.mu.Unlock()
	return x
}

// WaitForEvent waits for the next event called name.
func (t *Tailer) WaitForEvent(ctx context.Context, name string, timeout time.Duration) (Event, error) {
	return t.Expect(name).Wait(ctx, timeout)
}

// Ingest decodes one journal line, updates the ship state and wakes any
// matching expectation. Lines that are not JSON are ignored.
func (t *Tailer) Ingest(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var e Event
	if err := json.UnmarshalFromString(line, &e); err != nil {
		t.logger.Debug("Skipping undecodable journal line.", zap.Error(err))
		return
	}
	if e.Name == "" {
		return
	}

	t.mu.Lock()
	t.state = t.state.apply(e)
	for x := range t.waiters {
		if x.name == e.Name {
			select {
			case x.ch <- e:
			default:
			}
			delete(t.waiters, x)
		}
	}
	t.mu.Unlock()
}

// newestJournal returns the most recently modified journal file.
func (t *Tailer) newestJournal() (string, error) {
	dir, err := homedir.Expand(t.cfg.Directory)
	if err != nil {
		return "", fmt.Errorf("could not expand journal directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, t.cfg.Pattern))
	if err != nil {
		return "", fmt.Errorf("invalid journal pattern: %w", err)
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, candidate{path: m, mod: info.ModTime()})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no journal files matching %s in %s", t.cfg.Pattern, dir)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})
	return files[0].path, nil
}

// Run follows the newest journal until ctx is done, switching files when
// the game starts a new one.
func (t *Tailer) Run(ctx context.Context) error {
	path, err := t.newestJournal()
	if err != nil {
		return err
	}
	for {
		next, err := t.follow(ctx, path)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		path = next
	}
}

// follow tails path. It returns the next file to follow when a newer
// journal appears, or "" when ctx is done.
func (t *Tailer) follow(ctx context.Context, path string) (string, error) {
	t.logger.Info("Following journal.", zap.String("path", path))
	tl, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return "", fmt.Errorf("failed to tail journal: %w", err)
	}
	defer func() {
		_ = tl.Stop()
		tl.Cleanup()
	}()

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", nil
		case line, ok := <-tl.Lines:
			if !ok {
				if err := tl.Err(); err != nil {
					return "", fmt.Errorf("journal tail stopped: %w", err)
				}
				return "", errors.New("journal tail stopped unexpectedly")
			}
			if line.Err != nil {
				t.logger.Warn("Error reading journal.", zap.Error(line.Err))
				continue
			}
			t.Ingest(line.Text)
		case <-ticker.C:
			newest, err := t.newestJournal()
			if err == nil && newest != path {
				return newest, nil
			}
		}
	}
}
