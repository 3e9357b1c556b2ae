// File: internal/carrier/feed.go
package carrier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/atomicfile"
)

// FileFeed serves the snapshot stored in a JSON file and reloads it whenever
// the file is replaced.
type FileFeed struct {
	path   string
	logger *zap.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewFileFeed creates a feed over path and performs the initial load. A
// missing file is an empty feed, not an error.
func NewFileFeed(path string, logger *zap.Logger) (*FileFeed, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand feed path: %w", err)
	}
	f := &FileFeed{
		path:   filepath.Clean(expanded),
		logger: logger.Named("carrier_feed"),
	}
	if err := f.reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return f, nil
}

// Latest returns a copy of the most recent snapshot.
func (f *FileFeed) Latest() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := Snapshot{Stations: make(map[string][]Offer, len(f.snap.Stations)), UpdatedAt: f.snap.UpdatedAt}
	for k, v := range f.snap.Stations {
		out.Stations[k] = append([]Offer(nil), v...)
	}
	return out
}

func (f *FileFeed) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode carrier feed %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	return nil
}

// Run watches the feed file until ctx is done. The parent directory is
// watched so atomic replacements are seen.
func (f *FileFeed) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create feed watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create feed directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	f.logger.Info("Watching carrier feed.", zap.String("path", f.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := f.reload(); err != nil {
				// Partial writes from non-atomic producers decode badly; the
				// next write event brings the full document.
				f.logger.Debug("Keeping previous carrier feed.", zap.Error(err))
				continue
			}
			f.logger.Debug("Carrier feed reloaded.")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("Carrier feed watcher error.", zap.Error(err))
		}
	}
}

// WriteSnapshot atomically replaces the file at path with snap.
func WriteSnapshot(path string, snap Snapshot) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not expand feed path: %w", err)
	}
	if snap.Stations == nil {
		snap.Stations = map[string][]Offer{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode carrier feed: %w", err)
	}
	return atomicfile.Write(expanded, data)
}
