// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/journal"
	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/status"
)

// safeBuffer is written by the status printer goroutine.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testComponents(t *testing.T, withJournal bool) *components {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	if withJournal {
		line := `{"timestamp":"2026-10-18T10:00:00Z","event":"Location","Docked":true,"StationName":"Burkin Ring","StarSystem":"HIP 1234"}` + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Journal.2026-10-18T100000.01.log"), []byte(line), 0o644))
	}
	return &components{
		Tailer:   journal.NewTailer(config.JournalConfig{Directory: dir, Pattern: "Journal.*.log"}, logger),
		Notifier: status.NewNotifier(logger, 8),
	}
}

func TestRunWithServices(t *testing.T) {
	resetForTest(t)
	// The tail library keeps one process-wide inotify reader alive.
	defer goleak.VerifyNone(t,
		goleak.IgnoreAnyFunction("github.com/hpcloud/tail/watch.(*InotifyTracker).run"),
		goleak.IgnoreAnyFunction("gopkg.in/fsnotify.v1.(*Watcher).readEvents"),
	)

	t.Run("services stop when work finishes", func(t *testing.T) {
		c := testComponents(t, true)
		defer c.Shutdown()
		out := &safeBuffer{}

		err := runWithServices(context.Background(), c, out, func(ctx context.Context) error {
			assert.Eventually(t, func() bool { return c.Tailer.Current().DockedAt("Burkin Ring") },
				5*time.Second, 10*time.Millisecond)
			c.Notifier.Publish("Docked at HIP 1234/Burkin Ring, starting wing mining.")
			assert.Eventually(t, func() bool { return out.String() != "" }, 5*time.Second, 10*time.Millisecond)
			return nil
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "] Docked at HIP 1234/Burkin Ring, starting wing mining.")
	})

	t.Run("work error is returned", func(t *testing.T) {
		c := testComponents(t, true)
		defer c.Shutdown()
		boom := errors.New("boom")

		err := runWithServices(context.Background(), c, &safeBuffer{}, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing journal stops the work", func(t *testing.T) {
		c := testComponents(t, false)
		defer c.Shutdown()

		err := runWithServices(context.Background(), c, &safeBuffer{}, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "journal")
	})

	t.Run("interrupt cancels everything", func(t *testing.T) {
		c := testComponents(t, true)
		defer c.Shutdown()
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		go func() {
			<-started
			cancel()
		}()

		err := runWithServices(ctx, c, &safeBuffer{}, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPrintMissions(t *testing.T) {
	var out bytes.Buffer
	printMissions(&out, nil)
	assert.Equal(t, "No matching missions found.\n", out.String())

	out.Reset()
	partial := mission.Record{Commodity: "Gold", Tonnage: 300, Reward: 50_000_000, MissionID: 111}
	require.NoError(t, partial.Fulfill(100))
	printMissions(&out, []mission.Record{
		partial,
		{Commodity: "Silver", Tonnage: 700, Reward: 45_000_000},
	})
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "COMMODITY")
	assert.Regexp(t, `^Gold\s+300\s+50000000 CR\s+111$`, string(lines[1]))
	assert.Regexp(t, `^Silver\s+700\s+45000000 CR\s+-$`, string(lines[2]))
}
