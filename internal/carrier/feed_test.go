package carrier

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/testutil"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// -- Mock OCR engine --

type scriptedEngine struct {
	lines []string
	err   error
}

func (e *scriptedEngine) Recognize(ctx context.Context, _ image.Image) (ocr.Reading, error) {
	if e.err != nil {
		return ocr.Reading{}, e.err
	}
	return ocr.NewReading(e.lines...), nil
}

func sampleSnapshot(qty int) Snapshot {
	return Snapshot{Stations: map[string][]Offer{
		"BURKIN": {{CarrierName: "IRON LADY K7Q-1HT", Commodity: "Gold", Quantity: qty}},
	}}
}

func TestFileFeed_MissingFile(t *testing.T) {
	f, err := NewFileFeed(filepath.Join(t.TempDir(), "absent.json"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Empty(t, f.Latest().Stations)
}

func TestFileFeed_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileFeed(path, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestFileFeed_Latest_IsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, WriteSnapshot(path, sampleSnapshot(150)))
	f, err := NewFileFeed(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	snap := f.Latest()
	snap.Stations["BURKIN"][0].Quantity = 1
	assert.Equal(t, 150, f.Latest().Stations["BURKIN"][0].Quantity)
}

func TestFileFeed_Run_ReloadsOnReplace(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, WriteSnapshot(path, sampleSnapshot(150)))
	f, err := NewFileFeed(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	// The watch is registered asynchronously, so keep replacing the file
	// until the new value shows up.
	require.Eventually(t, func() bool {
		if err := WriteSnapshot(path, sampleSnapshot(600)); err != nil {
			return false
		}
		offers := f.Latest().Stations["BURKIN"]
		return len(offers) == 1 && offers[0].Quantity == 600
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestIngester_IngestOnce(t *testing.T) {
	cfg := testFeedConfig(t)
	engine := &scriptedEngine{lines: []string{
		"BURKIN",
		"Gold x 1,200 Tons - Iron Lady (K7Q-1HT)",
	}}
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	in := NewIngester(testutil.NewBlankCapturer(), engine, screen.Region{Right: 1, Bottom: 1}, cfg, vocabulary, zaptest.NewLogger(t))
	in.now = func() time.Time { return fixed }

	snap, err := in.IngestOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, snap.UpdatedAt)

	f, err := NewFileFeed(cfg.SnapshotPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	got := f.Latest()
	assert.Equal(t, []Offer{{CarrierName: "IRON LADY K7Q-1HT", Commodity: "Gold", Quantity: 1200}}, got.Stations["BURKIN"])
	assert.Empty(t, got.Stations["DARLTON"])
	assert.True(t, fixed.Equal(got.UpdatedAt))

	t.Run("OCR failure clears the snapshot", func(t *testing.T) {
		engine.err = ocr.ErrUnavailable
		_, err := in.IngestOnce(context.Background())
		assert.True(t, errors.Is(err, ocr.ErrUnavailable))

		f, err := NewFileFeed(cfg.SnapshotPath, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, map[string][]Offer{"BURKIN": {}, "DARLTON": {}}, f.Latest().Stations)
	})
}

func TestIngester_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testFeedConfig(t)
	cfg.IngestInterval = 10 * time.Millisecond
	engine := &scriptedEngine{lines: []string{"BURKIN", "Gold x 300 Tons - Iron Lady (K7Q-1HT)"}}
	in := NewIngester(testutil.NewBlankCapturer(), engine, screen.Region{Right: 1, Bottom: 1}, cfg, vocabulary, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SnapshotPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
