package listscan

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/testutil"
	"go.uber.org/zap/zaptest"
)

var commodities = []string{"Agronomic Treatment", "Bertrandite", "Gold", "Indite", "Silver", "Tritium"}

func testConfig() config.ScannerConfig {
	return config.ScannerConfig{
		SeekTimeout:     2 * time.Second,
		MaxIterations:   100,
		EndOfListMisses: 2,
	}
}

func testTarget() screen.Target {
	return screen.Target{
		Name:    screen.RegionCommoditiesList,
		Region:  screen.Region{Left: 0.1, Top: 0.2, Right: 0.5, Bottom: 0.9},
		MinSize: screen.Size{Width: 100, Height: 15},
	}
}

func newScanner(t *testing.T, list *testutil.List, cfg config.ScannerConfig) *Scanner {
	t.Helper()
	return New(testutil.NewBlankCapturer(), list, list, cfg, zaptest.NewLogger(t))
}

func TestScanner_SeekTop(t *testing.T) {
	list := testutil.NewList(4, commodities...)
	s := newScanner(t, list, testConfig())

	require.NoError(t, s.SeekTop(context.Background(), testTarget()))
	assert.Equal(t, 0, list.Position())

	sent := list.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "UI_Up:down", sent[0])
	assert.Equal(t, "UI_Up:up", sent[1], "the scroll key must be released")
}

func TestScanner_SeekTopReleasesOnCancel(t *testing.T) {
	list := testutil.NewList(4, commodities...)
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	s := newScanner(t, list, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.SeekTop(ctx, testTarget())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"UI_Up:down", "UI_Up:up"}, list.Sent())
}

func TestScanner_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("exact match leaves the list on the row", func(t *testing.T) {
		list := testutil.NewList(3, commodities...)
		s := newScanner(t, list, testConfig())

		res, err := s.Find(ctx, testTarget(), Exact("Indite"))
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, 3, res.Index)
		assert.Equal(t, 3, list.Position())
		assert.Equal(t, "Indite", res.Reading.Joined())
	})

	t.Run("fuzzy match tolerates OCR noise", func(t *testing.T) {
		list := testutil.NewList(0, "AGRONOMIC TREATMENT", "BERTRAND1TE", "G0LD", "SIIVER")
		s := newScanner(t, list, testConfig())

		res, err := s.Find(ctx, testTarget(), Fuzzy("Silver", 0.7))
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, 3, res.Index)
	})

	t.Run("end of list after two consecutive misses", func(t *testing.T) {
		list := testutil.NewList(0, commodities...)
		s := newScanner(t, list, testConfig())

		res, err := s.Find(ctx, testTarget(), Exact("Painite"))
		require.NoError(t, err)
		assert.False(t, res.Found)
		// Six rows, then two empty reads.
		assert.Equal(t, len(commodities)+1, res.Index)
		assert.Equal(t, len(commodities)+1, list.Position())
	})

	t.Run("a single dropped frame does not end the scan", func(t *testing.T) {
		list := testutil.NewList(0, commodities...)
		// Seek top takes two reads from row 0; the walk's second read is read 4.
		list.Drop[4] = true
		s := newScanner(t, list, testConfig())

		res, err := s.Find(ctx, testTarget(), Exact("Tritium"))
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, 5, res.Index)
	})

	t.Run("empty list stops at the iteration cap", func(t *testing.T) {
		list := testutil.NewList(0)
		cfg := testConfig()
		cfg.MaxIterations = 10
		s := newScanner(t, list, cfg)

		res, err := s.Find(ctx, testTarget(), Exact("Gold"))
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Equal(t, 10, res.Index)
	})

	t.Run("parsed field predicate", func(t *testing.T) {
		list := testutil.NewList(0, "Mine 300 units of Gold", "Mine 450 units of Silver")
		s := newScanner(t, list, testConfig())

		res, err := s.Find(ctx, testTarget(), Func(func(line string) bool {
			return line == "Mine 450 units of Silver"
		}))
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, 1, res.Index)
	})
}

func TestScanner_FindIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, target := range []string{"Gold", "Painite"} {
		list := testutil.NewList(2, commodities...)
		s := newScanner(t, list, testConfig())

		first, err := s.Find(ctx, testTarget(), Exact(target))
		require.NoError(t, err)
		firstPos := list.Position()

		second, err := s.Find(ctx, testTarget(), Exact(target))
		require.NoError(t, err)

		assert.Equal(t, first.Found, second.Found, target)
		assert.Equal(t, first.Index, second.Index, target)
		assert.Equal(t, firstPos, list.Position(), target)
	}
}

func TestScanner_Walk(t *testing.T) {
	list := testutil.NewList(0, commodities...)
	s := newScanner(t, list, testConfig())

	var visited []string
	res, err := s.Walk(context.Background(), testTarget(), func(_ context.Context, r ocr.Reading) (Action, error) {
		visited = append(visited, r.Joined())
		return Continue, nil
	})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, commodities, visited)
	assert.Equal(t, len(commodities)+1, list.Count(input.UIDown))

	t.Run("visitor errors abort the walk", func(t *testing.T) {
		list := testutil.NewList(0, commodities...)
		s := newScanner(t, list, testConfig())
		boom := errors.New("boom")
		_, err := s.Walk(context.Background(), testTarget(), func(context.Context, ocr.Reading) (Action, error) {
			return Continue, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

// -- error paths --

type failingReader struct {
	err error
}

func (f failingReader) ReadSelectedText(context.Context, image.Image, screen.Size) (ocr.Reading, bool, error) {
	return ocr.Reading{}, false, f.err
}

func TestScanner_ReadErrors(t *testing.T) {
	ctx := context.Background()
	keys := &testutil.KeyLog{}

	t.Run("unavailable OCR is fatal", func(t *testing.T) {
		s := New(testutil.NewBlankCapturer(), failingReader{err: ocr.ErrUnavailable}, keys, testConfig(), zaptest.NewLogger(t))
		_, err := s.Walk(ctx, testTarget(), func(context.Context, ocr.Reading) (Action, error) { return Stop, nil })
		assert.ErrorIs(t, err, ocr.ErrUnavailable)
	})

	t.Run("other read errors count as misses", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxIterations = 5
		s := New(testutil.NewBlankCapturer(), failingReader{err: errors.New("garbled")}, keys, cfg, zaptest.NewLogger(t))
		res, err := s.Walk(ctx, testTarget(), func(context.Context, ocr.Reading) (Action, error) { return Stop, nil })
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Equal(t, 5, res.Index)
	})
}
