package input

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap/zaptest"
)

// -- Mock Implementations for Testing --

type mockDriver struct {
	mu     sync.Mutex
	events []string
}

func (m *mockDriver) KeyDown(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "down:"+key)
	return nil
}

func (m *mockDriver) KeyUp(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "up:"+key)
	return nil
}

func (m *mockDriver) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func newTestKeyboard(t *testing.T) (*Keyboard, *mockDriver) {
	t.Helper()
	cfg := config.NewDefaultConfig().Input()
	cfg.KeysPerSecond = 10000
	cfg.Burst = 100
	cfg.TapHold = 0
	driver := &mockDriver{}
	kb, err := NewKeyboard(cfg, driver, zaptest.NewLogger(t))
	require.NoError(t, err)
	return kb, driver
}

func TestNewKeyboard(t *testing.T) {
	cfg := config.NewDefaultConfig().Input()
	_, err := NewKeyboard(cfg, nil, zaptest.NewLogger(t))
	assert.Error(t, err)

	delete(cfg.Bindings, "ui_back")
	_, err = NewKeyboard(cfg, &mockDriver{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UI_Back")
}

func TestKeyboard_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("single tap", func(t *testing.T) {
		kb, driver := newTestKeyboard(t)
		require.NoError(t, kb.Send(ctx, UISelect))
		assert.Equal(t, []string{"down:space", "up:space"}, driver.Events())
	})

	t.Run("repeat", func(t *testing.T) {
		kb, driver := newTestKeyboard(t)
		require.NoError(t, kb.Send(ctx, UIDown, Repeat(3)))
		assert.Equal(t, []string{"down:s", "up:s", "down:s", "up:s", "down:s", "up:s"}, driver.Events())
	})

	t.Run("hold releases the key", func(t *testing.T) {
		kb, driver := newTestKeyboard(t)
		start := time.Now()
		require.NoError(t, kb.Send(ctx, UIRight, Hold(30*time.Millisecond)))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Equal(t, []string{"down:d", "up:d"}, driver.Events())
	})

	t.Run("press down and release are separate", func(t *testing.T) {
		kb, driver := newTestKeyboard(t)
		require.NoError(t, kb.Send(ctx, UILeft, PressDown()))
		assert.Equal(t, []string{"down:a"}, driver.Events())
		require.NoError(t, kb.Send(ctx, UILeft, Release()))
		assert.Equal(t, []string{"down:a", "up:a"}, driver.Events())
	})

	t.Run("cancelled hold still releases", func(t *testing.T) {
		kb, driver := newTestKeyboard(t)
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := kb.Send(cctx, UIUp, Hold(time.Second))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, []string{"down:w", "up:w"}, driver.Events())
	})

	t.Run("unknown command", func(t *testing.T) {
		kb, _ := newTestKeyboard(t)
		assert.Error(t, kb.Send(ctx, Command("UI_Jump")))
	})
}

func TestResolve(t *testing.T) {
	p := Resolve()
	assert.Equal(t, 1, p.Repeat)
	assert.False(t, p.IsPressDown())

	p = Resolve(Repeat(-4))
	assert.Equal(t, 0, p.Repeat)

	assert.True(t, Resolve(PressDown()).IsPressDown())
	assert.True(t, Resolve(Release()).IsRelease())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
