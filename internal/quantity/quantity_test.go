package quantity

import (
	"context"
	"strconv"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/testutil"
	"go.uber.org/zap/zaptest"
)

var field = screen.Region{Left: 0.4, Top: 0.4, Right: 0.5, Bottom: 0.45}

func testConfig() config.QuantityConfig {
	return config.QuantityConfig{
		ResetTimeout:   time.Second,
		MaximumHold:    time.Millisecond,
		MaxCorrections: 10,
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"250", 250, true},
		{"1,250", 1250, true},
		{" 250/784", 250, true},
		{"0/784", 0, true},
		{"QTY 42 T", 42, true},
		{"x7/9", 7, true},
		{"", 0, false},
		{"---", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseQuantity(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseQuantity(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseQuantity(%q)", tt.in)
	}
}

func TestController_SetQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip converges to the target", func(t *testing.T) {
		stepper := testutil.NewStepper(37, 784)
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))

		n, err := c.SetQuantity(ctx, field, 250, Buy, false)
		require.NoError(t, err)
		assert.Equal(t, 250, n)
		assert.Equal(t, 250, stepper.Current())

		sent := stepper.Sent()
		require.GreaterOrEqual(t, len(sent), 2)
		assert.Equal(t, "UI_Left:down", sent[0])
		assert.Equal(t, "UI_Left:up", sent[1])
		assert.Equal(t, 250, stepper.Count(input.UIRight))
	})

	t.Run("clamped field reports a mismatch", func(t *testing.T) {
		// The field refuses to go above 200; target 250 cannot be reached.
		stepper := testutil.NewStepper(0, 200)
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))

		_, err := c.SetQuantity(ctx, field, 250, Buy, false)
		assert.ErrorIs(t, err, ErrQuantityMismatch)
	})

	t.Run("lagging read-back is corrected", func(t *testing.T) {
		stepper := testutil.NewStepper(0, 784)
		// Reset takes one read; the first read after the presses lags.
		stepper.Lag = 5
		stepper.LagOnRead = 2
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))

		_, err := c.SetQuantity(ctx, field, 120, Sell, false)
		require.NoError(t, err)
		assert.Equal(t, 120, stepper.Current())
	})

	t.Run("maximum below the target returns what the game allowed", func(t *testing.T) {
		stepper := testutil.NewStepper(3, 784)
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))

		n, err := c.SetQuantity(ctx, field, 900, Buy, true)
		require.NoError(t, err)
		assert.Equal(t, 784, n)
		assert.Equal(t, 784, stepper.Current())
		assert.Equal(t, []string{"UI_Right:hold"}, stepper.Sent())
	})

	t.Run("maximum above the target is corrected down", func(t *testing.T) {
		// More stock than advertised: the hold lands on 600.
		stepper := testutil.NewStepper(0, 600)
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))

		n, err := c.SetQuantity(ctx, field, 150, Buy, true)
		require.NoError(t, err)
		assert.Equal(t, 150, n)
		assert.Equal(t, 150, stepper.Current())
		assert.Equal(t, 450, stepper.Count(input.UILeft))
	})

	t.Run("negative target", func(t *testing.T) {
		stepper := testutil.NewStepper(0, 10)
		c := New(stepper, stepper, testConfig(), zaptest.NewLogger(t))
		_, err := c.SetQuantity(ctx, field, -1, Buy, false)
		assert.Error(t, err)
		_, err = c.SetQuantity(ctx, field, -1, Buy, true)
		assert.Error(t, err)
	})
}

// stuckField never drains, so the reset times out and the controller
// must carry on with the correction loop.
type stuckField struct {
	testutil.KeyLog
	value int
}

func (s *stuckField) Send(ctx context.Context, cmd input.Command, opts ...input.Option) error {
	p := input.Resolve(opts...)
	if !p.IsPressDown() && !p.IsRelease() {
		switch cmd {
		case input.UIRight:
			s.value += p.Repeat
		case input.UILeft:
			s.value -= p.Repeat
		}
	}
	return s.KeyLog.Send(ctx, cmd, opts...)
}

func (s *stuckField) ReadField(context.Context, screen.Region) (ocr.Reading, error) {
	return ocr.NewReading(strconv.Itoa(s.value)), nil
}

func TestController_ResetTimeoutIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.ResetTimeout = 30 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	f := &stuckField{value: 40}
	c := New(f, f, cfg, zaptest.NewLogger(t))

	_, err := c.SetQuantity(context.Background(), field, 10, Buy, false)
	require.NoError(t, err)
	assert.Equal(t, 10, f.value)
	assert.Contains(t, f.Sent(), "UI_Left:up")
}

func TestController_UnavailableOCR(t *testing.T) {
	c := New(unavailable{}, &testutil.KeyLog{}, testConfig(), zaptest.NewLogger(t))
	_, err := c.SetQuantity(context.Background(), field, 10, Buy, false)
	assert.ErrorIs(t, err, ocr.ErrUnavailable)
}

type unavailable struct{}

func (unavailable) ReadField(context.Context, screen.Region) (ocr.Reading, error) {
	return ocr.Reading{}, ocr.ErrUnavailable
}

func FuzzParseQuantity(f *testing.F) {
	f.Add([]byte("1,250/784"))
	f.Add([]byte("x"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		text, err := consumer.GetString()
		if err != nil {
			return
		}
		n, ok := ParseQuantity(text)
		if !ok && n != 0 {
			t.Fatalf("failed parse of %q returned %d", text, n)
		}
		if n < 0 {
			t.Fatalf("negative quantity %d from %q", n, text)
		}
	})
}
