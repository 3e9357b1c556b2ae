package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap/zaptest"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 140, A: 255})
		}
	}
	return img
}

func TestReading(t *testing.T) {
	r := Reading{Fragments: []Fragment{{Text: " MINE 300 "}, {Text: ""}, {Text: "UNITS OF GOLD"}}}
	assert.Equal(t, []string{"MINE 300", "UNITS OF GOLD"}, r.Texts())
	assert.Equal(t, "MINE 300 UNITS OF GOLD", r.Joined())
	assert.False(t, r.Empty())

	assert.True(t, Reading{}.Empty())
	assert.True(t, NewReading("  ").Empty())
	assert.Equal(t, "A B", NewReading("A", "B").Joined())
}

func TestRemoteEngine_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ocr", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		// PNG signature.
		require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"filename":"image.png","result":[[
			[[[10,5],[90,5],[90,20],[10,20]],["MINING RUSH FOR 300",0.97]],
			[[[10,25],[120,25],[120,40],[10,40]],["UNITS OF SILVER",0.91]]
		]]}`)
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: srv.URL + "/"}, zaptest.NewLogger(t), srv.Client())
	require.NoError(t, err)

	reading, err := engine.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	require.Len(t, reading.Fragments, 2)
	assert.Equal(t, "MINING RUSH FOR 300", reading.Fragments[0].Text)
	assert.InDelta(t, 0.97, reading.Fragments[0].Confidence, 1e-9)
	assert.Equal(t, image.Rect(10, 5, 91, 21), reading.Fragments[0].Bounds)
	assert.Equal(t, "MINING RUSH FOR 300 UNITS OF SILVER", reading.Joined())
}

func TestRemoteEngine_NullPageIsEmptyReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":[null]}`)
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: srv.URL}, zaptest.NewLogger(t), srv.Client())
	require.NoError(t, err)

	reading, err := engine.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.True(t, reading.Empty())
}

func TestRemoteEngine_Unavailable(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: url}, zaptest.NewLogger(t), nil)
		require.NoError(t, err)

		_, err = engine.Recognize(context.Background(), testImage())
		assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		assert.ErrorIs(t, engine.Health(context.Background()), ErrUnavailable)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: srv.URL}, zaptest.NewLogger(t), srv.Client())
		require.NoError(t, err)

		_, err = engine.Recognize(context.Background(), testImage())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("bad request is not unavailability", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no image", http.StatusBadRequest)
		}))
		defer srv.Close()

		engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: srv.URL}, zaptest.NewLogger(t), srv.Client())
		require.NoError(t, err)

		_, err = engine.Recognize(context.Background(), testImage())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "no image")
	})
}

func TestRemoteEngine_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(config.OCRConfig{ServerURL: srv.URL}, zaptest.NewLogger(t), srv.Client())
	require.NoError(t, err)
	assert.NoError(t, engine.Health(context.Background()))
}

func TestNew(t *testing.T) {
	_, err := New(config.OCRConfig{Engine: "nope"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	e, err := New(config.OCRConfig{Engine: "remote", ServerURL: "http://127.0.0.1:1"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &RemoteEngine{}, e)
	assert.NoError(t, e.Close())
}
