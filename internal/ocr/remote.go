// File: internal/ocr/remote.go
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wingminer/internal/config"
	"go.uber.org/zap"
)

// RemoteEngine sends images to an OCR server over HTTP. The server accepts a
// multipart "image" upload on /ocr and answers with PaddleOCR style results.
type RemoteEngine struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

// NewRemoteEngine creates a client for the server at cfg.ServerURL. A nil
// httpClient gets a default client bounded by cfg.Timeout.
func NewRemoteEngine(cfg config.OCRConfig, logger *zap.Logger, httpClient *http.Client) (*RemoteEngine, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("remote OCR requires a server URL")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RemoteEngine{
		logger:  logger.Named("ocr.remote"),
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
	}, nil
}

// remoteResponse is {"result": [page, ...]} where each page is a list of
// [box, [text, confidence]] lines. A page may be null when nothing was found.
type remoteResponse struct {
	Result [][]remoteLine `json:"result"`
}

type remoteLine struct {
	Box        [][]float64
	Text       string
	Confidence float64
}

func (l *remoteLine) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 2 {
		return fmt.Errorf("ocr line has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &l.Box); err != nil {
		return fmt.Errorf("bad ocr box: %w", err)
	}
	var pair []interface{}
	if err := json.Unmarshal(raw[1], &pair); err != nil {
		return fmt.Errorf("bad ocr text pair: %w", err)
	}
	if len(pair) > 0 {
		l.Text, _ = pair[0].(string)
	}
	if len(pair) > 1 {
		l.Confidence, _ = pair[1].(float64)
	}
	return nil
}

func (l remoteLine) bounds() image.Rectangle {
	var r image.Rectangle
	for _, p := range l.Box {
		if len(p) < 2 {
			continue
		}
		pt := image.Pt(int(p[0]), int(p[1]))
		r = r.Union(image.Rectangle{Min: pt, Max: pt.Add(image.Pt(1, 1))})
	}
	return r
}

// Recognize uploads img and decodes the recognized lines.
func (e *RemoteEngine) Recognize(ctx context.Context, img image.Image) (Reading, error) {
	data, err := encodePNG(img)
	if err != nil {
		return Reading{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return Reading{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Reading{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Reading{}, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/ocr", &body)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Reading{}, fmt.Errorf("%w: server returned %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reading{}, fmt.Errorf("OCR server rejected request: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Reading{}, fmt.Errorf("failed to decode OCR response: %w", err)
	}

	var reading Reading
	for _, page := range decoded.Result {
		for _, line := range page {
			reading.Fragments = append(reading.Fragments, Fragment{
				Text:       line.Text,
				Bounds:     line.bounds(),
				Confidence: line.Confidence,
			})
		}
	}
	e.logger.Debug("Recognized text.", zap.Strings("lines", reading.Texts()))
	return reading, nil
}

// Health checks that the server answers on /health.
func (e *RemoteEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", ErrUnavailable, resp.Status)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no native resources.
func (e *RemoteEngine) Close() error { return nil }
