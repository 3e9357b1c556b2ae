// File: internal/carrier/ingest.go
package carrier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
)

// Ingester periodically reads the stock channel off the chat window and
// writes the resulting snapshot for FileFeed consumers.
type Ingester struct {
	capturer   screen.Capturer
	engine     ocr.Engine
	region     screen.Region
	cfg        config.FeedConfig
	vocabulary []string
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngester creates an Ingester reading region of the chat window.
func NewIngester(capturer screen.Capturer, engine ocr.Engine, region screen.Region, cfg config.FeedConfig, vocabulary []string, logger *zap.Logger) *Ingester {
	return &Ingester{
		capturer:   capturer,
		engine:     engine,
		region:     region,
		cfg:        cfg,
		vocabulary: vocabulary,
		logger:     logger.Named("carrier_ingest"),
		now:        time.Now,
	}
}

// IngestOnce reads the chat window once and replaces the snapshot file. When
// the window cannot be read an empty snapshot is written so stale stock is
// never acted on.
func (in *Ingester) IngestOnce(ctx context.Context) (Snapshot, error) {
	snap, readErr := in.read(ctx)
	if readErr != nil {
		snap = ParseChatText(nil, in.cfg, in.vocabulary)
	}
	snap.UpdatedAt = in.now().UTC()
	if err := WriteSnapshot(in.cfg.SnapshotPath, snap); err != nil {
		return snap, err
	}
	return snap, readErr
}

func (in *Ingester) read(ctx context.Context) (Snapshot, error) {
	img, err := in.capturer.Capture(ctx, in.region)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture chat window: %w", err)
	}
	reading, err := in.engine.Recognize(ctx, img)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read chat window: %w", err)
	}
	return ParseChatText(reading.Texts(), in.cfg, in.vocabulary), nil
}

// Run ingests immediately and then every cfg.IngestInterval until ctx is done.
func (in *Ingester) Run(ctx context.Context) error {
	ticker := time.NewTicker(in.cfg.IngestInterval)
	defer ticker.Stop()
	for {
		snap, err := in.IngestOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			in.logger.Warn("Carrier feed ingestion failed.", zap.Error(err))
		} else {
			total := 0
			for _, offers := range snap.Stations {
				total += len(offers)
			}
			in.logger.Info("Carrier feed updated.", zap.Int("offers", total))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
