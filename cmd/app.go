// File: cmd/app.go
package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/carrier"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/desktop"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/journal"
	"github.com/xkilldash9x/wingminer/internal/listscan"
	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/navigation"
	"github.com/xkilldash9x/wingminer/internal/observability"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/quantity"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/settings"
	"github.com/xkilldash9x/wingminer/internal/station"
	"github.com/xkilldash9x/wingminer/internal/status"
	"github.com/xkilldash9x/wingminer/internal/vision"
	"github.com/xkilldash9x/wingminer/internal/wingmining"
)

const statusBufferSize = 64

// components holds the services a run drives.
type components struct {
	Engine       ocr.Closer
	Tailer       *journal.Tailer
	Feed         *carrier.FileFeed
	Settings     *settings.Store
	Notifier     *status.Notifier
	Station      *station.Services
	Orchestrator *wingmining.Orchestrator
}

// Shutdown releases native resources and closes subscriber channels.
func (c *components) Shutdown() {
	if c.Notifier != nil {
		c.Notifier.Shutdown()
	}
	if c.Engine != nil {
		if err := c.Engine.Close(); err != nil {
			observability.GetLogger().Warn("Error closing OCR engine", zap.Error(err))
		}
	}
}

// initializeComponents wires the desktop, OCR and station stack, and, when
// withOrchestrator is set, the wing mining machine on top of it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withOrchestrator bool) (*components, error) {
	c := &components{}

	engine, err := ocr.New(cfg.OCR(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start OCR engine: %w", err)
	}
	c.Engine = engine

	layout, err := screen.NewLayout(cfg.Screen(), cfg.Regions(), cfg.Sizes())
	if err != nil {
		return c, fmt.Errorf("invalid screen layout: %w", err)
	}
	capturer := desktop.NewWindowCapturer(cfg.Screen(), logger)
	keyboard, err := input.NewKeyboard(cfg.Input(), desktop.KeyDriver{}, logger)
	if err != nil {
		return c, fmt.Errorf("failed to set up input: %w", err)
	}
	locator := vision.NewLocator(engine, logger)
	parser, err := mission.NewParser(cfg.Mission())
	if err != nil {
		return c, fmt.Errorf("failed to build mission parser: %w", err)
	}

	c.Tailer = journal.NewTailer(cfg.Journal(), logger)
	c.Station, err = station.New(cfg.Station(), cfg.Mission(), station.Deps{
		Capturer: capturer,
		Layout:   layout,
		Reader:   locator,
		Input:    keyboard,
		Scanner:  listscan.New(capturer, locator, keyboard, cfg.Scanner(), logger),
		Quantity: quantity.New(quantity.NewOCRFieldReader(capturer, engine), keyboard, cfg.Quantity(), logger),
		Parser:   parser,
		Events:   c.Tailer,
	}, logger)
	if err != nil {
		return c, err
	}

	c.Settings, err = settings.Open(cfg.WingMining().SettingsFile)
	if err != nil {
		return c, err
	}
	c.Notifier = status.NewNotifier(logger, statusBufferSize)

	if !withOrchestrator {
		return c, nil
	}

	c.Feed, err = carrier.NewFileFeed(cfg.Feed().SnapshotPath, logger)
	if err != nil {
		return c, err
	}
	store, err := wingmining.NewFileStore(cfg.WingMining().StateFile)
	if err != nil {
		return c, err
	}
	c.Orchestrator, err = wingmining.New(cfg.WingMining(), wingmining.Deps{
		Services:  c.Station,
		Navigator: navigation.NewAutopilotNavigator(cfg.Navigation(), c.Tailer, logger),
		Ship:      c.Tailer,
		Carriers:  carrier.NewSelector(c.Feed, c.Settings),
		Settings:  c.Settings,
		Store:     store,
		Status:    c.Notifier,
	}, logger)
	if err != nil {
		return c, err
	}
	return c, nil
}
