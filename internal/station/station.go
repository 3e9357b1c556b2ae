// File: internal/station/station.go

// Package station drives the in-station menus: the mission board, the
// mission depot and the commodity market. Every procedure starts from and
// returns to the cockpit view, and verifies each screen by reading it.
package station

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/journal"
	"github.com/xkilldash9x/wingminer/internal/listscan"
	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/quantity"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
)

var (
	// ErrScreenNotReached means an expected screen never appeared.
	ErrScreenNotReached = errors.New("screen not reached")
	// ErrCommodityNotFound means the market list has no matching row.
	ErrCommodityNotFound = errors.New("commodity not found in market")
)

// Reader reads text off captured images. vision.Locator satisfies it.
type Reader interface {
	listscan.Reader
	ReadText(ctx context.Context, img image.Image) (ocr.Reading, error)
}

// QuantitySetter drives the market quantity field.
type QuantitySetter interface {
	SetQuantity(ctx context.Context, field screen.Region, target int, side quantity.Side, useMaximum bool) (int, error)
}

// EventSource lets callers wait for journal events.
type EventSource interface {
	Expect(name string) *journal.Expectation
}

// Deps are the collaborators Services drives.
type Deps struct {
	Capturer screen.Capturer
	Layout   *screen.Layout
	Reader   Reader
	Input    input.Sender
	Scanner  *listscan.Scanner
	Quantity QuantitySetter
	Parser   *mission.Parser
	Events   EventSource
}

// Services runs the station UI procedures.
type Services struct {
	cfg        config.StationConfig
	missionCfg config.MissionConfig
	Deps
	logger *zap.Logger
}

// New creates Services. Every dependency is required.
func New(cfg config.StationConfig, missionCfg config.MissionConfig, deps Deps, logger *zap.Logger) (*Services, error) {
	if deps.Capturer == nil ||
		deps.Layout == nil ||
		deps.Reader == nil ||
		deps.Input == nil ||
		deps.Scanner == nil ||
		deps.Quantity == nil ||
		deps.Parser == nil ||
		deps.Events == nil ||
		logger == nil {
		return nil, fmt.Errorf("cannot initialize station services with nil dependencies")
	}
	return &Services{
		cfg:        cfg,
		missionCfg: missionCfg,
		Deps:       deps,
		logger:     logger.Named("station"),
	}, nil
}

type deadline time.Time

func newDeadline(d time.Duration) deadline { return deadline(time.Now().Add(d)) }

func (d deadline) passed() bool { return !time.Now().Before(time.Time(d)) }

// send presses cmd and waits the menu delay.
func (s *Services) send(ctx context.Context, cmd input.Command, opts ...input.Option) error {
	if err := s.Input.Send(ctx, cmd, opts...); err != nil {
		return err
	}
	return input.Sleep(ctx, s.cfg.MenuDelay)
}

// sequence sends each command in turn, each a single press.
func (s *Services) sequence(ctx context.Context, cmds ...input.Command) error {
	for _, c := range cmds {
		if err := s.send(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// backOut returns to the cockpit view.
func (s *Services) backOut(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.send(ctx, input.UIBack, input.Repeat(4)); err != nil {
		s.logger.Debug("Failed to back out of menus.", zap.Error(err))
	}
}

// labelPresent reports whether any fragment contains label, or failing that
// fuzzily matches it.
func labelPresent(r ocr.Reading, label string, threshold float64) bool {
	want := textmatch.Compact(label)
	for _, t := range r.Texts() {
		if strings.Contains(textmatch.Compact(t), want) {
			return true
		}
	}
	_, ok := textmatch.BestMatch(r.Texts(), label, threshold)
	return ok
}

func (s *Services) readRegion(ctx context.Context, region string) (ocr.Reading, error) {
	r, err := s.Layout.Region(region)
	if err != nil {
		return ocr.Reading{}, err
	}
	img, err := s.Capturer.Capture(ctx, r)
	if err != nil {
		return ocr.Reading{}, fmt.Errorf("capture %s: %w", region, err)
	}
	return s.Reader.ReadText(ctx, img)
}

// waitFor polls region until cond accepts its text or the screen timeout
// passes.
func (s *Services) waitFor(ctx context.Context, region, what string, cond func(ocr.Reading) bool) error {
	var last ocr.Reading
	deadline := newDeadline(s.missionCfg.ScreenTimeout)
	for {
		reading, err := s.readRegion(ctx, region)
		switch {
		case err == nil:
			if cond(reading) {
				return nil
			}
			last = reading
		case errors.Is(err, ocr.ErrUnavailable) || ctx.Err() != nil:
			return err
		default:
			s.logger.Debug("Screen read failed.", zap.String("region", region), zap.Error(err))
		}
		if deadline.passed() {
			return fmt.Errorf("%w: %s not seen in %s (last read %q)", ErrScreenNotReached, what, region, last.Joined())
		}
		if err := input.Sleep(ctx, s.missionCfg.ScreenPollInterval); err != nil {
			return err
		}
	}
}

// WaitForText waits for label to appear in the named region.
func (s *Services) WaitForText(ctx context.Context, region, label string) error {
	return s.waitFor(ctx, region, fmt.Sprintf("%q", label), func(r ocr.Reading) bool {
		return labelPresent(r, label, s.missionCfg.TextThreshold)
	})
}

// waitForAnyText waits for the named region to show anything at all.
func (s *Services) waitForAnyText(ctx context.Context, region string) error {
	return s.waitFor(ctx, region, "any text", func(r ocr.Reading) bool {
		return strings.TrimSpace(r.Joined()) != ""
	})
}

// GotoStationServices opens station services from the cockpit.
func (s *Services) GotoStationServices(ctx context.Context) error {
	if err := s.send(ctx, input.UIUp, input.Repeat(3)); err != nil {
		return err
	}
	if err := s.sequence(ctx, input.UIDown, input.UISelect); err != nil {
		return err
	}
	if err := s.WaitForText(ctx, screen.RegionConnectedTo, s.cfg.ConnectedToLabel); err != nil {
		return fmt.Errorf("failed to open station services: %w", err)
	}
	return nil
}

// GotoMissionBoard opens the mission board from the cockpit.
func (s *Services) GotoMissionBoard(ctx context.Context) error {
	if err := s.GotoStationServices(ctx); err != nil {
		return err
	}
	if err := s.sequence(ctx, input.UISelect, input.UISelect); err != nil {
		return err
	}
	if err := s.WaitForText(ctx, screen.RegionMissionBoardTitle, s.cfg.MissionBoardLabel); err != nil {
		s.backOut(ctx)
		return fmt.Errorf("failed to open the mission board: %w", err)
	}
	return nil
}

func (s *Services) missionList() (screen.Target, error) {
	return s.Layout.ResolveTarget(s.Capturer, screen.RegionMissionsList, screen.SizeMissionItem)
}

// ScanMissions accepts every qualifying mission on the TRANSPORT and ALL
// tabs and returns them in the order accepted. Missions ordering more than
// capacity tonnes are left on the board. A tab that never loads is skipped.
func (s *Services) ScanMissions(ctx context.Context, capacity int) ([]mission.Record, error) {
	if err := s.GotoMissionBoard(ctx); err != nil {
		return nil, err
	}
	defer s.backOut(ctx)

	var accepted []mission.Record
	seen := make(map[string]bool)

	tabs := []struct {
		name string
		open []input.Command
	}{
		{name: "TRANSPORT", open: []input.Command{input.UIRight, input.UIRight, input.UISelect}},
		{name: "ALL", open: []input.Command{input.UIBack, input.UISelect}},
	}
	for _, tab := range tabs {
		if err := s.sequence(ctx, tab.open...); err != nil {
			return accepted, err
		}
		if err := s.waitForAnyText(ctx, screen.RegionMissionLoaded); err != nil {
			if errors.Is(err, ErrScreenNotReached) {
				s.logger.Warn("Mission tab did not load, skipping.", zap.String("tab", tab.name))
				continue
			}
			return accepted, err
		}
		found, err := s.scanBoardList(ctx, seen, capacity)
		accepted = append(accepted, found...)
		if err != nil {
			return accepted, err
		}
		s.logger.Info("Scanned mission tab.", zap.String("tab", tab.name), zap.Int("accepted", len(found)))
	}
	return accepted, nil
}

func (s *Services) scanBoardList(ctx context.Context, seen map[string]bool, capacity int) ([]mission.Record, error) {
	t, err := s.missionList()
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, input.UIDown); err != nil {
		return nil, err
	}

	var accepted []mission.Record
	_, err = s.Scanner.Walk(ctx, t, func(ctx context.Context, r ocr.Reading) (listscan.Action, error) {
		line := r.Joined()
		rec, ok := s.Parser.Parse(line)
		if !ok || seen[rec.RawText] {
			return listscan.Continue, nil
		}
		seen[rec.RawText] = true
		if capacity > 0 && rec.OrderedTonnage() > capacity {
			s.logger.Info("Mission exceeds cargo capacity, leaving it.", zap.String("text", line), zap.Int("capacity", capacity))
			return listscan.Continue, nil
		}
		s.logger.Info("Mission matched, accepting.", zap.String("text", line))

		id, acceptErr := s.accept(ctx)
		if acceptErr != nil {
			return listscan.Stop, acceptErr
		}
		rec.MissionID = id
		accepted = append(accepted, rec)
		// The accepted row disappears; step back so the walk's next step
		// lands on the row that replaced it.
		return listscan.Continue, s.send(ctx, input.UIUp)
	})
	return accepted, err
}

// accept opens and accepts the selected mission and returns the mission
// identifier from the journal, zero if none arrived.
func (s *Services) accept(ctx context.Context) (int64, error) {
	if err := s.send(ctx, input.UISelect); err != nil {
		return 0, err
	}
	x := s.Events.Expect("MissionAccepted")
	if err := s.Input.Send(ctx, input.UISelect); err != nil {
		x.Cancel()
		return 0, err
	}
	var id int64
	e, err := x.Wait(ctx, s.missionCfg.AcceptEventTimeout)
	switch {
	case err == nil:
		id = e.MissionID
	case errors.Is(err, journal.ErrEventTimeout):
		s.logger.Warn("No MissionAccepted event in the journal.")
	default:
		return 0, err
	}
	return id, input.Sleep(ctx, s.cfg.AcceptDelay)
}

// CheckDepot lists the wing mining missions already accepted but not yet
// delivered. Completed entries are skipped.
func (s *Services) CheckDepot(ctx context.Context) ([]mission.Record, error) {
	if err := s.GotoMissionBoard(ctx); err != nil {
		return nil, err
	}
	defer s.backOut(ctx)

	if err := s.send(ctx, input.UIRight, input.Repeat(4)); err != nil {
		return nil, err
	}
	if err := s.sequence(ctx, input.UIDown, input.UISelect); err != nil {
		return nil, err
	}
	if err := s.waitForAnyText(ctx, screen.RegionMissionLoaded); err != nil {
		return nil, fmt.Errorf("mission depot did not load: %w", err)
	}

	t, err := s.missionList()
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, input.UIDown); err != nil {
		return nil, err
	}

	var pending []mission.Record
	_, err = s.Scanner.Walk(ctx, t, func(_ context.Context, r ocr.Reading) (listscan.Action, error) {
		line := r.Joined()
		if strings.Contains(strings.ToUpper(line), "COMPLETED") {
			return listscan.Continue, nil
		}
		if rec, ok := s.Parser.ParsePending(line); ok {
			s.logger.Info("Found pending mission in depot.", zap.String("text", line))
			pending = append(pending, rec)
		}
		return listscan.Continue, nil
	})
	return pending, err
}

// BuyRequest describes one purchase attempt.
type BuyRequest struct {
	Commodity string
	// Want is the mission's remaining tonnage.
	Want int
	// Stock is the carrier's advertised stock, zero when unknown.
	Stock int
	// FreeCargo is the free space in the hold.
	FreeCargo int
}

// Quantity returns how much to buy and whether the maximum shortcut applies.
func (r BuyRequest) Quantity() (int, bool) {
	qty := r.Want
	if r.Stock > 0 && r.Stock < qty {
		qty = r.Stock
	}
	if r.FreeCargo < qty {
		qty = r.FreeCargo
	}
	useMax := (r.Stock > 0 && r.Want >= r.Stock) || r.Want >= r.FreeCargo
	return qty, useMax
}

var digitRef = regexp.MustCompile(`\d`)

// BuyForMission buys commodity at the docked carrier's market and returns
// the amount the quantity field settled at, which is never more than the
// requested quantity.
func (s *Services) BuyForMission(ctx context.Context, req BuyRequest) (int, error) {
	qty, useMax := req.Quantity()
	if qty <= 0 {
		return 0, fmt.Errorf("nothing to buy: want %d, stock %d, free cargo %d", req.Want, req.Stock, req.FreeCargo)
	}
	log := s.logger.With(zap.String("commodity", req.Commodity), zap.Int("quantity", qty), zap.Bool("maximum", useMax))
	log.Info("Buying for mission.")

	if err := s.GotoStationServices(ctx); err != nil {
		return 0, err
	}
	defer s.backOut(ctx)

	if err := s.send(ctx, input.UIRight, input.Repeat(2)); err != nil {
		return 0, err
	}
	if err := s.Input.Send(ctx, input.UISelect); err != nil {
		return 0, err
	}
	if err := input.Sleep(ctx, s.cfg.MarketLoadDelay); err != nil {
		return 0, err
	}

	// Buy tab, then into the commodity list.
	if err := s.send(ctx, input.UILeft, input.Repeat(2)); err != nil {
		return 0, err
	}
	if err := s.send(ctx, input.UIUp, input.Repeat(4)); err != nil {
		return 0, err
	}
	if err := s.sequence(ctx, input.UISelect, input.UIRight); err != nil {
		return 0, err
	}

	t, err := s.Layout.ResolveTarget(s.Capturer, screen.RegionCommoditiesList, screen.SizeCommodityItem)
	if err != nil {
		return 0, err
	}
	res, err := s.Scanner.Find(ctx, t, listscan.Fuzzy(req.Commodity, s.missionCfg.TextThreshold))
	if err != nil {
		return 0, err
	}
	if !res.Found {
		return 0, fmt.Errorf("%w: %s", ErrCommodityNotFound, req.Commodity)
	}

	if err := s.send(ctx, input.UISelect); err != nil {
		return 0, err
	}
	if err := s.waitForPanel(ctx, t); err != nil {
		return 0, err
	}
	if err := s.send(ctx, input.UIUp, input.Repeat(2)); err != nil {
		return 0, err
	}

	field, err := s.Layout.Region(screen.RegionCommodityQuantity)
	if err != nil {
		return 0, err
	}
	set, err := s.Quantity.SetQuantity(ctx, field, qty, quantity.Buy, useMax)
	if err != nil {
		return 0, err
	}
	if set <= 0 {
		return 0, fmt.Errorf("market offers no %s", req.Commodity)
	}
	if err := s.sequence(ctx, input.UIDown, input.UISelect); err != nil {
		return 0, err
	}
	log.Info("Purchase confirmed.", zap.Int("bought", set))
	return set, nil
}

// waitForPanel waits for the buy panel to take the selection. Each failed
// look nudges the selection up.
func (s *Services) waitForPanel(ctx context.Context, t screen.Target) error {
	deadline := newDeadline(s.cfg.PanelTimeout)
	for !deadline.passed() {
		r, ok, err := s.Scanner.Read(ctx, t)
		if err != nil && (errors.Is(err, ocr.ErrUnavailable) || ctx.Err() != nil) {
			return err
		}
		if ok {
			text := strings.ToUpper(r.Joined())
			if strings.Contains(text, "BUY") || strings.Contains(text, "SELL") || digitRef.MatchString(text) {
				return nil
			}
		}
		if err := s.send(ctx, input.UIUp); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: buy panel", ErrScreenNotReached)
}

// TurnIn finds rec in the mission depot by commodity and tonnage and claims
// it. It returns false when the mission is not listed.
func (s *Services) TurnIn(ctx context.Context, rec mission.Record) (bool, error) {
	if err := s.GotoMissionBoard(ctx); err != nil {
		return false, err
	}
	defer s.backOut(ctx)

	if err := s.send(ctx, input.UIRight, input.Repeat(2)); err != nil {
		return false, err
	}
	if err := s.send(ctx, input.UISelect); err != nil {
		return false, err
	}
	if err := s.WaitForText(ctx, screen.RegionMissionDepotTab, s.cfg.DepotTabLabel); err != nil {
		return false, fmt.Errorf("failed to open the mission depot: %w", err)
	}

	t, err := s.missionList()
	if err != nil {
		return false, err
	}
	res, err := s.Scanner.Find(ctx, t, listscan.Func(func(line string) bool {
		candidate, ok := s.Parser.ParsePending(line)
		return ok && candidate.Matches(rec)
	}))
	if err != nil {
		return false, err
	}
	if !res.Found {
		s.logger.Warn("Mission not found in depot.", zap.String("commodity", rec.Commodity), zap.Int("tonnage", rec.Tonnage))
		return false, nil
	}

	x := s.Events.Expect("MissionCompleted")
	defer x.Cancel()
	if err := s.sequence(ctx, input.UISelect, input.UISelect, input.UIBack); err != nil {
		return false, err
	}
	if e, err := x.Wait(ctx, s.missionCfg.AcceptEventTimeout); err == nil {
		if rec.MissionID != 0 && e.MissionID != rec.MissionID {
			s.logger.Warn("Completed mission ID differs from the queued one.",
				zap.Int64("expected", rec.MissionID), zap.Int64("completed", e.MissionID))
		}
	} else if ctx.Err() != nil {
		return false, ctx.Err()
	}
	s.logger.Info("Mission turned in.", zap.String("commodity", rec.Commodity), zap.Int("tonnage", rec.Tonnage))
	return true, nil
}
