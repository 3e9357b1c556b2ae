// File: internal/navigation/navigation.go

// Package navigation moves the ship between stations through an external
// autopilot service and confirms arrival from journal telemetry.
package navigation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/journal"
)

// ErrTravelFailed is returned when the ship did not reach its destination.
var ErrTravelFailed = errors.New("travel failed")

// Location is a station within a star system. Its text form is
// "System/Station", the format used by the settings store.
type Location struct {
	System  string `json:"system"`
	Station string `json:"station"`
}

// ParseLocation reads "System/Station". Surrounding whitespace is trimmed
// from both parts and both must be present.
func ParseLocation(s string) (Location, error) {
	system, station, ok := strings.Cut(s, "/")
	loc := Location{System: strings.TrimSpace(system), Station: strings.TrimSpace(station)}
	if !ok || loc.System == "" || loc.Station == "" {
		return Location{}, fmt.Errorf("location %q is not in System/Station form", s)
	}
	return loc, nil
}

func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	return l.System + "/" + l.Station
}

// IsZero reports whether l is unset.
func (l Location) IsZero() bool { return l.System == "" && l.Station == "" }

// Navigator travels to a location. It returns nil only once the ship is
// docked there.
type Navigator interface {
	TravelTo(ctx context.Context, dest Location) error
}

// ShipStateSource reports the current ship state.
type ShipStateSource interface {
	Current() journal.ShipState
}

// AutopilotNavigator hands the destination to an autopilot service over
// HTTP and waits for the journal to report docking.
type AutopilotNavigator struct {
	cfg    config.NavigationConfig
	client *http.Client
	ship   ShipStateSource
	logger *zap.Logger
}

// NewAutopilotNavigator creates a navigator for the autopilot at
// cfg.AutopilotURL.
func NewAutopilotNavigator(cfg config.NavigationConfig, ship ShipStateSource, logger *zap.Logger) *AutopilotNavigator {
	return &AutopilotNavigator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		ship:   ship,
		logger: logger.Named("navigation"),
	}
}

type waypointRequest struct {
	System  string `json:"system"`
	Station string `json:"station"`
}

// TravelTo implements Navigator. Travel is skipped when already docked at
// dest.
func (n *AutopilotNavigator) TravelTo(ctx context.Context, dest Location) error {
	if n.ship.Current().DockedAt(dest.Station) {
		n.logger.Debug("Already docked at destination.", zap.Stringer("dest", dest))
		return nil
	}

	n.logger.Info("Requesting travel.", zap.Stringer("dest", dest))
	if err := n.setWaypoint(ctx, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrTravelFailed, err)
	}
	defer n.clearWaypoint(context.WithoutCancel(ctx))

	deadline := time.NewTimer(n.cfg.TravelTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			st := n.ship.Current()
			return fmt.Errorf("%w: not docked at %s after %s (status %s at %q)",
				ErrTravelFailed, dest, n.cfg.TravelTimeout, st.Status, st.Station)
		case <-ticker.C:
			if n.ship.Current().DockedAt(dest.Station) {
				n.logger.Info("Arrived.", zap.Stringer("dest", dest))
				return nil
			}
		}
	}
}

func (n *AutopilotNavigator) setWaypoint(ctx context.Context, dest Location) error {
	body, err := json.Marshal(waypointRequest{System: dest.System, Station: dest.Station})
	if err != nil {
		return err
	}
	return n.do(ctx, http.MethodPost, body)
}

// clearWaypoint is best effort; a stale waypoint is overwritten by the next
// request anyway.
func (n *AutopilotNavigator) clearWaypoint(ctx context.Context) {
	if err := n.do(ctx, http.MethodDelete, nil); err != nil {
		n.logger.Debug("Failed to clear waypoint.", zap.Error(err))
	}
}

func (n *AutopilotNavigator) do(ctx context.Context, method string, body []byte) error {
	url := strings.TrimRight(n.cfg.AutopilotURL, "/") + "/waypoint"
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build autopilot request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("autopilot request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("autopilot returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
