// File: internal/wingmining/orchestrator.go

// Package wingmining is the state machine that runs the wing mining loop:
// accept missions at a mining station, source each commodity from fleet
// carriers, and turn the missions back in, alternating between two
// stations until enough missions are complete.
//
// The machine is driven by calling Run on a coarse tick. Each call runs one
// state handler to completion and saves the resulting state, so a crash or
// interrupt resumes from the last transition.
package wingmining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingminer/internal/carrier"
	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/input"
	"github.com/xkilldash9x/wingminer/internal/mission"
	"github.com/xkilldash9x/wingminer/internal/navigation"
	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/station"
	"github.com/xkilldash9x/wingminer/internal/status"
)

// ErrStationsNotConfigured means station A or B is missing from settings.
var ErrStationsNotConfigured = errors.New("wing mining stations are not configured")

// Services are the in-station UI procedures. station.Services implements it.
type Services interface {
	ScanMissions(ctx context.Context, capacity int) ([]mission.Record, error)
	CheckDepot(ctx context.Context) ([]mission.Record, error)
	BuyForMission(ctx context.Context, req station.BuyRequest) (int, error)
	TurnIn(ctx context.Context, rec mission.Record) (bool, error)
}

// CarrierSelector picks where to buy a commodity.
type CarrierSelector interface {
	Best(commodity string, stations []navigation.Location, blacklist *carrier.Blacklist) (carrier.Candidate, bool)
}

// Settings is the externally owned settings store.
type Settings interface {
	Station(i int) string
	SkipDepotCheck() bool
	CompletedMissions() int
	SetCompletedMissions(n int)
	Persist() error
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Services  Services
	Navigator navigation.Navigator
	Ship      navigation.ShipStateSource
	Carriers  CarrierSelector
	Settings  Settings
	Store     Store
	Status    status.Publisher
}

type handler func(o *Orchestrator, ctx context.Context) (Phase, error)

// handlers is the single dispatch table of the machine.
var handlers = map[Phase]handler{
	PhaseTravelToStation: (*Orchestrator).travelToStation,
	PhaseScanForMissions: (*Orchestrator).scanForMissions,
	PhaseProcessQueue:    (*Orchestrator).processQueue,
	PhaseRescanStation:   (*Orchestrator).rescanStation,
	PhaseSwitchStation:   (*Orchestrator).switchStation,
	PhaseTravelToFC:      (*Orchestrator).travelToFC,
	PhaseBuyCommodity:    (*Orchestrator).buyCommodity,
	PhaseTravelToTurnIn:  (*Orchestrator).travelToTurnIn,
	PhaseTurnInMission:   (*Orchestrator).turnInMission,
	PhaseWaitAndRecheck:  (*Orchestrator).waitAndRecheck,
}

// Orchestrator runs the wing mining state machine. It is not safe for
// concurrent use; one goroutine drives it.
type Orchestrator struct {
	cfg config.WingMiningConfig
	Deps
	logger *zap.Logger
	state  *State
	now    func() time.Time
}

// New creates an orchestrator, resuming from the saved state if there is one.
func New(cfg config.WingMiningConfig, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Services == nil ||
		deps.Navigator == nil ||
		deps.Ship == nil ||
		deps.Carriers == nil ||
		deps.Settings == nil ||
		deps.Store == nil ||
		logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if deps.Status == nil {
		deps.Status = status.Nop{}
	}

	st, err := deps.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load wing mining state: %w", err)
	}
	o := &Orchestrator{
		cfg:    cfg,
		Deps:   deps,
		logger: logger.Named("wingmining"),
		state:  st,
		now:    time.Now,
	}
	if st == nil {
		o.state = NewState()
	} else {
		o.logger.Info("Resuming saved wing mining state.",
			zap.String("state", string(st.Current)),
			zap.String("run_id", st.RunID),
			zap.Int("queued", st.Queue.Len()))
	}
	return o, nil
}

// Phase returns the current state.
func (o *Orchestrator) Phase() Phase { return o.state.Current }

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() State {
	s := *o.state
	s.Queue = mission.NewQueue(o.state.Queue.Items()...)
	bl := &carrier.Blacklist{}
	for _, n := range o.state.Blacklist.Names() {
		bl.Add(n)
	}
	s.Blacklist = bl
	if o.state.CurrentMission != nil {
		rec := *o.state.CurrentMission
		s.CurrentMission = &rec
	}
	if o.state.Carrier != nil {
		c := *o.state.Carrier
		s.Carrier = &c
	}
	return s
}

func (o *Orchestrator) publish(format string, args ...interface{}) {
	o.Status.Publish(fmt.Sprintf(format, args...))
}

// stations reads the configured station pair.
func (o *Orchestrator) stations() ([]navigation.Location, error) {
	locs := make([]navigation.Location, 2)
	for i := range locs {
		loc, err := navigation.ParseLocation(o.Settings.Station(i))
		if err != nil {
			return nil, fmt.Errorf("%w: station %c: %w", ErrStationsNotConfigured, 'A'+i, err)
		}
		locs[i] = loc
	}
	return locs, nil
}

func (o *Orchestrator) activeStation() (navigation.Location, error) {
	locs, err := o.stations()
	if err != nil {
		return navigation.Location{}, err
	}
	return locs[o.state.StationIndex], nil
}

func (o *Orchestrator) save() error {
	o.state.UpdatedAt = o.now().UTC()
	if err := o.Store.Save(o.state); err != nil {
		return fmt.Errorf("failed to save wing mining state: %w", err)
	}
	return nil
}

func (o *Orchestrator) transition(next Phase) error {
	if next != o.state.Current {
		o.logger.Info("State transition.",
			zap.String("from", string(o.state.Current)),
			zap.String("to", string(next)))
	}
	o.state.Current = next
	return o.save()
}

// Start begins a run. It resumes a phase interrupted by a travel failure;
// otherwise it starts at whichever configured station the ship is docked
// at, or travels to station A.
func (o *Orchestrator) Start(ctx context.Context) error {
	locs, err := o.stations()
	if err != nil {
		o.publish("Wing mining stations are not configured.")
		return err
	}
	if !o.state.Current.Terminal() {
		o.logger.Info("Already running.", zap.String("state", string(o.state.Current)))
		return nil
	}
	if o.state.Current == PhaseDone && o.Settings.CompletedMissions() >= o.cfg.TargetMissions {
		o.publish("Wing mining already completed %d missions.", o.Settings.CompletedMissions())
		return nil
	}
	if o.state.RunID == "" {
		o.state.RunID = uuid.NewString()
	}

	if resume := o.state.Resume; resume != "" {
		o.state.Resume = ""
		o.publish("Resuming wing mining at %s.", resume)
		return o.transition(resume)
	}

	ship := o.Ship.Current()
	for i, loc := range locs {
		if ship.DockedAt(loc.Station) {
			o.state.StationIndex = i
			o.publish("Docked at %s, starting wing mining.", loc)
			return o.transition(PhaseScanForMissions)
		}
	}
	o.state.StationIndex = 0
	o.publish("Starting wing mining, heading to %s.", locs[0])
	return o.transition(PhaseTravelToStation)
}

// Stop halts the run and deletes the saved state.
func (o *Orchestrator) Stop() error {
	o.state = NewState()
	o.publish("Wing mining stopped.")
	return o.Store.Clear()
}

// Reset stops the run and sets the completed mission counter back to zero.
func (o *Orchestrator) Reset() error {
	if err := o.Stop(); err != nil {
		return err
	}
	o.Settings.SetCompletedMissions(0)
	if err := o.Settings.Persist(); err != nil {
		return fmt.Errorf("failed to persist counter reset: %w", err)
	}
	o.publish("Wing mining counter reset.")
	return nil
}

// flushCounter writes a completed mission count saved by a turn-in to
// settings. Writing the same count twice is harmless, so a crash between
// the two saves cannot count a mission twice.
func (o *Orchestrator) flushCounter() error {
	target := o.state.PendingCounter
	if target == 0 {
		return nil
	}
	if o.Settings.CompletedMissions() < target {
		o.Settings.SetCompletedMissions(target)
		if err := o.Settings.Persist(); err != nil {
			return fmt.Errorf("failed to persist completed missions: %w", err)
		}
	}
	o.state.PendingCounter = 0
	return o.save()
}

// Run executes one step of the machine. It does nothing while idle or done.
// A cancelled context leaves the saved state untouched so the step is
// retried on resume.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.state.Current.Terminal() {
		return nil
	}
	if err := o.flushCounter(); err != nil {
		return err
	}
	if done := o.Settings.CompletedMissions(); done >= o.cfg.TargetMissions {
		o.publish("Wing mining complete: %d missions turned in.", done)
		return o.transition(PhaseDone)
	}

	h, ok := handlers[o.state.Current]
	if !ok {
		return fmt.Errorf("no handler for state %q", o.state.Current)
	}
	next, err := h(o, ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		o.publish("%s failed: %v", o.state.Current, err)
		return fmt.Errorf("%s: %w", o.state.Current, err)
	}
	if err := o.transition(next); err != nil {
		return err
	}
	return o.flushCounter()
}

// Loop calls Run on every tick until the machine goes idle or done, or ctx
// ends. Step errors are logged and the step is retried on the next tick.
func (o *Orchestrator) Loop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	for {
		if err := o.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Error("Wing mining step failed.", zap.String("state", string(o.state.Current)), zap.Error(err))
		}
		if o.state.Current.Terminal() {
			o.logger.Info("Wing mining loop finished.", zap.String("state", string(o.state.Current)))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// haltOnTravelFailure stops the run, remembering where to pick up.
func (o *Orchestrator) haltOnTravelFailure(dest navigation.Location, err error) Phase {
	o.logger.Warn("Travel failed, stopping.", zap.Stringer("destination", dest), zap.Error(err))
	o.publish("Travel to %s failed, stopping: %v", dest, err)
	o.state.Resume = o.state.Current
	return PhaseIdle
}

// goToStation makes sure the ship is docked at the active station.
func (o *Orchestrator) goToStation(ctx context.Context) (bool, error) {
	loc, err := o.activeStation()
	if err != nil {
		return false, err
	}
	if o.Ship.Current().DockedAt(loc.Station) {
		return true, nil
	}
	o.publish("Travelling to %s.", loc)
	if err := o.Navigator.TravelTo(ctx, loc); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		o.haltOnTravelFailure(loc, err)
		return false, nil
	}
	return true, nil
}

func (o *Orchestrator) travelToStation(ctx context.Context) (Phase, error) {
	ok, err := o.goToStation(ctx)
	if err != nil || !ok {
		return PhaseIdle, err
	}
	return PhaseScanForMissions, nil
}

// enqueue adds missions not already queued or in progress and returns how
// many were new.
func (o *Orchestrator) enqueue(records []mission.Record) int {
	added := 0
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			o.logger.Debug("Skipping invalid mission.", zap.Error(err))
			continue
		}
		if rec.OrderedTonnage() > o.cfg.CargoCapacity {
			o.publish("Skipping %d t of %s: more than the hold carries.", rec.OrderedTonnage(), rec.Commodity)
			continue
		}
		if cur := o.state.CurrentMission; cur != nil && cur.RawText == rec.RawText {
			continue
		}
		if o.state.Queue.Push(rec) {
			added++
		}
	}
	return added
}

// scan accepts missions from the board and queues them. Screen problems
// count as finding nothing; only a dead OCR service is an error.
func (o *Orchestrator) scan(ctx context.Context) (int, error) {
	o.publish("Scanning the mission board.")
	found, err := o.Services.ScanMissions(ctx, o.cfg.CargoCapacity)
	if err != nil {
		if errors.Is(err, ocr.ErrUnavailable) || ctx.Err() != nil {
			return 0, err
		}
		o.logger.Warn("Mission board scan failed.", zap.Error(err))
		o.publish("Mission board scan failed: %v", err)
	}
	added := o.enqueue(found)
	o.publish("Found %d new wing mining missions.", added)
	return added, nil
}

func (o *Orchestrator) scanForMissions(ctx context.Context) (Phase, error) {
	added, err := o.scan(ctx)
	if err != nil {
		return o.state.Current, err
	}
	if added > 0 || o.state.CurrentMission != nil || o.Settings.SkipDepotCheck() {
		return PhaseProcessQueue, nil
	}

	o.publish("Checking the mission depot for pending missions.")
	pending, err := o.Services.CheckDepot(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrUnavailable) || ctx.Err() != nil {
			return o.state.Current, err
		}
		o.logger.Warn("Depot check failed.", zap.Error(err))
	}
	if n := o.enqueue(pending); n > 0 {
		o.publish("Queued %d pending missions from the depot.", n)
	}
	return PhaseProcessQueue, nil
}

func (o *Orchestrator) processQueue(context.Context) (Phase, error) {
	rec, ok := o.state.Queue.Pop()
	if ok {
		o.state.CurrentMission = &rec
		o.state.Blacklist.Clear()
		o.state.Carrier = nil
		if rec.Tonnage == 0 {
			// Everything was bought before an earlier turn-in attempt missed.
			return PhaseTravelToTurnIn, nil
		}
		o.publish("Sourcing %d t of %s.", rec.Tonnage, rec.Commodity)
		return PhaseTravelToFC, nil
	}
	if o.state.TurnedIn {
		return PhaseRescanStation, nil
	}
	return PhaseSwitchStation, nil
}

func (o *Orchestrator) rescanStation(ctx context.Context) (Phase, error) {
	added, err := o.scan(ctx)
	if err != nil {
		return o.state.Current, err
	}
	if added > 0 {
		return PhaseProcessQueue, nil
	}
	return PhaseSwitchStation, nil
}

func (o *Orchestrator) switchStation(context.Context) (Phase, error) {
	o.state.Queue.Clear()
	o.state.StationIndex = 1 - o.state.StationIndex
	o.state.TurnedIn = false
	o.publish("Switching to station %c.", 'A'+o.state.StationIndex)
	return PhaseTravelToStation, nil
}

// requeue puts the current mission back at the head of the queue.
func (o *Orchestrator) requeue() {
	if rec := o.state.CurrentMission; rec != nil {
		o.state.Queue.PushFront(*rec)
	}
	o.state.CurrentMission = nil
	o.state.Carrier = nil
}

func (o *Orchestrator) travelToFC(ctx context.Context) (Phase, error) {
	rec := o.state.CurrentMission
	if rec == nil {
		return PhaseProcessQueue, nil
	}
	locs, err := o.stations()
	if err != nil {
		return o.state.Current, err
	}
	cand, ok := o.Carriers.Best(rec.Commodity, locs, o.state.Blacklist)
	if !ok {
		o.publish("No carrier has %s right now.", rec.Commodity)
		return PhaseWaitAndRecheck, nil
	}

	if !o.Ship.Current().DockedAt(cand.Location.Station) {
		o.publish("Travelling to carrier %s for %s.", cand.Name(), rec.Commodity)
		if err := o.Navigator.TravelTo(ctx, cand.Location); err != nil {
			if ctx.Err() != nil {
				return o.state.Current, ctx.Err()
			}
			o.logger.Warn("Carrier unreachable, blacklisting.", zap.String("carrier", cand.Name()), zap.Error(err))
			o.publish("Could not reach %s, trying another carrier.", cand.Name())
			o.state.Blacklist.Add(cand.Name())
			return PhaseTravelToFC, nil
		}
	}
	o.state.Carrier = &cand
	return PhaseBuyCommodity, nil
}

func (o *Orchestrator) buyCommodity(ctx context.Context) (next Phase, err error) {
	rec := o.state.CurrentMission
	cand := o.state.Carrier
	if rec == nil {
		return PhaseProcessQueue, nil
	}
	if cand == nil {
		return PhaseTravelToFC, nil
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Panic while buying, re-queuing mission.",
				zap.Any("panic", r),
				zap.String("carrier", cand.Name()),
				zap.String("commodity", rec.Commodity),
				zap.Stack("stack"))
			o.publish("Unexpected error while buying %s, mission re-queued.", rec.Commodity)
			o.requeue()
			next, err = PhaseProcessQueue, nil
		}
	}()

	req := station.BuyRequest{
		Commodity: rec.Commodity,
		Want:      rec.Tonnage,
		FreeCargo: o.cfg.CargoCapacity - o.state.CargoHeld,
	}
	if !cand.Pinned {
		req.Stock = cand.Offer.Quantity
	}
	bought, err := o.Services.BuyForMission(ctx, req)
	if err != nil || bought <= 0 {
		if ctx.Err() != nil {
			return o.state.Current, ctx.Err()
		}
		if errors.Is(err, ocr.ErrUnavailable) {
			return o.state.Current, err
		}
		o.logger.Warn("Purchase failed, blacklisting carrier.", zap.String("carrier", cand.Name()), zap.Error(err))
		o.publish("Purchase at %s failed, trying another carrier.", cand.Name())
		o.state.Blacklist.Add(cand.Name())
		o.state.Carrier = nil
		return PhaseTravelToFC, nil
	}
	if bought > rec.Tonnage {
		bought = rec.Tonnage
	}
	if err := rec.Fulfill(bought); err != nil {
		return o.state.Current, err
	}
	o.state.CargoHeld += bought

	if rec.Tonnage == 0 {
		o.publish("Bought %d t of %s, all aboard.", bought, rec.Commodity)
		return PhaseTravelToTurnIn, nil
	}
	o.publish("Bought %d t of %s at %s, %d t still needed.", bought, rec.Commodity, cand.Name(), rec.Tonnage)
	o.state.Blacklist.Add(cand.Name())
	o.state.Carrier = nil
	return PhaseTravelToFC, nil
}

func (o *Orchestrator) travelToTurnIn(ctx context.Context) (Phase, error) {
	ok, err := o.goToStation(ctx)
	if err != nil || !ok {
		return PhaseIdle, err
	}
	return PhaseTurnInMission, nil
}

func (o *Orchestrator) turnInMission(ctx context.Context) (Phase, error) {
	rec := o.state.CurrentMission
	if rec == nil {
		return PhaseProcessQueue, nil
	}
	ok, err := o.Services.TurnIn(ctx, *rec)
	if ctx.Err() != nil {
		return o.state.Current, ctx.Err()
	}
	if err != nil {
		o.logger.Warn("Turn-in failed.", zap.Error(err))
	}
	if !ok {
		o.publish("Mission for %d t of %s not found in the depot, will retry.", rec.OrderedTonnage(), rec.Commodity)
		o.requeue()
		return PhaseProcessQueue, nil
	}

	o.state.PendingCounter = o.Settings.CompletedMissions() + 1
	o.state.CurrentMission = nil
	o.state.Carrier = nil
	o.state.CargoHeld = 0
	o.state.TurnedIn = true
	o.publish("Turned in %d t of %s. Completed missions: %d.", rec.OrderedTonnage(), rec.Commodity, o.state.PendingCounter)
	return PhaseProcessQueue, nil
}

func (o *Orchestrator) waitAndRecheck(ctx context.Context) (Phase, error) {
	ok, err := o.goToStation(ctx)
	if err != nil || !ok {
		return PhaseIdle, err
	}
	o.publish("Waiting %s for carriers to restock.", o.cfg.Cooldown)
	if err := input.Sleep(ctx, o.cfg.Cooldown); err != nil {
		return o.state.Current, err
	}
	o.requeue()
	return PhaseProcessQueue, nil
}
