// File: internal/wingmining/state.go
package wingmining

import (
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/wingminer/internal/atomicfile"
	"github.com/xkilldash9x/wingminer/internal/carrier"
	"github.com/xkilldash9x/wingminer/internal/mission"
)

// Phase is a state of the wing mining machine.
type Phase string

const (
	PhaseIdle            Phase = "IDLE"
	PhaseTravelToStation Phase = "TRAVEL_TO_STATION"
	PhaseScanForMissions Phase = "SCAN_FOR_MISSIONS"
	PhaseProcessQueue    Phase = "PROCESS_QUEUE"
	PhaseRescanStation   Phase = "RESCAN_STATION"
	PhaseSwitchStation   Phase = "SWITCH_STATION"
	PhaseTravelToFC      Phase = "TRAVEL_TO_FC"
	PhaseBuyCommodity    Phase = "BUY_COMMODITY"
	PhaseTravelToTurnIn  Phase = "TRAVEL_TO_TURN_IN"
	PhaseTurnInMission   Phase = "TURN_IN_MISSION"
	PhaseWaitAndRecheck  Phase = "WAIT_AND_RECHECK"
	PhaseDone            Phase = "DONE"
)

// Terminal reports whether the machine does nothing in p until restarted.
func (p Phase) Terminal() bool { return p == PhaseIdle || p == PhaseDone }

// State is everything needed to resume after a restart. It is saved after
// every transition.
type State struct {
	RunID   string `json:"run_id,omitempty"`
	Current Phase  `json:"current_state"`
	// Resume is the phase a travel failure interrupted. Start continues
	// from it.
	Resume         Phase           `json:"resume_state,omitempty"`
	Queue          *mission.Queue  `json:"mission_queue"`
	CurrentMission *mission.Record `json:"current_mission"`
	StationIndex   int             `json:"current_station_index"`
	TurnedIn       bool            `json:"mission_turned_in_since_last_switch"`
	// Blacklist holds the carriers excluded for the current mission.
	Blacklist *carrier.Blacklist `json:"blacklist"`
	// Carrier is where the current mission is being bought.
	Carrier *carrier.Candidate `json:"current_carrier,omitempty"`
	// CargoHeld is the tonnage bought for the current mission so far.
	CargoHeld int `json:"cargo_held"`
	// PendingCounter is the completed mission count still to be written
	// to settings. Zero when nothing is pending.
	PendingCounter int       `json:"pending_counter,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewState returns an idle state with nothing queued.
func NewState() *State {
	return &State{
		Current:   PhaseIdle,
		Queue:     mission.NewQueue(),
		Blacklist: &carrier.Blacklist{},
	}
}

// normalize fills in anything a hand edited or older file left out.
func (s *State) normalize() {
	if s.Current == "" {
		s.Current = PhaseIdle
	}
	if s.Queue == nil {
		s.Queue = mission.NewQueue()
	}
	if s.Blacklist == nil {
		s.Blacklist = &carrier.Blacklist{}
	}
	if s.StationIndex != 1 {
		s.StationIndex = 0
	}
}

// Store persists State.
type Store interface {
	// Load returns the saved state, or nil when there is none.
	Load() (*State, error)
	Save(s *State) error
	Clear() error
}

// FileStore keeps State in a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. "~" is expanded.
func NewFileStore(path string) (*FileStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand state path: %w", err)
	}
	return &FileStore{path: expanded}, nil
}

// Path returns the state file location.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	s := NewState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", f.path, err)
	}
	s.normalize()
	return s, nil
}

func (f *FileStore) Save(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return atomicfile.Write(f.path, data)
}

func (f *FileStore) Clear() error {
	return atomicfile.Remove(f.path)
}
