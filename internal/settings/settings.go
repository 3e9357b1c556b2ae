// File: internal/settings/settings.go

// Package settings is the durable key/value store shared with the desktop
// front end: configured stations, pinned carriers, mode flags and the
// completed mission counter.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/wingminer/internal/atomicfile"
)

// Setting keys.
const (
	KeyStationA           = "WingMining_StationA"
	KeyStationB           = "WingMining_StationB"
	KeySkipDepotCheck     = "WingMining_SkipDepotCheck"
	KeyMissionScannerMode = "WingMining_MissionScannerMode"
	KeyCompletedMissions  = "WingMining_CompletedMissions"
	keyPinnedPrefix       = "WingMining_FC_"
)

// PinnedCarrierKey returns the key holding the pinned carrier for commodity
// at station index 0 (A) or 1 (B).
func PinnedCarrierKey(stationIndex int, commodity string) string {
	side := "A"
	if stationIndex == 1 {
		side = "B"
	}
	return keyPinnedPrefix + side + "_" + commodity
}

// Store is a settings file backed by its own viper instance. Keys are
// case-insensitive.
type Store struct {
	path string

	mu sync.Mutex
	v  *viper.Viper
}

// Open loads the settings file at path. A missing file yields an empty
// store that is created on the first Persist.
func Open(path string) (*Store, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand settings path: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(expanded)
	v.SetConfigType("json")
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to read settings %s: %w", expanded, err)
	}
	return &Store{path: expanded, v: v}, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// GetString returns the string value of key.
func (s *Store) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.v.GetString(key))
}

// Set stores value under key in memory. Call Persist to write it out.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// Station returns the "System/Station" entry for index 0 (A) or 1 (B).
func (s *Store) Station(i int) string {
	if i == 1 {
		return s.GetString(KeyStationB)
	}
	return s.GetString(KeyStationA)
}

// PinnedCarrier returns the manually configured carrier for commodity at
// the given station index.
func (s *Store) PinnedCarrier(stationIndex int, commodity string) (string, bool) {
	v := s.GetString(PinnedCarrierKey(stationIndex, commodity))
	return v, v != ""
}

// SkipDepotCheck reports whether the depot tab is never consulted.
func (s *Store) SkipDepotCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(KeySkipDepotCheck)
}

// MissionScannerMode reports whether only scanning and accepting is wanted.
func (s *Store) MissionScannerMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(KeyMissionScannerMode)
}

// CompletedMissions returns the completed mission counter.
func (s *Store) CompletedMissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetInt(KeyCompletedMissions)
}

// SetCompletedMissions updates the counter in memory.
func (s *Store) SetCompletedMissions(n int) {
	s.Set(KeyCompletedMissions, n)
}

// Persist atomically replaces the settings file with the current values.
func (s *Store) Persist() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.v.AllSettings(), "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return atomicfile.Write(s.path, data)
}
