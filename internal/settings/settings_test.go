package settings

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSettings = `{
  "WingMining_StationA": "HIP 1234/Burkin Ring",
  "WingMining_StationB": " Col 285/Darlton Hub ",
  "WingMining_FC_A_Gold": "HIP 1234/K7Q-1HT",
  "WingMining_FC_B_Indite": "",
  "WingMining_SkipDepotCheck": true,
  "WingMining_CompletedMissions": 7
}`

func TestStore_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Equal(t, "HIP 1234/Burkin Ring", s.Station(0))
	assert.Equal(t, "Col 285/Darlton Hub", s.Station(1))
	assert.True(t, s.SkipDepotCheck())
	assert.False(t, s.MissionScannerMode())
	assert.Equal(t, 7, s.CompletedMissions())

	fc, ok := s.PinnedCarrier(0, "Gold")
	assert.True(t, ok)
	assert.Equal(t, "HIP 1234/K7Q-1HT", fc)
	_, ok = s.PinnedCarrier(1, "Indite")
	assert.False(t, ok, "blank entries are not pinned")
	_, ok = s.PinnedCarrier(1, "Gold")
	assert.False(t, ok)
}

func TestStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Zero(t, s.CompletedMissions())
	assert.Empty(t, s.Station(0))

	s.SetCompletedMissions(3)
	s.Set(KeyStationA, "HIP 1234/Burkin Ring")
	require.NoError(t, s.Persist())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.CompletedMissions())
	assert.Equal(t, "HIP 1234/Burkin Ring", reopened.Station(0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestPinnedCarrierKey(t *testing.T) {
	assert.Equal(t, "WingMining_FC_A_Gold", PinnedCarrierKey(0, "Gold"))
	assert.Equal(t, "WingMining_FC_B_Silver", PinnedCarrierKey(1, "Silver"))
}
