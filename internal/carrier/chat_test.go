package carrier

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/xkilldash9x/wingminer/internal/config"
)

var vocabulary = []string{"Gold", "Silver", "Bertrandite", "Indite"}

func testFeedConfig(t *testing.T) config.FeedConfig {
	t.Helper()
	return config.FeedConfig{
		SnapshotPath:    t.TempDir() + "/feed.json",
		MaxNameDistance: 2,
		// Keys arrive lowercased from viper.
		StationAliases: map[string][]string{
			"burkin":  {"BURKIN"},
			"darlton": {"DARLTON", "DARITON"},
		},
		OtherHeaders: []string{"WALLY", "TERMINAL"},
	}
}

func TestParseChatText(t *testing.T) {
	text := `
Stock update
Gold x 999 Tons - Before Any Header (AAA-111)
BURKIN RING
G0LD x 1,2O0 Tons - Iron Lady (K7Q-1HT)
Siiver x 300 Tons - Deep Pockets (x2b-9zz)
Painite x 50 Tons - Rock Hound (P4P-4PP)
Indite x lots Tons - Broken Count (B0B-123)
Bertrandite x 700 Tons - No Callsign
Dar1ton Hub
Indlte x 650 Tons - Night Shift (N1N-2NN)
Wally Terminal
Gold x 5000 Tons - Elsewhere (E5E-5EE)
`
	got := ParseChatText(strings.Split(text, "\n"), testFeedConfig(t), vocabulary)

	want := Snapshot{Stations: map[string][]Offer{
		"BURKIN": {
			{CarrierName: "IRON LADY K7Q-1HT", Commodity: "Gold", Quantity: 1200},
			{CarrierName: "DEEP POCKETS X2B-9ZZ", Commodity: "Silver", Quantity: 300},
		},
		"DARLTON": {
			{CarrierName: "NIGHT SHIFT N1N-2NN", Commodity: "Indite", Quantity: 650},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseChatText() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChatText_Empty(t *testing.T) {
	got := ParseChatText(nil, testFeedConfig(t), vocabulary)
	assert.Equal(t, map[string][]Offer{"BURKIN": {}, "DARLTON": {}}, got.Stations)
}

func TestCanonicalCommodity(t *testing.T) {
	tests := map[string]string{
		"GOLD":        "Gold",
		"G0ID":        "Gold",
		"SLLVER":      "Silver",
		"BERTRANDLTE": "Bertrandite",
		"lndlte":      "Indite",
	}
	for raw, want := range tests {
		got, ok := canonicalCommodity(raw, vocabulary, 2)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "Painite", "Platinum"} {
		_, ok := canonicalCommodity(raw, vocabulary, 2)
		assert.False(t, ok, raw)
	}
}
