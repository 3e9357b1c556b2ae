// File: internal/carrier/chat.go
package carrier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
)

var (
	offerLine   = regexp.MustCompile(`(?i)(.+?)\s+x\s+([\d,O]+)\s+Tons\s+-\s+(.+)`)
	carrierPart = regexp.MustCompile(`(.+?)\s+\(([A-Za-z0-9-]{7})\)`)
	headerFold  = strings.NewReplacer("0", "O", "1", "I", "L", "I", "|", "I")
)

// ParseChatText recovers offers from the community stock channel. Offers
// look like "Gold x 1,200 Tons - Carrier Name (K7Q-1HT)" and are grouped
// under station header lines. Lines outside a tracked station section, and
// commodities outside vocabulary, are ignored.
func ParseChatText(lines []string, cfg config.FeedConfig, vocabulary []string) Snapshot {
	snap := Snapshot{Stations: make(map[string][]Offer, len(cfg.StationAliases))}
	for key := range cfg.StationAliases {
		snap.Stations[strings.ToUpper(key)] = []Offer{}
	}

	current := ""
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if key, ok := sectionHeader(line, cfg); ok {
			current = key
			continue
		}
		if current == "" {
			continue
		}
		if o, ok := parseOffer(line, vocabulary, cfg.MaxNameDistance); ok {
			snap.Stations[current] = append(snap.Stations[current], o)
		}
	}
	return snap
}

// sectionHeader reports whether line starts a new section. The returned key
// is empty for untracked stations, which close the current section.
func sectionHeader(line string, cfg config.FeedConfig) (string, bool) {
	folded := headerFold.Replace(strings.ToUpper(line))
	// The offer pattern can contain a station name inside a carrier name.
	if offerLine.MatchString(line) {
		return "", false
	}
	for key, aliases := range cfg.StationAliases {
		for _, a := range aliases {
			if strings.Contains(folded, headerFold.Replace(strings.ToUpper(a))) {
				return strings.ToUpper(key), true
			}
		}
	}
	for _, h := range cfg.OtherHeaders {
		if strings.Contains(folded, headerFold.Replace(strings.ToUpper(h))) {
			return "", true
		}
	}
	return "", false
}

func parseOffer(line string, vocabulary []string, maxDistance int) (Offer, bool) {
	m := offerLine.FindStringSubmatch(line)
	if m == nil {
		return Offer{}, false
	}
	commodity, ok := canonicalCommodity(strings.TrimSpace(m[1]), vocabulary, maxDistance)
	if !ok {
		return Offer{}, false
	}
	c := carrierPart.FindStringSubmatch(strings.TrimSpace(m[3]))
	if c == nil {
		return Offer{}, false
	}
	qty, err := strconv.Atoi(strings.NewReplacer(",", "", "O", "0", "o", "0").Replace(m[2]))
	if err != nil {
		return Offer{}, false
	}
	return Offer{
		CarrierName: strings.ToUpper(strings.TrimSpace(c[1]) + " " + strings.TrimSpace(c[2])),
		Commodity:   commodity,
		Quantity:    qty,
	}, true
}

// canonicalCommodity maps an OCR spelling onto the vocabulary by edit
// distance over the folded forms. Ties go to the earlier vocabulary entry.
func canonicalCommodity(raw string, vocabulary []string, maxDistance int) (string, bool) {
	norm := textmatch.Compact(raw)
	if norm == "" {
		return "", false
	}
	best, bestDist := "", maxDistance+1
	for _, v := range vocabulary {
		if d := levenshtein.ComputeDistance(norm, textmatch.Compact(v)); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best, best != ""
}
