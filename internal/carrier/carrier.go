// File: internal/carrier/carrier.go

// Package carrier picks fleet carriers to buy mission commodities from. The
// stock picture comes from an externally refreshed snapshot file, which the
// ingester in this package can also produce from a chat window.
package carrier

import (
	"regexp"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingminer/internal/navigation"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
)

// Offer is one carrier's advertised stock of a commodity.
type Offer struct {
	// CarrierName is the uppercased "NAME CALLSIGN" form.
	CarrierName string `json:"carrier_name"`
	Commodity   string `json:"commodity"`
	Quantity    int    `json:"quantity"`
}

// Snapshot is the feed document: offers keyed by station.
type Snapshot struct {
	Stations  map[string][]Offer `json:"stations"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// Feed exposes the latest snapshot. Implementations never block.
type Feed interface {
	Latest() Snapshot
}

var callsignRef = regexp.MustCompile(`^[A-Z0-9]{3}-[A-Z0-9]{3}$`)

// Callsign extracts the carrier's callsign from its feed name, which is what
// the journal reports when docked. Names without one are returned as is.
func Callsign(name string) string {
	fields := strings.Fields(strings.ToUpper(name))
	if len(fields) == 0 {
		return ""
	}
	if last := fields[len(fields)-1]; callsignRef.MatchString(last) {
		return last
	}
	return strings.TrimSpace(name)
}

// Blacklist is the set of carriers ruled out for the current mission.
// The zero value is empty and ready to use.
type Blacklist struct {
	names map[string]struct{}
}

// Add rules name out.
func (b *Blacklist) Add(name string) {
	if b.names == nil {
		b.names = make(map[string]struct{})
	}
	b.names[name] = struct{}{}
}

// Contains reports whether name is ruled out. A nil blacklist is empty.
func (b *Blacklist) Contains(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b.names[name]
	return ok
}

// Clear empties the blacklist. It is called whenever a new mission starts.
func (b *Blacklist) Clear() { b.names = nil }

// Len returns the number of blacklisted carriers.
func (b *Blacklist) Len() int { return len(b.names) }

// Names returns the blacklisted carriers in sorted order.
func (b *Blacklist) Names() []string {
	out := make([]string, 0, len(b.names))
	for n := range b.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the blacklist as a sorted array.
func (b *Blacklist) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Names())
}

// UnmarshalJSON decodes an array of names.
func (b *Blacklist) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	b.Clear()
	for _, n := range names {
		b.Add(n)
	}
	return nil
}

// PinnedSource supplies manually configured carriers, as "System/Station",
// for a station index and commodity.
type PinnedSource interface {
	PinnedCarrier(stationIndex int, commodity string) (string, bool)
}

// Candidate is a carrier chosen to source a commodity.
type Candidate struct {
	Offer    Offer               `json:"offer"`
	Location navigation.Location `json:"location"`
	// Pinned candidates come from settings; their stock is unknown.
	Pinned bool `json:"pinned,omitempty"`
}

// Name is the key the candidate is blacklisted under.
func (c Candidate) Name() string {
	if c.Pinned {
		return c.Location.String()
	}
	return c.Offer.CarrierName
}

// Selector picks the best carrier for a commodity.
type Selector struct {
	feed   Feed
	pinned PinnedSource
}

// NewSelector creates a Selector. pinned may be nil.
func NewSelector(feed Feed, pinned PinnedSource) *Selector {
	return &Selector{feed: feed, pinned: pinned}
}

// Best returns the non-blacklisted carrier with the most stock of commodity
// across the feed entries of stations. Ties go to the lexically smaller
// carrier name so the choice is stable. When the feed has nothing usable,
// pinned carriers are tried in station order.
func (s *Selector) Best(commodity string, stations []navigation.Location, blacklist *Blacklist) (Candidate, bool) {
	snap := s.feed.Latest()

	var best Candidate
	found := false
	for _, loc := range stations {
		for key, offers := range snap.Stations {
			if !stationMatches(key, loc.Station) {
				continue
			}
			for _, o := range offers {
				if o.Quantity <= 0 || o.Commodity != commodity || blacklist.Contains(o.CarrierName) {
					continue
				}
				if found && (o.Quantity < best.Offer.Quantity ||
					(o.Quantity == best.Offer.Quantity && o.CarrierName >= best.Offer.CarrierName)) {
					continue
				}
				best = Candidate{
					Offer:    o,
					Location: navigation.Location{System: loc.System, Station: Callsign(o.CarrierName)},
				}
				found = true
			}
		}
	}
	if found || s.pinned == nil {
		return best, found
	}

	for i := range stations {
		raw, ok := s.pinned.PinnedCarrier(i, commodity)
		if !ok {
			continue
		}
		loc, err := navigation.ParseLocation(raw)
		if err != nil || blacklist.Contains(loc.String()) {
			continue
		}
		return Candidate{
			Offer:    Offer{CarrierName: loc.Station, Commodity: commodity},
			Location: loc,
			Pinned:   true,
		}, true
	}
	return Candidate{}, false
}

// stationMatches reports whether a feed key such as "BURKIN" refers to the
// configured station name, e.g. "Burkin Ring".
func stationMatches(key, station string) bool {
	k, s := textmatch.Compact(key), textmatch.Compact(station)
	if k == "" || s == "" {
		return false
	}
	return strings.Contains(s, k) || strings.Contains(k, s)
}
