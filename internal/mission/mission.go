// File: internal/mission/mission.go

// Package mission turns noisy mission board lines into validated records and
// keeps the FIFO queue of missions waiting to be sourced.
package mission

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/wingminer/internal/config"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
)

// Record is one accepted wing mining mission.
type Record struct {
	// Commodity is the canonical vocabulary name, never the OCR spelling.
	Commodity string `json:"commodity"`
	// Tonnage is what is still left to buy. It only ever decreases.
	Tonnage int `json:"tonnage"`
	// Ordered is the tonnage the mission was accepted with, recorded on the
	// first partial purchase. Zero means Tonnage has not changed.
	Ordered int   `json:"ordered,omitempty"`
	Reward  int64 `json:"reward"`
	// MissionID is the journal identifier, zero when unknown.
	MissionID int64 `json:"mission_id,omitempty"`
	// RawText is the unmodified OCR line the record was parsed from.
	RawText string `json:"raw_text"`
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	if r.Commodity == "" {
		return errors.New("mission commodity is empty")
	}
	if r.Tonnage <= 0 {
		return fmt.Errorf("mission tonnage must be positive, got %d", r.Tonnage)
	}
	if r.RawText == "" {
		return errors.New("mission raw text is empty")
	}
	return nil
}

// Fulfill records a partial purchase of bought units against the mission.
func (r *Record) Fulfill(bought int) error {
	if bought <= 0 {
		return fmt.Errorf("fulfilled amount must be positive, got %d", bought)
	}
	if bought > r.Tonnage {
		return fmt.Errorf("fulfilled amount %d exceeds remaining tonnage %d", bought, r.Tonnage)
	}
	if r.Ordered == 0 {
		r.Ordered = r.Tonnage
	}
	r.Tonnage -= bought
	return nil
}

// OrderedTonnage is the tonnage shown on the mission board for r.
func (r Record) OrderedTonnage() int {
	if r.Ordered > 0 {
		return r.Ordered
	}
	return r.Tonnage
}

// Matches reports whether r is the same mission as other by its canonical
// commodity and ordered tonnage. Reward text may change between acceptance
// and turn-in, so it is not compared.
func (r Record) Matches(other Record) bool {
	return r.Commodity == other.Commodity && r.OrderedTonnage() == other.OrderedTonnage()
}

var (
	unitsOf   = regexp.MustCompile(`(?i)units\s+of`)
	rewardRef = regexp.MustCompile(`(?i)(\d[\d,]*) CR`)
	tonFold   = strings.NewReplacer("O", "0", "I", "1", "L", "1", "S", "5", "B", "8", ",", "")
)

// ParseTonnage reads a tonnage token, undoing the usual OCR letter for
// digit swaps.
func ParseTonnage(token string) (int, bool) {
	s := tonFold.Replace(strings.ToUpper(strings.TrimSpace(token)))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Parser applies the configured mission filters.
type Parser struct {
	cfg        config.MissionConfig
	vocabulary []string
	ranges     map[string]config.CommodityRange
}

// NewParser validates cfg and builds a Parser.
func NewParser(cfg config.MissionConfig) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Parser{
		cfg:        cfg,
		vocabulary: make([]string, 0, len(cfg.Commodities)),
		ranges:     make(map[string]config.CommodityRange, len(cfg.Commodities)),
	}
	for _, c := range cfg.Commodities {
		p.vocabulary = append(p.vocabulary, c.Name)
		p.ranges[c.Name] = c
	}
	return p, nil
}

// Commodities returns the commodity vocabulary.
func (p *Parser) Commodities() []string {
	return append([]string(nil), p.vocabulary...)
}

// Parse returns a record when line is a wing mining mission that passes
// every filter, including the minimum reward.
func (p *Parser) Parse(line string) (Record, bool) {
	return p.parse(line, true)
}

// ParsePending parses a mission that has already been accepted. Accepted
// missions show their reward differently, so the reward gate is skipped.
func (p *Parser) ParsePending(line string) (Record, bool) {
	return p.parse(line, false)
}

func (p *Parser) parse(raw string, requireReward bool) (Record, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Record{}, false
	}
	if _, excluded := textmatch.PrefixMatch(line, p.cfg.ExclusionPatterns, p.cfg.PrefixThreshold); excluded {
		return Record{}, false
	}
	if _, named := textmatch.PrefixMatch(line, p.cfg.NamePatterns, p.cfg.PrefixThreshold); !named {
		return Record{}, false
	}

	loc := unitsOf.FindStringIndex(line)
	if loc == nil {
		return Record{}, false
	}
	before := strings.Fields(line[:loc[0]])
	after := strings.Fields(line[loc[1]:])
	if len(before) == 0 || len(after) == 0 {
		return Record{}, false
	}

	tonnage, ok := ParseTonnage(before[len(before)-1])
	if !ok {
		return Record{}, false
	}
	commodity, ok := textmatch.BestMatch(p.vocabulary, after[0], p.cfg.CommodityThreshold)
	if !ok {
		return Record{}, false
	}
	r := p.ranges[commodity.Text]
	if tonnage < r.Min || tonnage > r.Max {
		return Record{}, false
	}

	reward, found := maxReward(line)
	if requireReward && (!found || reward < p.cfg.MinReward) {
		return Record{}, false
	}

	return Record{
		Commodity: commodity.Text,
		Tonnage:   tonnage,
		Reward:    reward,
		RawText:   raw,
	}, true
}

// maxReward returns the largest "<number> CR" figure in line. Several
// reward displays can overlap in one capture.
func maxReward(line string) (int64, bool) {
	var best int64
	found := false
	for _, m := range rewardRef.FindAllStringSubmatch(line, -1) {
		v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}
