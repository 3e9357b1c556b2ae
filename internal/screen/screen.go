// File: internal/screen/screen.go

// Package screen describes where on the game window things are and how to
// capture them. Regions are resolution independent fractions of the client
// area; minimum element sizes are measured at a reference resolution and
// scaled to the live window when used.
package screen

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/xkilldash9x/wingminer/internal/config"
)

// Well known region names.
const (
	RegionMissionsList      = "missions_list"
	RegionMissionLoaded     = "mission_loaded"
	RegionMissionBoardTitle = "mission_board_header"
	RegionMissionDepotTab   = "mission_depot_tab"
	RegionCommoditiesList   = "commodities_list"
	RegionCommodityQuantity = "commodity_quantity"
	RegionConnectedTo       = "connected_to"
	RegionCarrierFeed       = "carrier_feed"
)

// Well known element size names.
const (
	SizeMissionItem   = "mission_item"
	SizeCommodityItem = "commodity_item"
)

// Region is a rectangle given as fractions of the window client area.
type Region struct {
	Left, Top, Right, Bottom float64
}

// RegionFromSlice builds a Region from a [left, top, right, bottom] slice.
func RegionFromSlice(v []float64) (Region, error) {
	if len(v) != 4 {
		return Region{}, fmt.Errorf("region needs 4 values, got %d", len(v))
	}
	r := Region{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	return r, r.Validate()
}

// Validate checks that the region lies within [0,1] and is not empty.
func (r Region) Validate() error {
	for _, f := range []float64{r.Left, r.Top, r.Right, r.Bottom} {
		if f < 0 || f > 1 {
			return fmt.Errorf("region coordinate %v outside [0,1]", f)
		}
	}
	if r.Right <= r.Left || r.Bottom <= r.Top {
		return fmt.Errorf("region %+v is empty", r)
	}
	return nil
}

// Abs converts the region to pixel coordinates inside bounds.
func (r Region) Abs(bounds image.Rectangle) image.Rectangle {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	return image.Rect(
		bounds.Min.X+int(math.Round(r.Left*w)),
		bounds.Min.Y+int(math.Round(r.Top*h)),
		bounds.Min.X+int(math.Round(r.Right*w)),
		bounds.Min.Y+int(math.Round(r.Bottom*h)),
	)
}

// Size is a pixel width and height.
type Size struct {
	Width, Height int
}

// ScaleTo rescales s, measured at reference, to the actual window size.
// Width and height scale independently.
func (s Size) ScaleTo(reference, actual Size) Size {
	if reference.Width <= 0 || reference.Height <= 0 {
		return s
	}
	return Size{
		Width:  int(math.Round(float64(s.Width) * float64(actual.Width) / float64(reference.Width))),
		Height: int(math.Round(float64(s.Height) * float64(actual.Height) / float64(reference.Height))),
	}
}

// Capturer grabs pixels from the game window.
type Capturer interface {
	// Capture returns the pixels inside r. The returned image's bounds start at (0,0).
	Capture(ctx context.Context, r Region) (image.Image, error)
	// Bounds returns the client area of the window in screen coordinates.
	Bounds() (image.Rectangle, error)
}

// Layout resolves named regions and element sizes from configuration.
type Layout struct {
	regions   map[string]Region
	sizes     map[string]Size
	reference Size
}

// NewLayout validates and indexes the configured regions and sizes.
func NewLayout(screenCfg config.ScreenConfig, regions map[string][]float64, sizes map[string][]int) (*Layout, error) {
	l := &Layout{
		regions:   make(map[string]Region, len(regions)),
		sizes:     make(map[string]Size, len(sizes)),
		reference: Size{Width: screenCfg.ReferenceWidth, Height: screenCfg.ReferenceHeight},
	}
	for name, v := range regions {
		r, err := RegionFromSlice(v)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", name, err)
		}
		l.regions[name] = r
	}
	for name, v := range sizes {
		if len(v) != 2 {
			return nil, fmt.Errorf("size %s needs 2 values, got %d", name, len(v))
		}
		l.sizes[name] = Size{Width: v[0], Height: v[1]}
	}
	return l, nil
}

// Region returns the named region.
func (l *Layout) Region(name string) (Region, error) {
	r, ok := l.regions[name]
	if !ok {
		return Region{}, fmt.Errorf("region %q is not configured", name)
	}
	return r, nil
}

// MinSize returns the named element size scaled to a window of the given bounds.
func (l *Layout) MinSize(name string, window image.Rectangle) (Size, error) {
	s, ok := l.sizes[name]
	if !ok {
		return Size{}, fmt.Errorf("element size %q is not configured", name)
	}
	return s.ScaleTo(l.reference, Size{Width: window.Dx(), Height: window.Dy()}), nil
}

// Target bundles what the list and quantity primitives need to look at one
// on-screen list: where it is and how big a selected row must be.
type Target struct {
	Name    string
	Region  Region
	MinSize Size
}

// ResolveTarget looks up a region and element size against the live window.
func (l *Layout) ResolveTarget(c Capturer, region, size string) (Target, error) {
	r, err := l.Region(region)
	if err != nil {
		return Target{}, err
	}
	bounds, err := c.Bounds()
	if err != nil {
		return Target{}, fmt.Errorf("could not read window bounds: %w", err)
	}
	s, err := l.MinSize(size, bounds)
	if err != nil {
		return Target{}, err
	}
	return Target{Name: region, Region: r, MinSize: s}, nil
}
