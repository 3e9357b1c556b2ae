// File: internal/vision/vision.go

// Package vision finds the keyboard-selected row of a game list and reads
// its text.
//
// The game draws list rows as colored text on a dark background, except for
// the focused row which is a solid block of the accent color. Masking the
// accent color band in HSV space and looking for a large external contour
// therefore isolates the selection without any template matching.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/xkilldash9x/wingminer/internal/ocr"
	"github.com/xkilldash9x/wingminer/internal/screen"
	"github.com/xkilldash9x/wingminer/internal/textmatch"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// minCoverage is the fraction of the minimum element size a contour must reach.
const minCoverage = 0.9

// HighlightBand is an inclusive HSV range in OpenCV 8-bit units.
type HighlightBand struct {
	Lower, Upper [3]float64
}

// DefaultHighlightBand matches the orange selection bar of the game UI.
var DefaultHighlightBand = HighlightBand{
	Lower: [3]float64{0, 100, 180},
	Upper: [3]float64{255, 255, 255},
}

func (b HighlightBand) scalars() (gocv.Scalar, gocv.Scalar) {
	return gocv.NewScalar(b.Lower[0], b.Lower[1], b.Lower[2], 0),
		gocv.NewScalar(b.Upper[0], b.Upper[1], b.Upper[2], 0)
}

// Selection is the cropped selected element and where it sat in the source image.
type Selection struct {
	Image  image.Image
	Bounds image.Rectangle
}

// Locator finds selected elements and reads text through an OCR engine.
type Locator struct {
	engine ocr.Engine
	logger *zap.Logger
	band   HighlightBand
}

// Option configures a Locator.
type Option func(*Locator)

// WithHighlightBand overrides the HSV band used to detect the selection.
func WithHighlightBand(b HighlightBand) Option {
	return func(l *Locator) { l.band = b }
}

// NewLocator creates a Locator on top of engine.
func NewLocator(engine ocr.Engine, logger *zap.Logger, opts ...Option) *Locator {
	l := &Locator{
		engine: engine,
		logger: logger.Named("vision"),
		band:   DefaultHighlightBand,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindSelected returns the first highlighted element whose bounding box
// covers at least 90% of minSize in both dimensions. ok is false when nothing is
// selected in img, which is a normal outcome.
func (l *Locator) FindSelected(img image.Image, minSize screen.Size) (Selection, bool) {
	if img == nil || img.Bounds().Empty() {
		return Selection{}, false
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		l.logger.Debug("Could not convert capture.", zap.Error(err))
		return Selection{}, false
	}
	defer src.Close()

	box, ok := selectedBox(src, l.band, minSize)
	if !ok {
		return Selection{}, false
	}

	crop := src.Region(box)
	defer crop.Close()
	cropped, err := crop.ToImage()
	if err != nil {
		l.logger.Debug("Could not crop selection.", zap.Error(err))
		return Selection{}, false
	}
	return Selection{Image: cropped, Bounds: box}, true
}

// selectedBox runs the mask, blur, Otsu and contour pipeline on a BGR mat.
func selectedBox(src gocv.Mat, band HighlightBand, minSize screen.Size) (image.Rectangle, bool) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	lower, upper := band.scalars()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseAndWithMask(src, src, &masked, mask)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(masked, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minW := float64(minSize.Width) * minCoverage
	minH := float64(minSize.Height) * minCoverage
	for i := 0; i < contours.Size(); i++ {
		r := gocv.BoundingRect(contours.At(i))
		if float64(r.Dx()) >= minW && float64(r.Dy()) >= minH {
			return r, true
		}
	}
	return image.Rectangle{}, false
}

// ReadSelectedText finds the selected element and runs OCR on it. ok is
// false when nothing is selected. Errors are reserved for OCR failures.
func (l *Locator) ReadSelectedText(ctx context.Context, img image.Image, minSize screen.Size) (ocr.Reading, bool, error) {
	sel, ok := l.FindSelected(img, minSize)
	if !ok {
		return ocr.Reading{}, false, nil
	}
	reading, err := l.engine.Recognize(ctx, sel.Image)
	if err != nil {
		return ocr.Reading{}, true, fmt.Errorf("failed to read selected element: %w", err)
	}
	return reading, true, nil
}

// ReadText runs OCR over the whole image.
func (l *Locator) ReadText(ctx context.Context, img image.Image) (ocr.Reading, error) {
	return l.engine.Recognize(ctx, img)
}

// TextPresent returns the reading fragment best matching target when it
// scores at least threshold.
func (l *Locator) TextPresent(reading ocr.Reading, target string, threshold float64) (string, bool) {
	m, ok := textmatch.BestMatch(reading.Texts(), target, threshold)
	if !ok {
		return "", false
	}
	return m.Text, true
}

// PrefixMatch returns the pattern best matching the start of body when it
// scores at least threshold.
func (l *Locator) PrefixMatch(body string, patterns []string, threshold float64) (string, bool) {
	m, ok := textmatch.PrefixMatch(body, patterns, threshold)
	if !ok {
		return "", false
	}
	return m.Text, true
}

// Binarize converts img to an inverted binary image, dark digits on white,
// which is what OCR handles best for the quantity field.
func Binarize(img image.Image, threshold float32) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, threshold, 255, gocv.ThresholdBinaryInv)

	return binary.ToImage()
}
