package vision

import (
	"fmt"
	"image"
	"image/color"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"gocv.io/x/gocv"
)

// Borders are the fixed frame margins blackened before thresholding. They
// hide fixture clutter around the pick area.
type Borders struct {
	Top, Left, Right, Bottom int
}

// DefaultBorders matches the reference cell's fixture layout.
var DefaultBorders = Borders{Top: 150, Left: 50, Right: 50, Bottom: 100}

// Rects returns the four border rectangles for a frame of the given size.
func (b Borders) Rects(size image.Point) []image.Rectangle {
	return []image.Rectangle{
		image.Rect(0, 0, size.X, b.Top),
		image.Rect(0, 0, b.Left, size.Y),
		image.Rect(size.X-b.Right, 0, size.X, size.Y),
		image.Rect(0, size.Y-b.Bottom, size.X, size.Y),
	}
}

// Inner returns the area left visible by the borders.
func (b Borders) Inner(size image.Point) image.Rectangle {
	return image.Rect(b.Left, b.Top, size.X-b.Right, size.Y-b.Bottom)
}

// Preprocessor produces the binary detection mask for a frame.
type Preprocessor struct {
	Borders Borders
}

// NewPreprocessor returns a Preprocessor using DefaultBorders.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{Borders: DefaultBorders}
}

// Mask blackens the borders, blurs, applies an adaptive mean threshold and
// closes the result with dilate/erode, all sized by the band. It returns the
// grayscale preview used for annotation and the binary mask used for contour
// extraction; the caller closes both.
func (p *Preprocessor) Mask(frame gocv.Mat, band calibration.HeightBand) (preview gocv.Mat, mask gocv.Mat, err error) {
	if frame.Empty() {
		return gocv.NewMat(), gocv.NewMat(), fmt.Errorf("mask: empty frame")
	}

	work := frame.Clone()
	defer work.Close()
	size := image.Pt(work.Cols(), work.Rows())
	black := color.RGBA{0, 0, 0, 0}
	for _, r := range p.Borders.Rects(size) {
		gocv.Rectangle(&work, r, black, -1)
	}

	preview = gocv.NewMat()
	switch work.Channels() {
	case 1:
		work.CopyTo(&preview)
	case 3:
		gocv.CvtColor(work, &preview, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(work, &preview, gocv.ColorBGRAToGray)
	default:
		preview.Close()
		return gocv.NewMat(), gocv.NewMat(), fmt.Errorf("mask: unsupported channel count %d", work.Channels())
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.Blur(preview, &blurred, image.Pt(band.GetBlur(), band.GetBlur()))

	mask = gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &mask, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary,
		band.GetDensity1(), float32(band.GetDensity2()))

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(band.GetKernel(), band.GetKernel()))
	defer kernel.Close()
	for i := 0; i < band.GetDilate(); i++ {
		gocv.Dilate(mask, &mask, kernel)
	}
	for i := 0; i < band.GetErode(); i++ {
		gocv.Erode(mask, &mask, kernel)
	}

	return preview, mask, nil
}
