package vision

import (
	"math"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"gocv.io/x/gocv"
)

// Hole shape limits shared by every height band.
const (
	holeRatioMin = 2.0
	holeRatioMax = 6.0
	holeAngleMax = 30.0
)

// Hole is a contour accepted as a carton registration hole.
type Hole struct {
	Center Point   `json:"center"`
	Angle  float64 `json:"angle"` // normalized, degrees in [0, 90)
	Area   float64 `json:"area"`
	Radius float64 `json:"radius"`
}

// HoleShape is the measured geometry of one contour.
type HoleShape struct {
	Center Point
	Area   float64 // contour area
	Radius float64 // minimum enclosing circle
	Width  float64 // min-area rect width
	Height float64 // min-area rect height
	Angle  float64 // min-area rect angle, degrees
}

// NormalizeAngle folds a min-area rect angle so that a slot's orientation
// reads the same regardless of which side OpenCV calls the width.
func NormalizeAngle(width, height, angle float64) float64 {
	if width < height {
		return math.Abs(angle - 90)
	}
	return math.Abs(angle)
}

// EvaluateHole applies the hole filter. Area, radius and side ratio must lie
// strictly inside their bounds and the normalized angle within [0, 30].
// Degenerate rectangles are rejected without error.
func EvaluateHole(s HoleShape, p calibration.HoleParams) (Hole, bool) {
	ratio, ok := sideRatio(s.Width, s.Height)
	if !ok {
		return Hole{}, false
	}
	angle := NormalizeAngle(s.Width, s.Height, s.Angle)

	switch {
	case s.Area <= p.MinArea || s.Area >= p.MaxArea:
		return Hole{}, false
	case s.Radius <= p.MinRadius || s.Radius >= p.MaxRadius:
		return Hole{}, false
	case ratio <= holeRatioMin || ratio >= holeRatioMax:
		return Hole{}, false
	case angle < 0 || angle > holeAngleMax:
		return Hole{}, false
	}

	return Hole{Center: s.Center, Angle: angle, Area: s.Area, Radius: s.Radius}, true
}

// DetectHoles measures every contour of mask, external and internal, and
// returns the ones EvaluateHole accepts in contour order.
func DetectHoles(mask gocv.Mat, p calibration.HoleParams) []Hole {
	contours := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	var holes []Hole
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if contour.Size() == 0 {
			continue
		}
		rect := gocv.MinAreaRect2(contour)
		_, _, radius := gocv.MinEnclosingCircle(contour)

		shape := HoleShape{
			Center: Point{X: float64(rect.Center.X), Y: float64(rect.Center.Y)},
			Area:   gocv.ContourArea(contour),
			Radius: float64(radius),
			Width:  float64(rect.Width),
			Height: float64(rect.Height),
			Angle:  rect.Angle,
		}
		if hole, ok := EvaluateHole(shape, p); ok {
			holes = append(holes, hole)
		}
	}
	return holes
}
