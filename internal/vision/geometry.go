// Package vision turns an undistorted camera frame into a carton pose:
// border masking and thresholding, hole filtering, carton assembly and
// pixel-to-millimetre pose estimation.
package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Image rounds p to the nearest pixel.
func (p Point) Image() image.Point {
	return image.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// RectFit is a minimum-area rotated rectangle in OpenCV's convention:
// Angle in degrees, Width along the rotated x axis.
type RectFit struct {
	Center  Point
	Width   float64
	Height  float64
	Angle   float64
	Corners [4]Point
}

func rectFitFrom(r gocv.RotatedRect2f) RectFit {
	fit := RectFit{
		Center: Point{X: float64(r.Center.X), Y: float64(r.Center.Y)},
		Width:  float64(r.Width),
		Height: float64(r.Height),
		Angle:  r.Angle,
	}
	for i := 0; i < len(r.Points) && i < 4; i++ {
		fit.Corners[i] = Point{X: float64(r.Points[i].X), Y: float64(r.Points[i].Y)}
	}
	return fit
}

// Area returns Width*Height.
func (r RectFit) Area() float64 { return r.Width * r.Height }

// Sides measures the rectangle corner-to-corner and returns the long and
// short side lengths.
func (r RectFit) Sides() (long, short float64) {
	a := r.Corners[0].Distance(r.Corners[1])
	b := r.Corners[1].Distance(r.Corners[2])
	return math.Max(a, b), math.Min(a, b)
}

// sideRatio returns long/short of w and h. ok is false for degenerate rects.
func sideRatio(w, h float64) (ratio float64, ok bool) {
	long, short := math.Max(w, h), math.Min(w, h)
	if short <= 0 {
		return 0, false
	}
	return long / short, true
}

func cross(o, a, b image.Point) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// isConvexQuad reports whether the points, taken in order, form a strictly
// convex, non-self-intersecting quadrilateral. Collinear or repeated corners,
// reflex corners and bow-ties are rejected.
func isConvexQuad(pts [4]image.Point) bool {
	sign := 0
	for i := 0; i < 4; i++ {
		c := cross(pts[i], pts[(i+1)%4], pts[(i+2)%4])
		if c == 0 {
			return false
		}
		s := 1
		if c < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}
