package vision

import (
	"image"
	"image/color"
	"math"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"github.com/banshee-data/cartonguide/internal/monitoring"
	"gocv.io/x/gocv"
)

const (
	// clusterWindowDeg is the angle window, either side, for holes that
	// belong to the same carton.
	clusterWindowDeg = 5.0
	// rectFitTolerance bounds |contourArea - minAreaRectArea| in px².
	rectFitTolerance = 3000.0
	// epsilonFactor scales the perimeter into the epsilon measure.
	epsilonFactor = 0.1
	// DefaultMaxCluster caps the arrangement search. 8 holes already means
	// 1680 ordered arrangements.
	DefaultMaxCluster = 8
)

var logger = monitoring.New("vision")

// ClusterByAngle groups holes whose normalized angles lie within ±5° of one
// another's and returns the largest group. On ties the group found last in
// scan order wins.
func ClusterByAngle(holes []Hole) []Hole {
	var best []Hole
	for _, h := range holes {
		var cluster []Hole
		for _, o := range holes {
			if math.Abs(o.Angle-h.Angle) <= clusterWindowDeg {
				cluster = append(cluster, o)
			}
		}
		if len(cluster) >= len(best) {
			best = cluster
		}
	}
	return best
}

// Quad is an accepted carton outline through four hole centers.
type Quad struct {
	Corners     [4]image.Point `json:"corners"`
	Rect        RectFit        `json:"-"`
	ContourArea float64        `json:"contour_area"`
	Perimeter   float64        `json:"perimeter"`
}

// Epsilon returns the perimeter-derived measure checked against the band.
func (q *Quad) Epsilon() float64 { return epsilonFactor * q.Perimeter }

// Mask stamps the filled quad onto a black single-channel Mat of the given
// size. The caller closes it.
func (q *Quad) Mask(size image.Point) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8U)
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{q.Corners[:]})
	defer pts.Close()
	gocv.FillPoly(&m, pts, color.RGBA{255, 255, 255, 0})
	return m
}

// Assembler searches hole clusters for a carton outline.
type Assembler struct {
	// MaxCluster rejects clusters above this size. Zero means
	// DefaultMaxCluster.
	MaxCluster int
}

func (a Assembler) maxCluster() int {
	if a.MaxCluster <= 0 {
		return DefaultMaxCluster
	}
	return a.MaxCluster
}

// Assemble clusters holes by angle and walks the ordered 4-point
// arrangements of the winning cluster in lexicographic index order. The
// first arrangement passing every geometric check is returned.
func (a Assembler) Assemble(holes []Hole, p calibration.CartonParams) (*Quad, bool) {
	cluster := ClusterByAngle(holes)
	if len(cluster) < 4 {
		return nil, false
	}
	if len(cluster) > a.maxCluster() {
		logger.Printf("cluster of %d holes exceeds limit %d, skipping", len(cluster), a.maxCluster())
		return nil, false
	}

	n := len(cluster)
	var idx [4]int
	for idx[0] = 0; idx[0] < n; idx[0]++ {
		for idx[1] = 0; idx[1] < n; idx[1]++ {
			if idx[1] == idx[0] {
				continue
			}
			for idx[2] = 0; idx[2] < n; idx[2]++ {
				if idx[2] == idx[0] || idx[2] == idx[1] {
					continue
				}
				for idx[3] = 0; idx[3] < n; idx[3]++ {
					if idx[3] == idx[0] || idx[3] == idx[1] || idx[3] == idx[2] {
						continue
					}
					var corners [4]image.Point
					for k, i := range idx {
						corners[k] = cluster[i].Center.Image()
					}
					if q, ok := checkArrangement(corners, p); ok {
						return q, true
					}
				}
			}
		}
	}
	return nil, false
}

// checkArrangement runs the carton checks on one ordered arrangement:
// convexity, rectangle fit, aspect ratio, area, then epsilon.
func checkArrangement(corners [4]image.Point, p calibration.CartonParams) (*Quad, bool) {
	if !isConvexQuad(corners) {
		return nil, false
	}

	contour := gocv.NewPointVectorFromPoints(corners[:])
	defer contour.Close()

	contourArea := gocv.ContourArea(contour)
	rect := rectFitFrom(gocv.MinAreaRect2(contour))
	if math.Abs(contourArea-rect.Area()) >= rectFitTolerance {
		return nil, false
	}

	ratio, ok := sideRatio(rect.Width, rect.Height)
	if !ok || ratio <= p.RatioMin || ratio >= p.RatioMax {
		return nil, false
	}

	if area := rect.Area(); area <= p.AreaMin || area >= p.AreaMax {
		return nil, false
	}

	q := &Quad{
		Corners:     corners,
		Rect:        rect,
		ContourArea: contourArea,
		Perimeter:   gocv.ArcLength(contour, true),
	}
	if eps := q.Epsilon(); eps <= p.EpsilonMin || eps >= p.EpsilonMax {
		return nil, false
	}
	return q, true
}
