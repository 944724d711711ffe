package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/banshee-data/cartonguide/internal/robot"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats/scalar"
)

// poseDecimals is the rounding applied to every published pose field.
const poseDecimals = 5

var ErrDegenerateRect = errors.New("degenerate carton rectangle")

// EstimatePose refits a rectangle to the largest outline on quadMask and
// converts it to a robot-frame pose for a carton widthMm wide.
func EstimatePose(quadMask gocv.Mat, widthMm float64) (robot.Pose, error) {
	rect, err := RefitRect(quadMask)
	if err != nil {
		return robot.Pose{}, fmt.Errorf("estimate pose: %w", err)
	}
	return PoseFromRect(rect, image.Pt(quadMask.Cols(), quadMask.Rows()), widthMm)
}

// RefitRect fits a minimum-area rectangle to the largest external outline on
// mask.
func RefitRect(mask gocv.Mat) (RectFit, error) {
	if mask.Empty() {
		return RectFit{}, errors.New("empty mask")
	}
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); best < 0 || a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return RectFit{}, fmt.Errorf("%w: no outline on mask", ErrDegenerateRect)
	}
	return rectFitFrom(gocv.MinAreaRect2(contours.At(best))), nil
}

// PoseFromRect converts a fitted rectangle into millimetres. The long side
// measures widthMm. The image-center offset maps to the robot frame as
// X = -vertical, Y = horizontal.
func PoseFromRect(rect RectFit, frame image.Point, widthMm float64) (robot.Pose, error) {
	long, short := rect.Sides()
	if short <= 0 {
		return robot.Pose{}, ErrDegenerateRect
	}
	mmPerPx := widthMm / long

	dx := rect.Center.X - float64(frame.X)/2
	dy := rect.Center.Y - float64(frame.Y)/2

	return robot.Pose{
		X:     scalar.Round(-dy*mmPerPx, poseDecimals),
		Y:     scalar.Round(dx*mmPerPx, poseDecimals),
		Angle: CorrectAngle(rect.Angle, rect.Width, rect.Height),
	}, nil
}

// CorrectAngle maps a min-area rect angle into the robot's rotation
// convention. Exact readings of ±90 are a fitting artifact and become 0.
func CorrectAngle(raw, width, height float64) float64 {
	if raw == 90 || raw == -90 {
		return 0
	}
	var a float64
	if width > height {
		a = -(raw + 90)
	} else {
		a = -raw
	}
	return scalar.Round(a, poseDecimals)
}
