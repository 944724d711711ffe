package vision

import (
	"image"
	"testing"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"github.com/banshee-data/cartonguide/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testBand() calibration.HeightBand {
	return calibration.HeightBand{
		HeightMin: 0, HeightMax: 10000,
		HoleAreaMin: 150, HoleAreaMax: 2000,
		HoleRadiusMin: 10, HoleRadiusMax: 40,
		CartonAreaMin: 60000, CartonAreaMax: 100000,
		EpsilonMin: 100, EpsilonMax: 140,
		Blur:        calibration.IntPtr(3),
		Density1:    calibration.IntPtr(15),
		Density2:    calibration.Float64Ptr(5),
		Kernel:      calibration.IntPtr(3),
		Dilate:      calibration.IntPtr(1),
		Erode:       calibration.IntPtr(1),
		Description: "synthetic",
	}
}

func TestBorders_Rects(t *testing.T) {
	size := image.Pt(1000, 700)
	rects := DefaultBorders.Rects(size)
	require.Len(t, rects, 4)
	assert.Equal(t, image.Rect(0, 0, 1000, 150), rects[0])
	assert.Equal(t, image.Rect(0, 0, 50, 700), rects[1])
	assert.Equal(t, image.Rect(950, 0, 1000, 700), rects[2])
	assert.Equal(t, image.Rect(0, 600, 1000, 700), rects[3])
	assert.Equal(t, image.Rect(50, 150, 950, 600), DefaultBorders.Inner(size))
}

func TestMask_BlackensBordersInPreview(t *testing.T) {
	frame := testutil.CartonFrame(t)
	defer frame.Close()

	preview, mask, err := NewPreprocessor().Mask(frame, testBand())
	require.NoError(t, err)
	defer preview.Close()
	defer mask.Close()

	assert.Equal(t, 1, preview.Channels())
	assert.Equal(t, 1, mask.Channels())
	assert.Equal(t, frame.Cols(), mask.Cols())
	assert.Equal(t, frame.Rows(), mask.Rows())

	assert.Equal(t, uint8(0), preview.GetUCharAt(10, 500), "top border")
	assert.Equal(t, uint8(0), preview.GetUCharAt(650, 500), "bottom border")
	assert.Equal(t, uint8(testutil.Background), preview.GetUCharAt(350, 500), "inner area")

	c := testutil.CartonCorners[0]
	assert.Equal(t, uint8(0), mask.GetUCharAt(c.Y, c.X), "slot is dark in the mask")
	assert.Equal(t, uint8(255), mask.GetUCharAt(350, 500), "background is set in the mask")
}

func TestMask_EmptyFrame(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, _, err := NewPreprocessor().Mask(empty, testBand())
	assert.Error(t, err)
}

func TestAnnotate_ReturnsColourFrame(t *testing.T) {
	frame := testutil.CartonFrame(t)
	defer frame.Close()
	preview, mask, err := NewPreprocessor().Mask(frame, testBand())
	require.NoError(t, err)
	defer preview.Close()
	defer mask.Close()

	out := Annotate(preview, DefaultBorders, Overlay{
		Holes: DetectHoles(mask, testHoleParams),
		Lines: []string{"height 4000mm", "no carton"},
	})
	defer out.Close()

	assert.Equal(t, 3, out.Channels())
	assert.Equal(t, preview.Cols(), out.Cols())
	assert.Equal(t, preview.Rows(), out.Rows())
}

func TestAnnotate_EmptyPreview(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	out := Annotate(empty, DefaultBorders, Overlay{})
	defer out.Close()
	assert.True(t, out.Empty())
}
