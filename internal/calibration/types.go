// Package calibration holds the camera undistortion parameters and the two
// lookup tables that drive detection: height bands and carton profiles.
// A Store is immutable once built.
package calibration

import (
	"errors"
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
)

// RatioTolerance is the fixed half-width of the accepted aspect-ratio window
// around a profile's nominal ratio.
const RatioTolerance = 0.4

var (
	ErrCalibrationMissing = errors.New("calibration missing")
	ErrBandNotFound       = errors.New("no height band for height")
	ErrProfileNotFound    = errors.New("no carton profile for program/variant")
)

// Frame is the camera calibration loaded once at startup.
type Frame struct {
	CameraMatrix    *mat.Dense
	DistCoeffs      []float64
	NewCameraMatrix *mat.Dense
	ROI             image.Rectangle
}

// Validate checks matrix shapes and the region of interest.
func (f *Frame) Validate() error {
	if f == nil {
		return ErrCalibrationMissing
	}
	for name, m := range map[string]*mat.Dense{
		"camera_matrix":     f.CameraMatrix,
		"new_camera_matrix": f.NewCameraMatrix,
	} {
		if m == nil {
			return fmt.Errorf("%w: %s not set", ErrCalibrationMissing, name)
		}
		if r, c := m.Dims(); r != 3 || c != 3 {
			return fmt.Errorf("%s must be 3x3, got %dx%d", name, r, c)
		}
	}
	switch len(f.DistCoeffs) {
	case 4, 5, 8, 12, 14:
	default:
		return fmt.Errorf("dist_coeffs must have 4, 5, 8, 12 or 14 entries, got %d", len(f.DistCoeffs))
	}
	if f.ROI.Min.X < 0 || f.ROI.Min.Y < 0 {
		return fmt.Errorf("roi origin must be non-negative, got %v", f.ROI.Min)
	}
	return nil
}

// HeightBand selects detection parameters for a range of robot working heights.
type HeightBand struct {
	HeightMin float64 `json:"range_height_min"`
	HeightMax float64 `json:"range_height_max"`

	HoleAreaMin   float64 `json:"hole_area_min"`
	HoleAreaMax   float64 `json:"hole_area_max"`
	HoleRadiusMin float64 `json:"hole_radius_min"`
	HoleRadiusMax float64 `json:"hole_radius_max"`

	CartonAreaMin float64 `json:"carton_area_min"`
	CartonAreaMax float64 `json:"carton_area_max"`
	EpsilonMin    float64 `json:"epsilon_min"`
	EpsilonMax    float64 `json:"epsilon_max"`

	Exposure float64 `json:"exposure"`

	// Optional keys. Nil means unset; the Get* accessors supply defaults.
	Gain     *float64 `json:"gain,omitempty"`
	Blur     *int     `json:"blur,omitempty"`
	Density1 *int     `json:"density1,omitempty"` // adaptive threshold block size
	Density2 *float64 `json:"density2,omitempty"` // adaptive threshold constant
	Kernel   *int     `json:"kernel,omitempty"`
	Dilate   *int     `json:"dilate,omitempty"`
	Erode    *int     `json:"erode,omitempty"`

	Description string `json:"description"`
}

// IntPtr and Float64Ptr build optional band fields.
func IntPtr(v int) *int             { return &v }
func Float64Ptr(v float64) *float64 { return &v }

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat64(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetGain returns the sensor gain, or 0 to leave the station default.
func (b HeightBand) GetGain() float64 { return getFloat64(b.Gain, 0) }

// GetBlur returns the square blur kernel size. Default 5.
func (b HeightBand) GetBlur() int { return getInt(b.Blur, 5) }

// GetDensity1 returns the adaptive threshold block size. Default 11.
func (b HeightBand) GetDensity1() int { return getInt(b.Density1, 11) }

// GetDensity2 returns the adaptive threshold constant. Default 2.
func (b HeightBand) GetDensity2() float64 { return getFloat64(b.Density2, 2) }

// GetKernel returns the morphology kernel size. Default 3.
func (b HeightBand) GetKernel() int { return getInt(b.Kernel, 3) }

// GetDilate returns the dilation iteration count. Default 1; 0 skips dilation.
func (b HeightBand) GetDilate() int { return getInt(b.Dilate, 1) }

// GetErode returns the erosion iteration count. Default 1; 0 skips erosion.
func (b HeightBand) GetErode() int { return getInt(b.Erode, 1) }

// Contains reports whether h lies in [HeightMin, HeightMax).
func (b HeightBand) Contains(h float64) bool {
	return h >= b.HeightMin && h < b.HeightMax
}

// clone copies the optional fields so the result shares no pointers with b.
func (b HeightBand) clone() HeightBand {
	for _, p := range []**int{&b.Blur, &b.Density1, &b.Kernel, &b.Dilate, &b.Erode} {
		if *p != nil {
			*p = IntPtr(**p)
		}
	}
	for _, p := range []**float64{&b.Gain, &b.Density2} {
		if *p != nil {
			*p = Float64Ptr(**p)
		}
	}
	return b
}

// Validate checks the band's ranges and preprocessing parameters.
func (b HeightBand) Validate() error {
	if b.HeightMin >= b.HeightMax {
		return fmt.Errorf("band %q: height range [%g,%g) is empty", b.Description, b.HeightMin, b.HeightMax)
	}
	if b.HoleAreaMin >= b.HoleAreaMax || b.HoleRadiusMin >= b.HoleRadiusMax {
		return fmt.Errorf("band %q: hole bounds are empty", b.Description)
	}
	if b.CartonAreaMin >= b.CartonAreaMax || b.EpsilonMin >= b.EpsilonMax {
		return fmt.Errorf("band %q: carton bounds are empty", b.Description)
	}
	if d := b.GetDensity1(); d < 3 || d%2 == 0 {
		return fmt.Errorf("band %q: density1 must be odd and >= 3, got %d", b.Description, d)
	}
	if b.GetBlur() < 1 || b.GetKernel() < 1 {
		return fmt.Errorf("band %q: blur and kernel must be >= 1", b.Description)
	}
	if b.GetDilate() < 0 || b.GetErode() < 0 || b.GetGain() < 0 {
		return fmt.Errorf("band %q: dilate, erode and gain must not be negative", b.Description)
	}
	return nil
}

// HoleParams returns the hole filter bounds of the band.
func (b HeightBand) HoleParams() HoleParams {
	return HoleParams{
		MinArea:   b.HoleAreaMin,
		MaxArea:   b.HoleAreaMax,
		MinRadius: b.HoleRadiusMin,
		MaxRadius: b.HoleRadiusMax,
	}
}

// HoleParams bounds accepted hole contours. All bounds are exclusive.
type HoleParams struct {
	MinArea, MaxArea     float64
	MinRadius, MaxRadius float64
}

// CartonProfile is the expected carton geometry for a program/variant.
type CartonProfile struct {
	Program     int     `json:"program"`
	Variant     int     `json:"variant"`
	WidthMm     float64 `json:"width"`
	Ratio       float64 `json:"ratio"`
	Description string  `json:"description"`
}

// CartonParams bounds accepted carton quads. All bounds are exclusive.
type CartonParams struct {
	AreaMin, AreaMax       float64
	EpsilonMin, EpsilonMax float64
	RatioMin, RatioMax     float64
}

// CartonParamsFor combines a band's area/epsilon bounds with the profile's
// ratio window.
func CartonParamsFor(b HeightBand, p CartonProfile) CartonParams {
	return CartonParams{
		AreaMin:    b.CartonAreaMin,
		AreaMax:    b.CartonAreaMax,
		EpsilonMin: b.EpsilonMin,
		EpsilonMax: b.EpsilonMax,
		RatioMin:   p.Ratio - RatioTolerance,
		RatioMax:   p.Ratio + RatioTolerance,
	}
}

// IdentityFrame returns a distortion-free calibration for a w x h sensor with
// the principal point at the image center and no ROI crop.
func IdentityFrame(w, h int) *Frame {
	cam := mat.NewDense(3, 3, []float64{
		1000, 0, float64(w) / 2,
		0, 1000, float64(h) / 2,
		0, 0, 1,
	})
	return &Frame{
		CameraMatrix:    cam,
		DistCoeffs:      []float64{0, 0, 0, 0, 0},
		NewCameraMatrix: mat.DenseCopyOf(cam),
	}
}
