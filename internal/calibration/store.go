package calibration

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

type profileKey struct {
	program, variant int
}

// Store answers the per-cycle calibration questions: how to undistort a raw
// frame, which band applies at a height, and which profile a program/variant
// names. Close releases the native matrices.
type Store struct {
	frame *Frame

	cameraMatrix    gocv.Mat
	distCoeffs      gocv.Mat
	newCameraMatrix gocv.Mat

	bands    []HeightBand
	profiles map[profileKey]CartonProfile
}

// NewStore validates the inputs and prepares the native undistortion matrices.
// A nil frame fails with ErrCalibrationMissing.
func NewStore(frame *Frame, bands []HeightBand, profiles []CartonProfile) (*Store, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		frame:    frame,
		bands:    make([]HeightBand, 0, len(bands)),
		profiles: make(map[profileKey]CartonProfile, len(profiles)),
	}
	for i, b := range bands {
		b = b.clone()
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
		s.bands = append(s.bands, b)
	}
	for _, p := range profiles {
		if p.WidthMm <= 0 || p.Ratio <= 0 {
			return nil, fmt.Errorf("profile %d/%d: width and ratio must be positive", p.Program, p.Variant)
		}
		s.profiles[profileKey{p.Program, p.Variant}] = p
	}

	s.cameraMatrix = denseToMat(frame.CameraMatrix)
	s.newCameraMatrix = denseToMat(frame.NewCameraMatrix)
	s.distCoeffs = gocv.NewMatWithSize(1, len(frame.DistCoeffs), gocv.MatTypeCV64F)
	for i, v := range frame.DistCoeffs {
		s.distCoeffs.SetDoubleAt(0, i, v)
	}
	return s, nil
}

func denseToMat(m *mat.Dense) gocv.Mat {
	r, c := m.Dims()
	out := gocv.NewMatWithSize(r, c, gocv.MatTypeCV64F)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.SetDoubleAt(i, j, m.At(i, j))
		}
	}
	return out
}

// Close frees the native matrices.
func (s *Store) Close() error {
	s.cameraMatrix.Close()
	s.distCoeffs.Close()
	s.newCameraMatrix.Close()
	return nil
}

// Undistort removes lens distortion from raw and crops the result to the
// calibrated region of interest. The caller owns the returned Mat.
func (s *Store) Undistort(raw gocv.Mat) (gocv.Mat, error) {
	if raw.Empty() {
		return gocv.NewMat(), fmt.Errorf("undistort: empty frame")
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Undistort(raw, &dst, s.cameraMatrix, s.distCoeffs, s.newCameraMatrix)

	bounds := image.Rect(0, 0, dst.Cols(), dst.Rows())
	roi := s.frame.ROI
	if roi.Empty() {
		return dst.Clone(), nil
	}
	if !roi.In(bounds) {
		return gocv.NewMat(), fmt.Errorf("undistort: roi %v outside frame %v", roi, bounds)
	}
	region := dst.Region(roi)
	defer region.Close()
	return region.Clone(), nil
}

// LookupBand returns the first band, in table order, whose range contains
// heightMm. Bands may overlap; order decides precedence.
func (s *Store) LookupBand(heightMm float64) (HeightBand, error) {
	for _, b := range s.bands {
		if b.Contains(heightMm) {
			return b.clone(), nil
		}
	}
	return HeightBand{}, fmt.Errorf("%w %g", ErrBandNotFound, heightMm)
}

// LookupProfile returns the carton profile for program/variant.
func (s *Store) LookupProfile(program, variant int) (CartonProfile, error) {
	p, ok := s.profiles[profileKey{program, variant}]
	if !ok {
		return CartonProfile{}, fmt.Errorf("%w %d/%d", ErrProfileNotFound, program, variant)
	}
	return p, nil
}

// Bands returns a copy of the band table in lookup order.
func (s *Store) Bands() []HeightBand {
	out := make([]HeightBand, len(s.bands))
	for i, b := range s.bands {
		out[i] = b.clone()
	}
	return out
}

// Profiles returns every profile ordered by program then variant.
func (s *Store) Profiles() []CartonProfile {
	out := make([]CartonProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Program != out[j].Program {
			return out[i].Program < out[j].Program
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}
