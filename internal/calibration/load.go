package calibration

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

const maxTableSize = 4 * 1024 * 1024

type calibrationBlob struct {
	CameraMatrix    [][]float64 `json:"camera_matrix"`
	DistCoeffs      []float64   `json:"dist_coeffs"`
	NewCameraMatrix [][]float64 `json:"new_camera_matrix"`
	ROI             []int       `json:"roi"` // x, y, w, h
}

type profileEntry struct {
	Width       float64 `json:"width"`
	Ratio       float64 `json:"ratio"`
	Description string  `json:"description"`
}

func readJSON(path string, v interface{}) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("%s: must have .json extension, got %q", cleanPath, ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", cleanPath, err)
	}
	if info.Size() > maxTableSize {
		return fmt.Errorf("%s too large: %d bytes (max %d)", cleanPath, info.Size(), maxTableSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", cleanPath, err)
	}
	return nil
}

func toDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("matrix has no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// LoadFrame reads the calibration blob. Any failure wraps ErrCalibrationMissing
// since the station cannot run without it.
func LoadFrame(path string) (*Frame, error) {
	var blob calibrationBlob
	if err := readJSON(path, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibrationMissing, err)
	}

	cam, err := toDense(blob.CameraMatrix)
	if err != nil {
		return nil, fmt.Errorf("%w: camera_matrix: %v", ErrCalibrationMissing, err)
	}
	newCam, err := toDense(blob.NewCameraMatrix)
	if err != nil {
		return nil, fmt.Errorf("%w: new_camera_matrix: %v", ErrCalibrationMissing, err)
	}

	f := &Frame{
		CameraMatrix:    cam,
		DistCoeffs:      blob.DistCoeffs,
		NewCameraMatrix: newCam,
	}
	switch len(blob.ROI) {
	case 0:
	case 4:
		x, y, w, h := blob.ROI[0], blob.ROI[1], blob.ROI[2], blob.ROI[3]
		f.ROI = image.Rect(x, y, x+w, y+h)
	default:
		return nil, fmt.Errorf("roi must be [x, y, w, h], got %d values", len(blob.ROI))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadBands reads the height-band table, preserving file order.
func LoadBands(path string) ([]HeightBand, error) {
	var bands []HeightBand
	if err := readJSON(path, &bands); err != nil {
		return nil, err
	}
	return bands, nil
}

// LoadProfiles reads the nested program -> variant -> profile table.
func LoadProfiles(path string) ([]CartonProfile, error) {
	var table map[string]map[string]profileEntry
	if err := readJSON(path, &table); err != nil {
		return nil, err
	}

	var profiles []CartonProfile
	for programKey, variants := range table {
		program, err := strconv.Atoi(programKey)
		if err != nil {
			return nil, fmt.Errorf("program id %q is not an integer", programKey)
		}
		for variantKey, e := range variants {
			variant, err := strconv.Atoi(variantKey)
			if err != nil {
				return nil, fmt.Errorf("variant id %q of program %d is not an integer", variantKey, program)
			}
			profiles = append(profiles, CartonProfile{
				Program:     program,
				Variant:     variant,
				WidthMm:     e.Width,
				Ratio:       e.Ratio,
				Description: e.Description,
			})
		}
	}
	return profiles, nil
}

// Load reads all three calibration files and builds a Store.
func Load(calibrationPath, bandsPath, profilesPath string) (*Store, error) {
	frame, err := LoadFrame(calibrationPath)
	if err != nil {
		return nil, err
	}
	bands, err := LoadBands(bandsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load height bands: %w", err)
	}
	profiles, err := LoadProfiles(profilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load carton profiles: %w", err)
	}
	return NewStore(frame, bands, profiles)
}
