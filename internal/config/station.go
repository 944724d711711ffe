package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/cartonguide/internal/robot"
)

// DefaultConfigPath is the path to the station defaults file shipped with the repo.
const DefaultConfigPath = "config/station.defaults.json"

// StationConfig is the root configuration of a pick station. Fields are
// pointers so a partial file only overrides what it names; the Get* methods
// supply defaults for everything else.
type StationConfig struct {
	Listen *string `json:"listen,omitempty"`

	// Robot link
	RobotType        *string      `json:"robot_type,omitempty"`
	RobotAddress     *string      `json:"robot_address,omitempty"`
	Registers        *robot.Registers `json:"registers,omitempty"`
	RobotTimeout     *string      `json:"robot_timeout,omitempty"` // duration string like "2s"
	RobotReadRetries *int         `json:"robot_read_retries,omitempty"`
	BreakerThreshold *int         `json:"breaker_threshold,omitempty"`
	BreakerCooldown  *string      `json:"breaker_cooldown,omitempty"`

	// Camera
	CameraType   *string  `json:"camera_type,omitempty"`
	CameraDevice *int     `json:"camera_device,omitempty"`
	StillImage   *string  `json:"still_image,omitempty"`
	CameraGain   *float64 `json:"camera_gain,omitempty"`

	// Data files
	CalibrationPath *string `json:"calibration_path,omitempty"`
	BandsPath       *string `json:"bands_path,omitempty"`
	ProfilesPath    *string `json:"profiles_path,omitempty"`
	CounterDBPath   *string `json:"counter_db_path,omitempty"`

	// Processing
	MaxCluster       *int     `json:"max_cluster,omitempty"`
	CycleInterval    *string  `json:"cycle_interval,omitempty"`
	FallbackHeightMm *float64 `json:"fallback_height_mm,omitempty"`
}

// EmptyStationConfig returns a StationConfig with all fields unset.
func EmptyStationConfig() *StationConfig {
	return &StationConfig{}
}

// LoadStationConfig loads a StationConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadStationConfig(path string) (*StationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyStationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *StationConfig) Validate() error {
	for name, d := range map[string]*string{
		"robot_timeout":    c.RobotTimeout,
		"breaker_cooldown": c.BreakerCooldown,
		"cycle_interval":   c.CycleInterval,
	} {
		if d == nil || *d == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *d)
		}
	}

	if c.RobotReadRetries != nil && *c.RobotReadRetries < 0 {
		return fmt.Errorf("robot_read_retries must be non-negative, got %d", *c.RobotReadRetries)
	}
	if c.BreakerThreshold != nil && *c.BreakerThreshold < 1 {
		return fmt.Errorf("breaker_threshold must be at least 1, got %d", *c.BreakerThreshold)
	}
	if c.MaxCluster != nil && *c.MaxCluster < 4 {
		return fmt.Errorf("max_cluster must be at least 4, got %d", *c.MaxCluster)
	}
	if c.FallbackHeightMm != nil && *c.FallbackHeightMm <= 0 {
		return fmt.Errorf("fallback_height_mm must be positive, got %f", *c.FallbackHeightMm)
	}
	if c.Registers != nil {
		if err := c.Registers.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetListen returns the HTTP listen address.
func (c *StationConfig) GetListen() string { return getString(c.Listen, ":8000") }

// GetRobotType returns the robot controller family.
func (c *StationConfig) GetRobotType() string { return getString(c.RobotType, "fanuc") }

// GetRobotAddress returns the robot controller host (and optional port).
func (c *StationConfig) GetRobotAddress() string {
	return getString(c.RobotAddress, "192.168.125.100")
}

// GetRegisters returns the configured register map or the default layout.
func (c *StationConfig) GetRegisters() robot.Registers {
	if c.Registers == nil {
		return robot.DefaultRegisters()
	}
	return *c.Registers
}

// GetRobotTimeout bounds every robot HTTP call.
func (c *StationConfig) GetRobotTimeout() time.Duration {
	return getDuration(c.RobotTimeout, 2*time.Second)
}

// GetRobotReadRetries returns how many times a failed register read is retried.
func (c *StationConfig) GetRobotReadRetries() int {
	if c.RobotReadRetries == nil {
		return 2
	}
	return *c.RobotReadRetries
}

// GetBreakerThreshold returns the consecutive failures that open the breaker.
func (c *StationConfig) GetBreakerThreshold() int {
	if c.BreakerThreshold == nil {
		return 5
	}
	return *c.BreakerThreshold
}

// GetBreakerCooldown returns how long an open breaker rejects calls.
func (c *StationConfig) GetBreakerCooldown() time.Duration {
	return getDuration(c.BreakerCooldown, 10*time.Second)
}

// GetCameraType returns the camera family.
func (c *StationConfig) GetCameraType() string { return getString(c.CameraType, "cv") }

// GetCameraDevice returns the video device index.
func (c *StationConfig) GetCameraDevice() int {
	if c.CameraDevice == nil {
		return 0
	}
	return *c.CameraDevice
}

// GetStillImage returns the image replayed by the still camera.
func (c *StationConfig) GetStillImage() string {
	return getString(c.StillImage, "testdata/carton.png")
}

// GetCameraGain returns the gain applied when a height band does not set one.
func (c *StationConfig) GetCameraGain() float64 {
	if c.CameraGain == nil {
		return 1.0
	}
	return *c.CameraGain
}

// GetCalibrationPath returns the calibration blob path.
func (c *StationConfig) GetCalibrationPath() string {
	return getString(c.CalibrationPath, "config/calibration.json")
}

// GetBandsPath returns the height-band table path.
func (c *StationConfig) GetBandsPath() string {
	return getString(c.BandsPath, "config/height_bands.json")
}

// GetProfilesPath returns the carton profile table path.
func (c *StationConfig) GetProfilesPath() string {
	return getString(c.ProfilesPath, "config/cartons.json")
}

// GetCounterDBPath returns the sqlite file holding the pick counter.
func (c *StationConfig) GetCounterDBPath() string {
	return getString(c.CounterDBPath, "picked.db")
}

// GetMaxCluster caps the hole cluster handed to the arrangement search.
func (c *StationConfig) GetMaxCluster() int {
	if c.MaxCluster == nil {
		return 8
	}
	return *c.MaxCluster
}

// GetCycleInterval returns the pause between processing cycles.
func (c *StationConfig) GetCycleInterval() time.Duration {
	return getDuration(c.CycleInterval, 0)
}

// GetFallbackHeightMm returns the height used when the robot reports 0.
func (c *StationConfig) GetFallbackHeightMm() float64 {
	if c.FallbackHeightMm == nil {
		return 4000
	}
	return *c.FallbackHeightMm
}
