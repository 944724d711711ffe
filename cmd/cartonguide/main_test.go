package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cartonguide/internal/api"
	"github.com/banshee-data/cartonguide/internal/camera"
	"github.com/banshee-data/cartonguide/internal/config"
	"github.com/banshee-data/cartonguide/internal/monitoring"
	"github.com/banshee-data/cartonguide/internal/robot"
)

func init() {
	monitoring.SetLogger(nil)
}

func ptr[T any](v T) *T { return &v }

func devConfig(t *testing.T) *config.StationConfig {
	t.Helper()
	return &config.StationConfig{
		CalibrationPath: ptr("../../config/calibration.json"),
		BandsPath:       ptr("../../config/height_bands.json"),
		ProfilesPath:    ptr("../../config/cartons.json"),
		StillImage:      ptr("../../testdata/carton.png"),
		CounterDBPath:   ptr(filepath.Join(t.TempDir(), "picked.db")),
	}
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultConfigPath, *configPath)
	assert.Equal(t, "", *listen)
	assert.False(t, *devMode)
	assert.False(t, *disableRobot)
}

func TestOptions(t *testing.T) {
	cfg := config.EmptyStationConfig()
	tests := []struct {
		opts       options
		wantRobot  string
		wantCamera string
	}{
		{options{}, robot.TypeFanuc, camera.TypeCV},
		{options{disableRobot: true}, robot.TypeDisabled, camera.TypeCV},
		{options{dev: true}, robot.TypeDisabled, camera.TypeStill},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantRobot, tt.opts.robotType(cfg))
		assert.Equal(t, tt.wantCamera, tt.opts.cameraType(cfg))
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("../../" + config.DefaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.GetListen())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "only the default path may be absent")

	cfg, err = loadConfig("")
	require.NoError(t, err)
	if diff := cmp.Diff(config.EmptyStationConfig(), cfg); diff != "" {
		t.Errorf("empty path config mismatch (-want +got):\n%s", diff)
	}
}

func TestNewStation_UnsupportedRobot(t *testing.T) {
	cfg := devConfig(t)
	cfg.RobotType = ptr("kuka")
	cfg.CameraType = ptr(camera.TypeStill)
	_, err := newStation(cfg, options{})
	assert.ErrorIs(t, err, robot.ErrUnsupportedRobot)
}

func TestNewStation_MissingCalibration(t *testing.T) {
	cfg := devConfig(t)
	cfg.CalibrationPath = ptr(filepath.Join(t.TempDir(), "nope.json"))
	_, err := newStation(cfg, options{dev: true})
	assert.Error(t, err)
}

func TestStationDevModeEndToEnd(t *testing.T) {
	if _, err := os.Stat("../../testdata/carton.png"); err != nil {
		t.Skip("still image fixture not present")
	}
	s, err := newStation(devConfig(t), options{dev: true})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.proc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(4000), res.HeightMm, "disabled robot reads the height sentinel")
	assert.Equal(t, "mid stack", res.Band)
	assert.Equal(t, 4, res.Holes)
	assert.False(t, res.Published)

	n, err := s.counter.PickCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	h := s.handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frame.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dev_mode":true`)

	var status api.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	var bands []string
	for _, b := range status.Station.Bands {
		bands = append(bands, b.Description)
	}
	assert.Equal(t, []string{"top of pallet", "mid stack", "floor level"}, bands)
	require.Len(t, status.Station.Profiles, 4)
	assert.Equal(t, 0, status.Station.Profiles[0].Program)
	assert.Equal(t, 400.0, status.Station.Profiles[1].WidthMm)
}
