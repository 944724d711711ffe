package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cartonguide/internal/robot"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyStationConfig_Defaults(t *testing.T) {
	cfg := EmptyStationConfig()

	assert.Equal(t, ":8000", cfg.GetListen())
	assert.Equal(t, "fanuc", cfg.GetRobotType())
	assert.Equal(t, "192.168.125.100", cfg.GetRobotAddress())
	assert.Equal(t, robot.DefaultRegisters(), cfg.GetRegisters())
	assert.Equal(t, 2*time.Second, cfg.GetRobotTimeout())
	assert.Equal(t, 2, cfg.GetRobotReadRetries())
	assert.Equal(t, 5, cfg.GetBreakerThreshold())
	assert.Equal(t, 10*time.Second, cfg.GetBreakerCooldown())
	assert.Equal(t, "cv", cfg.GetCameraType())
	assert.Equal(t, 0, cfg.GetCameraDevice())
	assert.Equal(t, 1.0, cfg.GetCameraGain())
	assert.Equal(t, 8, cfg.GetMaxCluster())
	assert.Equal(t, time.Duration(0), cfg.GetCycleInterval())
	assert.Equal(t, 4000.0, cfg.GetFallbackHeightMm())
	assert.Equal(t, "picked.db", cfg.GetCounterDBPath())
}

func TestLoadStationConfig(t *testing.T) {
	path := writeConfig(t, "station.json", `{
  "listen": ":9090",
  "robot_address": "10.0.0.5",
  "robot_timeout": "750ms",
  "robot_read_retries": 0,
  "max_cluster": 6,
  "registers": {"program": 11, "variant": 12, "ready": 13, "height": 14, "x": 15, "y": 16, "angle": 17, "real_type": 1, "int_type": -1}
}`)

	cfg, err := LoadStationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.GetListen())
	assert.Equal(t, "10.0.0.5", cfg.GetRobotAddress())
	assert.Equal(t, 750*time.Millisecond, cfg.GetRobotTimeout())
	assert.Equal(t, 0, cfg.GetRobotReadRetries())
	assert.Equal(t, 6, cfg.GetMaxCluster())
	assert.Equal(t, 13, cfg.GetRegisters().Ready)
	// Unset fields keep their defaults.
	assert.Equal(t, "fanuc", cfg.GetRobotType())
}

func TestLoadStationConfig_Rejects(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "station.yaml", `{}`},
		{"bad json", "station.json", `{"listen":`},
		{"bad duration", "station.json", `{"robot_timeout": "soon"}`},
		{"negative interval", "station.json", `{"cycle_interval": "-1s"}`},
		{"small cluster", "station.json", `{"max_cluster": 3}`},
		{"zero breaker", "station.json", `{"breaker_threshold": 0}`},
		{"negative fallback", "station.json", `{"fallback_height_mm": -1}`},
		{"shared register", "station.json", `{"registers": {"program": 1, "variant": 1, "ready": 3, "height": 4, "x": 5, "y": 6, "angle": 7}}`},
		{"zero register", "station.json", `{"registers": {"program": 0, "variant": 2, "ready": 3, "height": 4, "x": 5, "y": 6, "angle": 7}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.file, tc.body)
			_, err := LoadStationConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadStationConfig_Missing(t *testing.T) {
	_, err := LoadStationConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadStationConfig_RepoDefaults(t *testing.T) {
	cfg, err := LoadStationConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	require.NoError(t, cfg.GetRegisters().Validate())
}
