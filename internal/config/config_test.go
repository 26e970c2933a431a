package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	c := New()

	require.NoError(t, c.Parse(nil))
	assert.Equal(t, uint16(0x0006), c.IntervalThreshold)
	assert.Equal(t, uint16(0x0064), c.SupervisionTimeout)
	assert.Equal(t, 500*time.Millisecond, c.BlinkPeriod)
}

func TestFlags(t *testing.T) {
	c := New()

	err := c.Parse([]string{
		"-dry-run",
		"-backend", "sim",
		"-interval-threshold", "0x000c",
		"-disabled-services", "0x40, 0x50",
		"-fast-window", "5s",
		"-park-command", "hibernate",
	})

	require.NoError(t, err)
	assert.True(t, c.DryRun)
	assert.Equal(t, "sim", c.Backend)
	assert.Equal(t, uint16(0x000c), c.IntervalThreshold)
	assert.Equal(t, []uint16{0x40, 0x50}, c.DisabledServices)
	assert.Equal(t, 5*time.Second, c.FastWindow)
	assert.Equal(t, "hibernate", c.ParkCommand)
}

func TestYAMLOverlayWithFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ble-ota.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis_host: redis.local
local_name: Scooter-OTA
slow_window: 2m
interval_threshold: 0x0010
disabled_services: [0x40]
`), 0o644))

	c := New()
	require.NoError(t, c.Parse([]string{"-config", path, "-local-name", "Override"}))

	assert.Equal(t, "redis.local", c.RedisHost)
	assert.Equal(t, "Override", c.LocalName)
	assert.Equal(t, 2*time.Minute, c.SlowWindow)
	assert.Equal(t, uint16(0x0010), c.IntervalThreshold)
	assert.Equal(t, []uint16{0x40}, c.DisabledServices)
}

func TestMissingConfigFile(t *testing.T) {
	c := New()

	assert.Error(t, c.Parse([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"redis port", func(c *Config) { c.RedisPort = 0 }},
		{"backend", func(c *Config) { c.Backend = "hci" }},
		{"park command", func(c *Config) { c.ParkCommand = "poweroff" }},
		{"blink period", func(c *Config) { c.BlinkPeriod = 0 }},
		{"intervals", func(c *Config) { c.MinInterval = 0x20; c.MaxInterval = 0x10 }},
		{"windows", func(c *Config) { c.SlowWindow = 0 }},
		{"diagnostics", func(c *Config) { c.DiagnosticsMax = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestBadHexFlag(t *testing.T) {
	c := New()

	assert.Error(t, c.Parse([]string{"-latency", "0x1ffff"}))
}
