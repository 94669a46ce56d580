package glplayback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  uri: rtsp://192.168.1.100/stream
  audio: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "rtsp://192.168.1.100/stream", cfg.Media.URI)
	assert.False(t, cfg.Media.Audio)
	assert.True(t, cfg.Media.Sync, "default kept")
	assert.Equal(t, 1280, cfg.Media.Width)
	assert.Equal(t, 720, cfg.Media.Height)
	assert.Equal(t, 3*time.Second, cfg.TeardownTimeout())

	src := cfg.Source()
	assert.Equal(t, Source{URI: "rtsp://192.168.1.100/stream", Width: 1280, Height: 720, Audio: false, Sync: true}, src)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
session_id: lobby-cam
teardown_timeout_ms: 250
source:
  uri: /videos/clip.mp4
  width: 640
  height: 360
  sync: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "lobby-cam", cfg.SessionID)
	assert.Equal(t, 250*time.Millisecond, cfg.TeardownTimeout())
	assert.Equal(t, 640, cfg.Media.Width)
	assert.False(t, cfg.Media.Sync)
	assert.True(t, cfg.Media.Audio)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "source: [unclosed"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "source:\n  width: 640\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Media.URI = "file:///clip.mp4"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing uri", func(c *Config) { c.Media.URI = "" }, true},
		{"blank uri", func(c *Config) { c.Media.URI = "   " }, true},
		{"width too small", func(c *Config) { c.Media.Width = 8 }, true},
		{"width too large", func(c *Config) { c.Media.Width = 8000 }, true},
		{"height too small", func(c *Config) { c.Media.Height = 0 }, true},
		{"minimum size", func(c *Config) { c.Media.Width, c.Media.Height = 16, 16 }, false},
		{"8K", func(c *Config) { c.Media.Width, c.Media.Height = 7680, 4320 }, false},
		{"zero teardown timeout", func(c *Config) { c.TeardownTimeoutMS = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
