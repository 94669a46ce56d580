package glplayback

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	minDimension = 16
	maxDimension = 7680

	defaultWidth           = 1280
	defaultHeight          = 720
	defaultTeardownTimeout = 3000 // ms
)

// Config is the player configuration.
type Config struct {
	SessionID         string       `yaml:"session_id"`          // generated when empty
	TeardownTimeoutMS int          `yaml:"teardown_timeout_ms"` // bounded worker join (default: 3000)
	Media             SourceConfig `yaml:"source"`
}

// SourceConfig selects the media and shapes the video chain
type SourceConfig struct {
	URI    string `yaml:"uri"`    // file path, file://, rtsp://, udp://, http(s)://
	Width  int    `yaml:"width"`  // scale target
	Height int    `yaml:"height"` // scale target
	Audio  bool   `yaml:"audio"`  // build the audio chain
	Sync   bool   `yaml:"sync"`   // frame sink syncs on the pipeline clock
}

// DefaultConfig returns a configuration with every optional field set.
// URI is left empty and must be provided.
func DefaultConfig() Config {
	return Config{
		TeardownTimeoutMS: defaultTeardownTimeout,
		Media: SourceConfig{
			Width:  defaultWidth,
			Height: defaultHeight,
			Audio:  true,
			Sync:   true,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gl-playback: failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("gl-playback: failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration (fail-fast).
func (c Config) Validate() error {
	if c.TeardownTimeoutMS <= 0 {
		return fmt.Errorf("%w: teardown_timeout_ms must be > 0, got %d", ErrInvalidConfig, c.TeardownTimeoutMS)
	}
	return validateSource(c.Source())
}

// TeardownTimeout is the bounded wait for the worker during Teardown.
func (c Config) TeardownTimeout() time.Duration {
	return time.Duration(c.TeardownTimeoutMS) * time.Millisecond
}

// Source converts the source block to the descriptor Build takes.
func (c Config) Source() Source {
	return Source{
		URI:    c.Media.URI,
		Width:  c.Media.Width,
		Height: c.Media.Height,
		Audio:  c.Media.Audio,
		Sync:   c.Media.Sync,
	}
}

func validateSource(src Source) error {
	if strings.TrimSpace(src.URI) == "" {
		return fmt.Errorf("%w: source uri is required", ErrInvalidConfig)
	}
	if src.Width < minDimension || src.Width > maxDimension {
		return fmt.Errorf("%w: width %d out of range %d-%d", ErrInvalidConfig, src.Width, minDimension, maxDimension)
	}
	if src.Height < minDimension || src.Height > maxDimension {
		return fmt.Errorf("%w: height %d out of range %d-%d", ErrInvalidConfig, src.Height, minDimension, maxDimension)
	}
	return nil
}
