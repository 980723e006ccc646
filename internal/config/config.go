// Package config loads daemon settings from an optional YAML file.
// Command-line flags that are explicitly set override file values; see cmd/stride-sync.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/stride-sync/internal/cadence"
	"github.com/sweeney/stride-sync/internal/motion"
	"github.com/sweeney/stride-sync/internal/tempo"
)

// Motion source kinds.
const (
	SourceSerial = "serial"
	SourceSim    = "sim"
	SourceStdin  = "stdin"
	SourceNone   = "none"
)

// SourceConfig selects and parameterizes the accelerometer input.
type SourceConfig struct {
	Kind   string             `yaml:"kind"`
	Device string             `yaml:"device"`
	Serial motion.PortOptions `yaml:"serial"`
	// SimStepsPerMin is the step rate of the synthetic walker.
	SimStepsPerMin float64       `yaml:"sim_steps_per_min"`
	SimInterval    time.Duration `yaml:"sim_interval"`
	// Buffer is the capacity of the reading channel between pump and loop.
	Buffer int `yaml:"buffer"`
}

// TempoConfig configures the track tempo poller.
type TempoConfig struct {
	// URL is the player backend base URL; empty disables polling.
	URL          string        `yaml:"url"`
	Auth         bool          `yaml:"auth"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// MQTTConfig configures the event publisher.
type MQTTConfig struct {
	// Broker is the broker URL; empty disables publishing.
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// Config is the complete daemon configuration.
type Config struct {
	Cadence   cadence.Config `yaml:"cadence"`
	Source    SourceConfig   `yaml:"source"`
	Tempo     TempoConfig    `yaml:"tempo"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Heartbeat time.Duration  `yaml:"heartbeat"`
	HTTPAddr  string         `yaml:"http_addr"`
	// DB is the SQLite session database path; empty disables recording.
	DB string `yaml:"db"`
	// LEDPin is the BCM pin of the high-sync LED; negative disables it.
	LEDPin int `yaml:"led_pin"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Cadence: cadence.DefaultConfig(),
		Source: SourceConfig{
			Kind:           SourceSim,
			Device:         "/dev/ttyUSB0",
			SimStepsPerMin: 160,
			SimInterval:    20 * time.Millisecond,
			Buffer:         512,
		},
		Tempo: TempoConfig{
			URL:          "http://127.0.0.1:8888",
			PollInterval: tempo.DefaultPollInterval,
			Timeout:      4 * time.Second,
			MaxRetries:   3,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://127.0.0.1:1883",
			ClientID: "stride-sync",
		},
		Heartbeat: 15 * time.Minute,
		HTTPAddr:  ":8080",
		DB:        "stride-sync.db",
		LEDPin:    -1,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Cadence.FrameSize <= 0:
		return fmt.Errorf("cadence.frame_size must be positive, got %d", c.Cadence.FrameSize)
	case c.Cadence.SmoothingWindow <= 0:
		return fmt.Errorf("cadence.smoothing_window must be positive, got %d", c.Cadence.SmoothingWindow)
	case c.Cadence.StationaryVariance < 0:
		return fmt.Errorf("cadence.stationary_variance must not be negative, got %v", c.Cadence.StationaryVariance)
	case c.Cadence.ThresholdK < 0:
		return fmt.Errorf("cadence.threshold_k must not be negative, got %v", c.Cadence.ThresholdK)
	case c.Cadence.HighSyncScore < 0 || c.Cadence.HighSyncScore > 100:
		return fmt.Errorf("cadence.high_sync_score must be within 0..100, got %v", c.Cadence.HighSyncScore)
	case c.Tempo.PollInterval <= 0:
		return fmt.Errorf("tempo.poll_interval must be positive, got %v", c.Tempo.PollInterval)
	case c.Tempo.Timeout <= 0:
		return fmt.Errorf("tempo.timeout must be positive, got %v", c.Tempo.Timeout)
	case c.Heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	}

	switch c.Source.Kind {
	case SourceSerial:
		if c.Source.Device == "" {
			return errors.New("source.device is required for the serial source")
		}
		if _, err := c.Source.Serial.Normalize(); err != nil {
			return fmt.Errorf("source.serial: %w", err)
		}
	case SourceSim:
		if c.Source.SimStepsPerMin <= 0 {
			return fmt.Errorf("source.sim_steps_per_min must be positive, got %v", c.Source.SimStepsPerMin)
		}
		if c.Source.SimInterval <= 0 {
			return fmt.Errorf("source.sim_interval must be positive, got %v", c.Source.SimInterval)
		}
	case SourceStdin, SourceNone:
	default:
		return fmt.Errorf("unknown source.kind %q (want serial, sim, stdin or none)", c.Source.Kind)
	}
	return nil
}
