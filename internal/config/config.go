// Package config loads the safety layer's tuning parameters from JSON with
// optional environment overrides. Fields are pointers so a partial config
// file only overrides what it names; the Get* accessors supply defaults for
// everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultConfigPath is where the appliance looks for its config when the
// -config flag is not given.
const DefaultConfigPath = "config/safety.json"

// Config is the root configuration. The JSON schema doubles as the payload
// for runtime tuning over the HTTP API, so every field is optional.
type Config struct {
	// Sensor params
	PortPath      *string `json:"port_path,omitempty"`
	BaudRate      *int    `json:"baud_rate,omitempty"`
	PollInterval  *string `json:"poll_interval,omitempty"` // duration string like "50ms"
	MinDistanceCm *int    `json:"min_distance_cm,omitempty"`
	MaxDistanceCm *int    `json:"max_distance_cm,omitempty"`

	// Safety params
	StopThresholdCm *int    `json:"stop_threshold_cm,omitempty"`
	SlowThresholdCm *int    `json:"slow_threshold_cm,omitempty"`
	StaleThreshold  *string `json:"stale_threshold,omitempty"` // duration string like "500ms"

	// Control params
	ControlInterval *string `json:"control_interval,omitempty"` // duration string like "20ms"
	MaxSpeed        *int    `json:"max_speed,omitempty"`

	// Server params
	ListenAddr    *string `json:"listen_addr,omitempty"`
	TelemetryPath *string `json:"telemetry_path,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// Empty returns a Config with every field unset, so all accessors return
// their defaults.
func Empty() *Config {
	return &Config{}
}

// LoadDefault loads DefaultConfigPath when it exists. A missing file is not
// an error: the appliance ships with built-in defaults and the config file
// only overrides them.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(DefaultConfigPath); err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return Load(DefaultConfigPath)
}

// Load reads and validates a Config from a JSON file. Missing files are an
// error; use Empty for a defaults-only config.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays TANKSAFE_* environment variables onto c. Variables with
// unparseable values are reported as errors rather than silently skipped.
// Call after Load (and after godotenv has populated the environment) so the
// precedence is env > file > defaults.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("TANKSAFE_PORT"); ok {
		c.PortPath = ptrString(v)
	}
	if v, ok := os.LookupEnv("TANKSAFE_LISTEN_ADDR"); ok {
		c.ListenAddr = ptrString(v)
	}
	if v, ok := os.LookupEnv("TANKSAFE_TELEMETRY_PATH"); ok {
		c.TelemetryPath = ptrString(v)
	}
	intVars := []struct {
		name string
		dst  **int
	}{
		{"TANKSAFE_BAUD_RATE", &c.BaudRate},
		{"TANKSAFE_STOP_THRESHOLD_CM", &c.StopThresholdCm},
		{"TANKSAFE_SLOW_THRESHOLD_CM", &c.SlowThresholdCm},
		{"TANKSAFE_MAX_SPEED", &c.MaxSpeed},
	}
	for _, ev := range intVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", ev.name, v, err)
		}
		*ev.dst = ptrInt(n)
	}
	durVars := []struct {
		name string
		dst  **string
	}{
		{"TANKSAFE_POLL_INTERVAL", &c.PollInterval},
		{"TANKSAFE_STALE_THRESHOLD", &c.StaleThreshold},
		{"TANKSAFE_CONTROL_INTERVAL", &c.ControlInterval},
	}
	for _, ev := range durVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", ev.name, v, err)
		}
		*ev.dst = ptrString(v)
	}
	return c.Validate()
}

// Validate checks that set fields hold usable values. The stop/slow ordering
// check is the one that matters most: a stop band at or beyond the slow band
// would make the scaling regime unreachable and mask obstacles.
func (c *Config) Validate() error {
	if c.StopThresholdCm != nil && *c.StopThresholdCm <= 0 {
		return fmt.Errorf("stop_threshold_cm must be positive, got %d", *c.StopThresholdCm)
	}
	stop, slow := c.GetStopThresholdCm(), c.GetSlowThresholdCm()
	if stop >= slow {
		return fmt.Errorf("stop_threshold_cm (%d) must be below slow_threshold_cm (%d)", stop, slow)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.MaxSpeed != nil && *c.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed must be positive, got %d", *c.MaxSpeed)
	}
	if c.MinDistanceCm != nil && c.MaxDistanceCm != nil && *c.MinDistanceCm >= *c.MaxDistanceCm {
		return fmt.Errorf("min_distance_cm (%d) must be below max_distance_cm (%d)",
			*c.MinDistanceCm, *c.MaxDistanceCm)
	}
	for name, field := range map[string]*string{
		"poll_interval":    c.PollInterval,
		"stale_threshold":  c.StaleThreshold,
		"control_interval": c.ControlInterval,
	} {
		if field == nil || *field == "" {
			continue
		}
		d, err := time.ParseDuration(*field)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// GetPortPath returns the serial device path or the default.
func (c *Config) GetPortPath() string {
	if c.PortPath == nil || *c.PortPath == "" {
		return "/dev/ttyAMA0"
	}
	return *c.PortPath
}

// GetBaudRate returns the serial baud rate or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetPollInterval parses and returns the sensor poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return c.duration(c.PollInterval, 50*time.Millisecond)
}

// GetMinDistanceCm returns the minimum credible reading or the default.
func (c *Config) GetMinDistanceCm() int {
	if c.MinDistanceCm == nil {
		return 10
	}
	return *c.MinDistanceCm
}

// GetMaxDistanceCm returns the maximum credible reading or the default.
func (c *Config) GetMaxDistanceCm() int {
	if c.MaxDistanceCm == nil {
		return 1200
	}
	return *c.MaxDistanceCm
}

// GetStopThresholdCm returns the hard-stop distance or the default.
func (c *Config) GetStopThresholdCm() int {
	if c.StopThresholdCm == nil {
		return 10
	}
	return *c.StopThresholdCm
}

// GetSlowThresholdCm returns the slow-band distance or the default.
func (c *Config) GetSlowThresholdCm() int {
	if c.SlowThresholdCm == nil {
		return 40
	}
	return *c.SlowThresholdCm
}

// GetStaleThreshold parses and returns the reading staleness limit.
func (c *Config) GetStaleThreshold() time.Duration {
	return c.duration(c.StaleThreshold, 500*time.Millisecond)
}

// GetControlInterval parses and returns the actuation tick period.
func (c *Config) GetControlInterval() time.Duration {
	return c.duration(c.ControlInterval, 20*time.Millisecond)
}

// GetMaxSpeed returns the drive speed ceiling or the default.
func (c *Config) GetMaxSpeed() int {
	if c.MaxSpeed == nil {
		return 4095
	}
	return *c.MaxSpeed
}

// GetListenAddr returns the HTTP listen address or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetTelemetryPath returns the telemetry database path or the default.
func (c *Config) GetTelemetryPath() string {
	if c.TelemetryPath == nil || *c.TelemetryPath == "" {
		return "tanksafe.db"
	}
	return *c.TelemetryPath
}

func (c *Config) duration(field *string, def time.Duration) time.Duration {
	if field == nil || *field == "" {
		return def
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return def
	}
	return d
}
