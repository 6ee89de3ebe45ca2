// Package config loads the optional geotrack.yaml or geotrack.jsonc file that
// tunes request profiles, the bridge version floor, and logging.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	geoerrors "github.com/go-drift/geotrack/pkg/errors"
	"github.com/go-drift/geotrack/pkg/geo"
)

// File names searched by LoadOptional, in order.
const (
	YAMLFile  = "geotrack.yaml"
	JSONCFile = "geotrack.jsonc"
)

// Environment overrides.
const (
	EnvLogLevel         = "GEOTRACK_LOG_LEVEL"
	EnvBridgeMinVersion = "GEOTRACK_BRIDGE_MIN_VERSION"
)

// Unbounded is accepted as a maximum_age meaning any cached fix is fine.
const Unbounded = "unbounded"

// Config represents the optional configuration file.
type Config struct {
	Profiles    ProfilesConfig    `yaml:"profiles" json:"profiles"`
	Bridge      BridgeConfig      `yaml:"bridge" json:"bridge"`
	Log         LogConfig         `yaml:"log" json:"log"`
	Preferences PreferencesConfig `yaml:"preferences" json:"preferences"`

	// Source is the file the config was read from, or "" for defaults.
	Source string `yaml:"-" json:"-"`
}

// ProfilesConfig overrides the request profiles. Durations use Go syntax
// ("150ms", "10s").
type ProfilesConfig struct {
	Watch      ProfileConfig `yaml:"watch" json:"watch"`
	OneShot    ProfileConfig `yaml:"oneshot" json:"oneshot"`
	Probe      ProfileConfig `yaml:"probe" json:"probe"`
	ProbeGrace string        `yaml:"probe_grace,omitempty" json:"probe_grace,omitempty"`
}

// ProfileConfig overrides one request profile. Empty fields keep the default.
type ProfileConfig struct {
	HighAccuracy *bool  `yaml:"high_accuracy,omitempty" json:"high_accuracy,omitempty"`
	Timeout      string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaximumAge   string `yaml:"maximum_age,omitempty" json:"maximum_age,omitempty"`
}

// BridgeConfig contains native bridge settings.
type BridgeConfig struct {
	MinVersion string `yaml:"min_version,omitempty" json:"min_version,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// PreferencesConfig seeds the in-process preference store used by the
// command-line hosts.
type PreferencesConfig struct {
	LoggedIn       *bool `yaml:"logged_in,omitempty" json:"logged_in,omitempty"`
	SharingEnabled *bool `yaml:"sharing_enabled,omitempty" json:"sharing_enabled,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Root             string
	Source           string
	Profiles         geo.Profiles
	BridgeMinVersion string
	LogLevel         zerolog.Level
	LoggedIn         bool
	SharingEnabled   bool
}

// LoadOptional reads geotrack.yaml or geotrack.jsonc from dir if present.
// With neither file it returns an empty Config.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(dir, YAMLFile), unmarshalYAML)
	if cfg != nil || err != nil {
		return cfg, err
	}
	cfg, err = loadFile(filepath.Join(dir, JSONCFile), unmarshalJSONC)
	if cfg != nil || err != nil {
		return cfg, err
	}
	return &Config{}, nil
}

// Resolve loads the config file (if present), applies environment overrides,
// and fills in defaults. Failures are returned as a GeoError of kind
// KindConfig.
func Resolve(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, configError(err)
	}
	cfg.applyEnv()
	res, err := cfg.Resolve(dir)
	if err != nil {
		return nil, configError(err)
	}
	return res, nil
}

func configError(err error) error {
	return &geoerrors.GeoError{
		Op:        "config.Resolve",
		Kind:      geoerrors.KindConfig,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Resolve validates c and merges it over the defaults.
func (c *Config) Resolve(root string) (*Resolved, error) {
	profiles := geo.DefaultProfiles()

	var err error
	if profiles.Watch, err = c.Profiles.Watch.apply("watch", profiles.Watch); err != nil {
		return nil, err
	}
	if profiles.OneShot, err = c.Profiles.OneShot.apply("oneshot", profiles.OneShot); err != nil {
		return nil, err
	}
	if profiles.Probe, err = c.Profiles.Probe.apply("probe", profiles.Probe); err != nil {
		return nil, err
	}
	if s := strings.TrimSpace(c.Profiles.ProbeGrace); s != "" {
		grace, err := time.ParseDuration(s)
		if err != nil || grace < 0 {
			return nil, fmt.Errorf("profiles.probe_grace: invalid duration %q", s)
		}
		profiles.ProbeGrace = grace
	}

	minVersion := strings.TrimSpace(c.Bridge.MinVersion)
	if minVersion != "" {
		if !strings.HasPrefix(minVersion, "v") {
			minVersion = "v" + minVersion
		}
		if !semver.IsValid(minVersion) {
			return nil, fmt.Errorf("bridge.min_version: %q is not a semantic version", c.Bridge.MinVersion)
		}
	}

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(c.Log.Level); s != "" {
		level, err = zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}

	resolved := &Resolved{
		Root:             root,
		Source:           c.Source,
		Profiles:         profiles,
		BridgeMinVersion: minVersion,
		LogLevel:         level,
		LoggedIn:         true,
		SharingEnabled:   true,
	}
	if c.Preferences.LoggedIn != nil {
		resolved.LoggedIn = *c.Preferences.LoggedIn
	}
	if c.Preferences.SharingEnabled != nil {
		resolved.SharingEnabled = *c.Preferences.SharingEnabled
	}
	return resolved, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvBridgeMinVersion); ok {
		c.Bridge.MinVersion = v
	}
}

func (p ProfileConfig) apply(name string, base geo.PositionOptions) (geo.PositionOptions, error) {
	if p.HighAccuracy != nil {
		base.EnableHighAccuracy = *p.HighAccuracy
	}
	if s := strings.TrimSpace(p.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return base, fmt.Errorf("profiles.%s.timeout: invalid duration %q", name, s)
		}
		base.Timeout = d
	}
	if s := strings.TrimSpace(p.MaximumAge); s != "" {
		d, err := parseMaximumAge(s)
		if err != nil {
			return base, fmt.Errorf("profiles.%s.maximum_age: %w", name, err)
		}
		base.MaximumAge = d
	}
	return base, nil
}

// parseMaximumAge accepts a duration, "unbounded", or a bare integer of
// milliseconds.
func parseMaximumAge(s string) (time.Duration, error) {
	if strings.EqualFold(s, Unbounded) {
		return -1, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return -1, nil
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return -1, nil
	}
	return d, nil
}

func loadFile(path string, unmarshal func([]byte, *Config) error) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var cfg Config
	if err := unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	cfg.Source = path
	return &cfg, nil
}

func unmarshalYAML(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func unmarshalJSONC(data []byte, cfg *Config) error {
	return json.Unmarshal(jsonc.ToJSON(data), cfg)
}
