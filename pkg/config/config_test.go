package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	geoerrors "github.com/go-drift/geotrack/pkg/errors"
	"github.com/go-drift/geotrack/pkg/geo"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestResolveDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvBridgeMinVersion, "")

	dir := t.TempDir()
	res, err := Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, res.Root)
	assert.Empty(t, res.Source)
	assert.Equal(t, geo.DefaultProfiles(), res.Profiles)
	assert.Equal(t, zerolog.InfoLevel, res.LogLevel)
	assert.Empty(t, res.BridgeMinVersion)
	assert.True(t, res.LoggedIn)
	assert.True(t, res.SharingEnabled)
}

func TestResolveYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, YAMLFile, `
profiles:
  watch:
    timeout: 5s
    maximum_age: 30s
  oneshot:
    high_accuracy: false
  probe:
    timeout: 300ms
    maximum_age: unbounded
  probe_grace: 100ms
bridge:
  min_version: 1.2.0
log:
  level: DEBUG
preferences:
  sharing_enabled: false
`)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, YAMLFile), cfg.Source)

	res, err := cfg.Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, res.Profiles.Watch.Timeout)
	assert.Equal(t, 30*time.Second, res.Profiles.Watch.MaximumAge)
	assert.True(t, res.Profiles.Watch.EnableHighAccuracy)
	assert.False(t, res.Profiles.OneShot.EnableHighAccuracy)
	assert.Equal(t, 10*time.Second, res.Profiles.OneShot.Timeout)
	assert.Equal(t, 300*time.Millisecond, res.Profiles.Probe.Timeout)
	assert.Equal(t, time.Duration(-1), res.Profiles.Probe.MaximumAge)
	assert.Equal(t, 100*time.Millisecond, res.Profiles.ProbeGrace)
	assert.Equal(t, "v1.2.0", res.BridgeMinVersion)
	assert.Equal(t, zerolog.DebugLevel, res.LogLevel)
	assert.True(t, res.LoggedIn)
	assert.False(t, res.SharingEnabled)
}

func TestResolveJSONC(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, JSONCFile, `{
  // one-shot requests may reuse a fix up to two seconds old
  "profiles": {
    "oneshot": {"maximum_age": "2000"},
  },
  /* quiet */
  "log": {"level": "warn"},
}`)

	res, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, JSONCFile), res.Source)
	assert.Equal(t, 2*time.Second, res.Profiles.OneShot.MaximumAge)
	assert.Equal(t, zerolog.WarnLevel, res.LogLevel)
}

func TestYAMLTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, YAMLFile, "log:\n  level: error\n")
	writeFile(t, dir, JSONCFile, `{"log": {"level": "debug"}}`)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, YAMLFile, "log:\n  level: error\nbridge:\n  min_version: v1.0.0\n")
	t.Setenv(EnvLogLevel, "trace")
	t.Setenv(EnvBridgeMinVersion, "2.1.0")

	res, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, res.LogLevel)
	assert.Equal(t, "v2.1.0", res.BridgeMinVersion)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad timeout", "profiles:\n  watch:\n    timeout: soon\n", "profiles.watch.timeout"},
		{"zero timeout", "profiles:\n  probe:\n    timeout: 0s\n", "profiles.probe.timeout"},
		{"bad maximum age", "profiles:\n  oneshot:\n    maximum_age: old\n", "profiles.oneshot.maximum_age"},
		{"bad grace", "profiles:\n  probe_grace: -5ms\n", "profiles.probe_grace"},
		{"bad version", "bridge:\n  min_version: latest\n", "bridge.min_version"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, YAMLFile, tt.yaml)
			cfg, err := LoadOptional(dir)
			require.NoError(t, err)

			_, err = cfg.Resolve(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOptionalParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, YAMLFile, "profiles: [unclosed\n")

	_, err := LoadOptional(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse geotrack.yaml")
}

func TestParseMaximumAge(t *testing.T) {
	tests := map[string]time.Duration{
		"0":         0,
		"0s":        0,
		"1500":      1500 * time.Millisecond,
		"1m":        time.Minute,
		"unbounded": -1,
		"Unbounded": -1,
		"-1":        -1,
	}
	for in, want := range tests {
		got, err := parseMaximumAge(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestResolveFailuresAreConfigErrors(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvBridgeMinVersion, "")

	for name, content := range map[string]string{
		"parse":      "profiles: [",
		"validation": "profiles:\n  watch:\n    timeout: -1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, YAMLFile, content)

			_, err := Resolve(dir)
			require.Error(t, err)
			var geoErr *geoerrors.GeoError
			require.True(t, errors.As(err, &geoErr))
			assert.Equal(t, geoerrors.KindConfig, geoErr.Kind)
			assert.Equal(t, "config.Resolve", geoErr.Op)
		})
	}
}
