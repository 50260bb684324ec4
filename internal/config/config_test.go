package config

import (
	"os"
	"path/filepath"
	"testing"

	"cantata/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Playback.Repeat)

	_, err = os.Stat(path)
	assert.NoError(t, err, "a missing config file is written with defaults")
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Playback.Repeat = "auto-similar"
	cfg.Playback.MaxSavedAlbums = 7
	cfg.Providers.SpotifyClientID = "abc"
	cfg.Network.AccessACL = []string{"spotify"}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "auto-similar", loaded.Playback.Repeat)
	assert.Equal(t, 7, loaded.Playback.MaxSavedAlbums)
	assert.Equal(t, "abc", loaded.Providers.SpotifyClientID)
	assert.Equal(t, []string{"spotify"}, loaded.Network.AccessACL)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[playback]\nrepeat = \"sideways\"\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Paths.Database = "" }},
		{"empty data dir", func(c *Config) { c.Paths.DataDir = "" }},
		{"bad repeat", func(c *Config) { c.Playback.Repeat = "sometimes" }},
		{"negative transition", func(c *Config) { c.Playback.TransitionDurationMS = -1 }},
		{"zero saved albums", func(c *Config) { c.Playback.MaxSavedAlbums = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRepeatModeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	modes := []models.RepeatMode{
		models.RepeatNone, models.RepeatAll, models.RepeatTrack,
		models.RepeatAutoSimilar, models.RepeatAutoRandom,
	}
	for _, mode := range modes {
		cfg.SetRepeatMode(mode)
		got, err := cfg.RepeatMode()
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
}

func TestProviderAllowed(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.ProviderAllowed("spotify"))
	assert.False(t, cfg.ProviderAllowed("unknown"))

	cfg.Network.Access = false
	assert.False(t, cfg.ProviderAllowed("spotify"), "the master switch overrides the ACL")
}
