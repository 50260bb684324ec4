package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cantata/pkg/models"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Paths     PathsConfig     `toml:"paths"`
	Playback  PlaybackConfig  `toml:"playback"`
	Network   NetworkConfig   `toml:"network"`
	Providers ProvidersConfig `toml:"providers"`
	Scrobble  ScrobbleConfig  `toml:"scrobble"`
	Presence  PresenceConfig  `toml:"presence"`
	UI        UIConfig        `toml:"ui"`
	Logging   LoggingConfig   `toml:"logging"`
}

// PathsConfig locates the database and on-disk state.
type PathsConfig struct {
	Database string `toml:"database"`
	DataDir  string `toml:"data_dir"`
	CacheDir string `toml:"cache_dir"`
	MusicDir string `toml:"music_dir"`
}

// PlaybackConfig contains the player settings consulted by the facade and
// its layers.
type PlaybackConfig struct {
	Shuffle              bool    `toml:"shuffle"`
	Repeat               string  `toml:"repeat"` // none, all, track, auto-similar, auto-random
	PartyIDs             []int   `toml:"party_ids"`
	SaveState            bool    `toml:"save_state"`
	AppendAlbums         bool    `toml:"append_albums"`
	Transitions          bool    `toml:"transitions"`
	TransitionDurationMS int     `toml:"transition_duration_ms"`
	MaxSavedAlbums       int     `toml:"max_saved_albums"`
	Volume               float64 `toml:"volume"`
}

// NetworkConfig gates outbound access per provider.
type NetworkConfig struct {
	Access    bool     `toml:"access"`
	AccessACL []string `toml:"access_acl"` // provider names allowed outbound
}

// ProvidersConfig carries web provider credentials. Values left empty here
// fall back to the environment (SPOTIFY_CLIENT_ID and friends).
type ProvidersConfig struct {
	SpotifyClientID     string `toml:"spotify_client_id"`
	SpotifyClientSecret string `toml:"spotify_client_secret"`
	LastFMAPIKey        string `toml:"lastfm_api_key"`
	LastFMSecret        string `toml:"lastfm_secret"`
	ListenBrainzToken   string `toml:"listenbrainz_token"`
}

// ScrobbleConfig controls listen reporting.
type ScrobbleConfig struct {
	Disabled bool `toml:"disabled"`
}

// PresenceConfig controls Discord rich presence.
type PresenceConfig struct {
	Discord      bool   `toml:"discord"`
	DiscordAppID string `toml:"discord_app_id"`
}

// UIConfig carries view-layer settings the core persists on behalf of the
// shell.
type UIConfig struct {
	ShowTagTrackNumber bool  `toml:"show_tag_tracknumber"`
	ShownAlbumLists    []int `toml:"shown_album_lists"`
	ShownPlaylists     []int `toml:"shown_playlists"`
	SmartArtistSort    bool  `toml:"smart_artist_sort"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Database: "./cantata.db",
			DataDir:  "./data",
			CacheDir: "./cache",
			MusicDir: "./music",
		},
		Playback: PlaybackConfig{
			Shuffle:              false,
			Repeat:               "none",
			PartyIDs:             nil,
			SaveState:            true,
			AppendAlbums:         false,
			Transitions:          false,
			TransitionDurationMS: 3000,
			MaxSavedAlbums:       100,
			Volume:               1.0,
		},
		Network: NetworkConfig{
			Access:    true,
			AccessACL: []string{"spotify", "deezer", "musicbrainz", "lastfm", "listenbrainz"},
		},
		Scrobble: ScrobbleConfig{
			Disabled: false,
		},
		Presence: PresenceConfig{
			Discord:      false,
			DiscordAppID: "",
		},
		UI: UIConfig{
			ShowTagTrackNumber: true,
			SmartArtistSort:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Cantata Music Player Configuration
# Edit the values below to customize playback, network and scrobbling.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.Database == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Paths.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if _, err := c.RepeatMode(); err != nil {
		return err
	}

	if c.Playback.TransitionDurationMS < 0 {
		return fmt.Errorf("transition duration must be positive")
	}
	if c.Playback.MaxSavedAlbums < 1 {
		return fmt.Errorf("max saved albums must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// RepeatMode parses the configured repeat mode string.
func (c *Config) RepeatMode() (models.RepeatMode, error) {
	switch c.Playback.Repeat {
	case "", "none":
		return models.RepeatNone, nil
	case "all":
		return models.RepeatAll, nil
	case "track":
		return models.RepeatTrack, nil
	case "auto-similar":
		return models.RepeatAutoSimilar, nil
	case "auto-random":
		return models.RepeatAutoRandom, nil
	}
	return models.RepeatNone, fmt.Errorf("invalid repeat mode: %s", c.Playback.Repeat)
}

// SetRepeatMode stores the repeat mode back as its string form.
func (c *Config) SetRepeatMode(mode models.RepeatMode) {
	switch mode {
	case models.RepeatAll:
		c.Playback.Repeat = "all"
	case models.RepeatTrack:
		c.Playback.Repeat = "track"
	case models.RepeatAutoSimilar:
		c.Playback.Repeat = "auto-similar"
	case models.RepeatAutoRandom:
		c.Playback.Repeat = "auto-random"
	default:
		c.Playback.Repeat = "none"
	}
}

// ProviderAllowed reports whether outbound requests to the named provider
// are permitted by the network ACL.
func (c *Config) ProviderAllowed(name string) bool {
	if !c.Network.Access {
		return false
	}
	for _, allowed := range c.Network.AccessACL {
		if allowed == name {
			return true
		}
	}
	return false
}
