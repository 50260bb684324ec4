// Package cli is the command surface: a daemon started by the bare
// command and control verbs that forward to a running instance over the
// instance socket.
package cli

import (
	"fmt"
	"os"

	"cantata/internal/config"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	debugMode    bool
	emulatePhone bool

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cantata [uri...]",
	Short: "Music player core daemon",
	Long: `Cantata runs the playback and library engine. Without arguments it
starts the daemon; with URIs it opens them in the running instance, or
starts one when none is running.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE:         runDaemon,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.toml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&emulatePhone, "emulate-phone", false, "register a fake phone device row")

	rootCmd.AddCommand(playPauseCmd, stopCmd, nextCmd, prevCmd, rateCmd, playCmd, loveCmd, unloveCmd, scanCmd, importCmd, versionCmd)
}

func initConfig() error {
	// Credentials may live in a .env next to the binary.
	_ = godotenv.Load()

	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyEnvCredentials(cfg)

	logger = newLogger(cfg)
	return nil
}

// applyEnvCredentials fills empty provider credentials from the
// environment, so secrets stay out of the config file.
func applyEnvCredentials(cfg *config.Config) {
	if cfg.Providers.SpotifyClientID == "" {
		cfg.Providers.SpotifyClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	}
	if cfg.Providers.SpotifyClientSecret == "" {
		cfg.Providers.SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	}
	if cfg.Providers.LastFMAPIKey == "" {
		cfg.Providers.LastFMAPIKey = os.Getenv("LASTFM_API_KEY")
	}
	if cfg.Providers.LastFMSecret == "" {
		cfg.Providers.LastFMSecret = os.Getenv("LASTFM_SECRET")
	}
	if cfg.Providers.ListenBrainzToken == "" {
		cfg.Providers.ListenBrainzToken = os.Getenv("LISTENBRAINZ_TOKEN")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	if cfg.Logging.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debugMode {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	if cfg.Logging.File != "" {
		if f, ferr := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
			l.SetOutput(f)
		} else {
			l.WithError(ferr).Warn("Failed to open log file, logging to stderr")
		}
	}
	return l
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
