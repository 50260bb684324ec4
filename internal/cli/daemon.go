package cli

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/internal/history"
	"cantata/internal/ingest"
	"cantata/internal/player"
	"cantata/internal/presence"
	"cantata/internal/scrobble"
	"cantata/internal/sink"
	"cantata/internal/task"
	"cantata/internal/web"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// App wires the engine together for the daemon.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	events   *bus.Bus
	catalog  *catalog.Catalog
	tasks    *task.Runner
	player   *player.Player
	scanner  *ingest.Scanner
	saver    *web.Saver
	history  *history.History
	presence *presence.Discord
	listener net.Listener
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// URIs forward to a running instance when one exists.
	if len(args) > 0 {
		allForwarded := true
		for _, uri := range args {
			handled, err := forward(cfg, "open "+uri)
			if err != nil {
				return err
			}
			if !handled {
				allForwarded = false
				break
			}
		}
		if allForwarded {
			return nil
		}
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.shutdown()

	if err := app.serveSocket(); err != nil {
		return err
	}

	if emulatePhone {
		if _, err := app.catalog.AddDevice("Phone (emulated)"); err != nil {
			logger.WithError(err).Warn("Failed to register emulated phone")
		}
	}

	app.start(args)

	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("Received shutdown signal")
		close(stop)
	}()

	app.tasks.RunLoop(stop)
	return nil
}

// newApp constructs and wires every component.
func newApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	events := bus.New()

	cat, err := catalog.New(cfg.Paths.Database, events, logger)
	if err != nil {
		return nil, err
	}

	tasks := task.New()

	// Headless sink; audio backends plug in through the same interface.
	snk := sink.NewMemorySink()

	p := player.New(cfg, events, cat, snk, tasks, logger)

	client := web.NewClient(logger)
	broker := web.NewTokenBroker(cfg, logger)
	spotify := web.NewSpotify(cfg, client, broker, logger)
	deezer := web.NewDeezer(cfg, client, logger)
	mb := web.NewMusicBrainz(cfg, client, logger)
	saver := web.NewSaver(cfg, cat, events, mb, logger)
	similars := web.NewSimilars(cfg, cat, spotify, deezer, saver, logger)
	p.SetSimilarsProvider(similars)

	cache := web.NewURICache(cfg.Paths.CacheDir)
	p.SetWebResolver(web.Resolver(cache, web.StreamLookup(deezer, cat)))

	lastfm := scrobble.NewLastFM(cfg, logger)
	if key := os.Getenv("LASTFM_SESSION_KEY"); key != "" {
		lastfm.SetSessionKey(key)
	}
	listenbrainz := scrobble.NewListenBrainz(cfg, logger)
	dispatcher := scrobble.NewDispatcher(cfg, cat, []scrobble.Provider{lastfm, listenbrainz}, logger)
	p.SetScrobbler(dispatcher)

	scanner := ingest.NewScanner(cfg, cat, logger)

	hist := history.New(cfg.Paths.DataDir, logger)
	if err := hist.Load(); err != nil {
		logger.WithError(err).Warn("Failed to load navigation history")
	}

	disco := presence.NewDiscord(cfg, events, p, cat, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		events:   events,
		catalog:  cat,
		tasks:    tasks,
		player:   p,
		scanner:  scanner,
		saver:    saver,
		history:  hist,
		presence: disco,
	}, nil
}

// start performs the startup sequence on the player goroutine and kicks
// off the background scan.
func (a *App) start(uris []string) {
	a.tasks.Post(func() {
		if err := a.player.RestoreState(); err != nil {
			a.logger.WithError(err).Warn("Failed to restore playback state")
		}
		for _, uri := range uris {
			a.openURI(uri)
		}
	})

	a.presence.Connect()

	go func() {
		if _, err := os.Stat(a.cfg.Paths.MusicDir); err != nil {
			a.logger.WithField("dir", a.cfg.Paths.MusicDir).Warn("Music directory does not exist, skipping scan")
			return
		}
		if err := a.scanner.ScanCollection(); err != nil {
			a.logger.WithError(err).Error("Collection scan failed")
		}
		if err := a.scanner.StartWatcher(); err != nil {
			a.logger.WithError(err).Warn("File watcher unavailable")
		}
		if err := a.catalog.Vacuum(a.scanner.Busy); err != nil {
			a.logger.WithError(err).Warn("Vacuum failed")
		}
	}()
}

// openURI plays a local file, imports a playlist file, or starts an
// http(s) URI as a radio stream.
func (a *App) openURI(uri string) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		name := filepath.Base(uri)
		radioID, err := a.catalog.AddRadio(name, uri)
		if err != nil {
			a.logger.WithError(err).WithField("uri", uri).Error("Failed to add radio")
			return
		}
		radio, err := a.catalog.Radio(radioID)
		if err != nil {
			return
		}
		a.player.PlayRadio(radio)

	case isPlaylistFile(uri):
		go func() {
			if _, err := a.scanner.ImportPlaylist(uri); err != nil {
				a.logger.WithError(err).WithField("path", uri).Error("Playlist import failed")
			}
		}()

	default:
		if err := a.scanner.AddFile(uri, models.StorageExternal); err != nil {
			a.logger.WithError(err).WithField("path", uri).Error("Failed to open file")
			return
		}
		if id := a.catalog.TrackIDByURI(ingest.FileURI(uri)); id != models.NoneID {
			a.player.PlayTrackIDs([]int{id}, id)
		}
	}
}

func isPlaylistFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pls", ".m3u", ".m3u8":
		return true
	}
	return false
}

func (a *App) shutdown() {
	a.tasks.Post(func() {
		if err := a.player.SaveState(); err != nil {
			a.logger.WithError(err).Warn("Failed to save playback state")
		}
	})
	a.tasks.Drain()

	if err := a.history.Save(); err != nil {
		a.logger.WithError(err).Warn("Failed to save navigation history")
	}
	a.presence.Disconnect()
	a.scanner.StopWatcher()
	a.closeSocket()

	if err := a.catalog.DelNonPersistent(true); err != nil {
		a.logger.WithError(err).Warn("Failed to purge ephemeral rows")
	}
	if err := a.catalog.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close catalog")
	}
}
