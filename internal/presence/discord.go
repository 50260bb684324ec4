// Package presence mirrors the current playback onto Discord rich
// presence. Purely cosmetic: every failure is logged and swallowed.
package presence

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cantata/internal/bus"
	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/hugolgst/rich-go/client"
	"github.com/sirupsen/logrus"
)

// NowPlaying describes what the player is doing right now.
type NowPlaying interface {
	Current() *models.Track
	IsPlaying() bool
	Position() int64
}

// ArtistNamer resolves artist ids to names; the catalog implements it.
type ArtistNamer interface {
	ArtistNames(ids []int) []string
}

// Discord pushes the current track to Discord whenever playback changes.
type Discord struct {
	cfg     *config.Config
	player  NowPlaying
	artists ArtistNamer
	logger  *logrus.Logger

	mu        sync.Mutex
	connected bool
}

// NewDiscord creates the presence updater and subscribes it to playback
// changes. Connect must still be called before anything is sent.
func NewDiscord(cfg *config.Config, events *bus.Bus, player NowPlaying, artists ArtistNamer, logger *logrus.Logger) *Discord {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Discord{cfg: cfg, player: player, artists: artists, logger: logger}
	events.Subscribe(bus.SignalCurrentChanged, func(any) { d.Refresh() })
	events.Subscribe(bus.SignalStatusChanged, func(any) { d.Refresh() })
	return d
}

// Connect logs into the Discord IPC socket. A missing or closed Discord
// client is not an error worth surfacing.
func (d *Discord) Connect() {
	if !d.cfg.Presence.Discord || d.cfg.Presence.DiscordAppID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return
	}
	if err := client.Login(d.cfg.Presence.DiscordAppID); err != nil {
		d.logger.WithError(err).Debug("Discord presence unavailable")
		return
	}
	d.connected = true
	d.logger.Debug("Connected to Discord presence")
}

// Disconnect logs out when connected.
func (d *Discord) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return
	}
	client.Logout()
	d.connected = false
}

// Refresh pushes the current playback state. Runs on whatever goroutine
// emitted the signal; the update itself is fire-and-forget.
func (d *Discord) Refresh() {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return
	}

	track := d.player.Current()
	if track.IsNone() {
		d.setIdle()
		return
	}

	activity := client.Activity{
		Details:    track.Name,
		LargeImage: "cantata",
		LargeText:  "Cantata",
	}
	if names := d.artists.ArtistNames(track.ArtistIDs); len(names) > 0 {
		activity.State = "by " + strings.Join(names, ", ")
	}
	if album := track.Album(); album != nil && album.Name != "" {
		if activity.State == "" {
			activity.State = album.Name
		} else {
			activity.State = fmt.Sprintf("%s • %s", activity.State, album.Name)
		}
	}
	if track.IsRadio() {
		activity.SmallImage = "radio"
		activity.SmallText = "Radio"
	} else if d.player.IsPlaying() {
		activity.SmallImage = "play"
		activity.SmallText = "Playing"
		if track.Duration > 0 {
			now := time.Now()
			start := now.Add(-time.Duration(d.player.Position()) * time.Millisecond)
			end := start.Add(time.Duration(track.Duration) * time.Millisecond)
			activity.Timestamps = &client.Timestamps{Start: &start, End: &end}
		}
	} else {
		activity.SmallImage = "pause"
		activity.SmallText = "Paused"
	}

	if err := client.SetActivity(activity); err != nil {
		d.logger.WithError(err).Debug("Failed to update Discord presence")
	}
}

func (d *Discord) setIdle() {
	err := client.SetActivity(client.Activity{
		Details:    "Browsing the library",
		LargeImage: "cantata",
		LargeText:  "Cantata",
		SmallImage: "idle",
		SmallText:  "Idle",
	})
	if err != nil {
		d.logger.WithError(err).Debug("Failed to set idle Discord presence")
	}
}
