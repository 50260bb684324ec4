// Package scrobble reports listens to Last.fm and ListenBrainz. Failed
// submissions queue on disk and drain before the next successful one, so
// offline listening is reported late rather than lost.
package scrobble

import (
	"context"
	"errors"
	"time"

	"cantata/pkg/models"
)

// Listen is one finished playback, flattened for submission and for the
// offline queue.
type Listen struct {
	TrackName  string
	AlbumName  string
	Artists    []string
	DurationMS int
	Timestamp  int64
}

// Provider is one scrobbling backend.
type Provider interface {
	// Name identifies the provider for logging and queue files.
	Name() string
	// Configured reports whether the provider has credentials to submit.
	Configured() bool
	// Scrobble submits a finished listen.
	Scrobble(ctx context.Context, l Listen) error
	// NowPlaying announces the currently starting track. Best effort;
	// failures are never queued.
	NowPlaying(ctx context.Context, l Listen) error
	// Love marks a track loved, when the provider supports it.
	Love(ctx context.Context, l Listen, loved bool) error
}

// ErrNotAuthenticated marks submissions that cannot succeed until the
// user authenticates; the dispatcher queues these.
var ErrNotAuthenticated = errors.New("provider not authenticated")

// listenFromTrack flattens a track for submission.
func listenFromTrack(t *models.Track, artistNames []string, ts time.Time) Listen {
	albumName := ""
	if a := t.Album(); a != nil {
		albumName = a.Name
	}
	return Listen{
		TrackName:  t.Name,
		AlbumName:  albumName,
		Artists:    artistNames,
		DurationMS: t.Duration,
		Timestamp:  ts.Unix(),
	}
}
