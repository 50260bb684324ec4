package scrobble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cantata/internal/config"

	"github.com/sirupsen/logrus"
)

const listenbrainzAPI = "https://api.listenbrainz.org/1/submit-listens"

// ListenBrainz submits listens with a user token. It has no love
// concept, so Love is a no-op.
type ListenBrainz struct {
	cfg        *config.Config
	logger     *logrus.Logger
	httpClient *http.Client
}

// NewListenBrainz creates the provider.
func NewListenBrainz(cfg *config.Config, logger *logrus.Logger) *ListenBrainz {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListenBrainz{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: submitTimeout},
	}
}

func (l *ListenBrainz) Name() string { return "listenbrainz" }

func (l *ListenBrainz) Configured() bool {
	return l.cfg.ProviderAllowed("listenbrainz") && l.cfg.Providers.ListenBrainzToken != ""
}

type lbTrackMetadata struct {
	ArtistName  string `json:"artist_name"`
	TrackName   string `json:"track_name"`
	ReleaseName string `json:"release_name,omitempty"`
}

type lbListen struct {
	ListenedAt    int64           `json:"listened_at,omitempty"`
	TrackMetadata lbTrackMetadata `json:"track_metadata"`
}

type lbSubmission struct {
	ListenType string     `json:"listen_type"`
	Payload    []lbListen `json:"payload"`
}

// Scrobble submits a single finished listen.
func (l *ListenBrainz) Scrobble(ctx context.Context, listen Listen) error {
	return l.submit(ctx, lbSubmission{
		ListenType: "single",
		Payload: []lbListen{{
			ListenedAt:    listen.Timestamp,
			TrackMetadata: metadata(listen),
		}},
	})
}

// NowPlaying announces the starting track. ListenBrainz rejects a
// listened_at on playing_now payloads.
func (l *ListenBrainz) NowPlaying(ctx context.Context, listen Listen) error {
	return l.submit(ctx, lbSubmission{
		ListenType: "playing_now",
		Payload:    []lbListen{{TrackMetadata: metadata(listen)}},
	})
}

// Love is not part of the ListenBrainz submission API.
func (l *ListenBrainz) Love(ctx context.Context, listen Listen, loved bool) error {
	return nil
}

func (l *ListenBrainz) submit(ctx context.Context, submission lbSubmission) error {
	body, err := json.Marshal(submission)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenbrainzAPI, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+l.cfg.Providers.ListenBrainzToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listenbrainz returned %s", resp.Status)
	}
	return nil
}

func metadata(listen Listen) lbTrackMetadata {
	return lbTrackMetadata{
		ArtistName:  strings.Join(listen.Artists, ", "),
		TrackName:   listen.TrackName,
		ReleaseName: listen.AlbumName,
	}
}
