package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"cantata/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	musicbrainzAPI = "https://musicbrainz.org/ws/2"
	coverArtAPI    = "https://coverartarchive.org"

	// MusicBrainz asks clients to identify themselves.
	mbUserAgent = "cantata/1.0 (https://github.com/cantata-player/cantata)"
)

// MusicBrainz resolves release metadata and Cover Art Archive artwork.
type MusicBrainz struct {
	cfg    *config.Config
	client *Client
	logger *logrus.Logger
}

// NewMusicBrainz wires the provider to the shared client.
func NewMusicBrainz(cfg *config.Config, client *Client, logger *logrus.Logger) *MusicBrainz {
	if logger == nil {
		logger = logrus.New()
	}
	return &MusicBrainz{cfg: cfg, client: client, logger: logger}
}

type mbArtistCredit struct {
	Name string `json:"name"`
}

type mbRelease struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Date         string           `json:"date"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
}

func (m *MusicBrainz) get(ctx context.Context, path string, out any) error {
	if !m.cfg.ProviderAllowed("musicbrainz") {
		return fmt.Errorf("musicbrainz access is disabled")
	}
	data, err := m.client.Get(ctx, musicbrainzAPI+path, map[string]string{
		"User-Agent": mbUserAgent,
		"Accept":     "application/json",
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SearchRelease finds the MusicBrainz release id for an artist and album
// name, empty when no match.
func (m *MusicBrainz) SearchRelease(ctx context.Context, artist, album string) (string, error) {
	var resp struct {
		Releases []mbRelease `json:"releases"`
	}
	query := fmt.Sprintf(`artist:%q AND release:%q`, artist, album)
	path := "/release/?query=" + url.QueryEscape(query) + "&limit=1&fmt=json"
	if err := m.get(ctx, path, &resp); err != nil {
		return "", err
	}
	if len(resp.Releases) == 0 {
		return "", nil
	}
	return resp.Releases[0].ID, nil
}

// ArtworkURI returns the Cover Art Archive front-image URL for a release
// id. The URL is returned without probing; a missing cover surfaces as a
// 404 at download time.
func (m *MusicBrainz) ArtworkURI(releaseID string) string {
	if releaseID == "" {
		return ""
	}
	return coverArtAPI + "/release/" + url.PathEscape(releaseID) + "/front-500"
}

// AlbumArtwork resolves artwork for an artist and album name through a
// release search.
func (m *MusicBrainz) AlbumArtwork(ctx context.Context, artist, album string) (string, error) {
	releaseID, err := m.SearchRelease(ctx, artist, album)
	if err != nil {
		return "", err
	}
	return m.ArtworkURI(releaseID), nil
}
