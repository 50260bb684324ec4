package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
)

const deezerAPI = "https://api.deezer.com"

// Deezer fetches metadata from the public Deezer API. No authentication
// is required; the shared client still applies rate limiting.
type Deezer struct {
	cfg      *config.Config
	client   *Client
	endpoint string
	logger   *logrus.Logger
}

// NewDeezer wires the provider to the shared client.
func NewDeezer(cfg *config.Config, client *Client, logger *logrus.Logger) *Deezer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Deezer{cfg: cfg, client: client, endpoint: deezerAPI, logger: logger}
}

type deezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type deezerTrack struct {
	Title       string `json:"title"`
	DurationSec int    `json:"duration"`
	DiskNumber  int    `json:"disk_number"`
	TrackPos    int    `json:"track_position"`
	Artist      struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type deezerAlbum struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	CoverBig    string       `json:"cover_big"`
	ReleaseDate string       `json:"release_date"`
	Artist      deezerArtist `json:"artist"`
	Tracks      *struct {
		Data []deezerTrack `json:"data"`
	} `json:"tracks,omitempty"`
}

func (d *Deezer) get(ctx context.Context, path string, out any) error {
	if !d.cfg.ProviderAllowed("deezer") {
		return fmt.Errorf("deezer access is disabled")
	}
	data, err := d.client.Get(ctx, d.endpoint+path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SearchAlbums returns canonical payloads for albums matching the query.
func (d *Deezer) SearchAlbums(ctx context.Context, query string, limit int) ([]AlbumPayload, error) {
	var resp struct {
		Data []deezerAlbum `json:"data"`
	}
	path := "/search/album?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	if err := d.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	payloads := make([]AlbumPayload, 0, len(resp.Data))
	for _, a := range resp.Data {
		payloads = append(payloads, deezerAlbumPayload(a))
	}
	return payloads, nil
}

// Album returns the full payload for a Deezer album id, with tracks.
func (d *Deezer) Album(ctx context.Context, deezerID int64) (AlbumPayload, error) {
	var a deezerAlbum
	if err := d.get(ctx, "/album/"+strconv.FormatInt(deezerID, 10), &a); err != nil {
		return AlbumPayload{}, err
	}
	return deezerAlbumPayload(a), nil
}

// SimilarArtists returns names related to a Deezer artist id.
func (d *Deezer) SimilarArtists(ctx context.Context, deezerID int64) ([]string, error) {
	var resp struct {
		Data []deezerArtist `json:"data"`
	}
	if err := d.get(ctx, "/artist/"+strconv.FormatInt(deezerID, 10)+"/related", &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Data))
	for _, a := range resp.Data {
		names = append(names, a.Name)
	}
	return names, nil
}

// ArtistID resolves an artist name to its Deezer id, zero when unknown.
func (d *Deezer) ArtistID(ctx context.Context, name string) (int64, error) {
	var resp struct {
		Data []deezerArtist `json:"data"`
	}
	if err := d.get(ctx, "/search/artist?q="+url.QueryEscape(name)+"&limit=1", &resp); err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, nil
	}
	return resp.Data[0].ID, nil
}

// StreamURI searches Deezer for a playable preview stream matching a
// track title and artist name.
func (d *Deezer) StreamURI(ctx context.Context, title, artist string) (string, error) {
	var resp struct {
		Data []struct {
			Preview string `json:"preview"`
		} `json:"data"`
	}
	q := fmt.Sprintf("artist:%q track:%q", artist, title)
	if err := d.get(ctx, "/search/track?q="+url.QueryEscape(q)+"&limit=1", &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].Preview == "" {
		return "", fmt.Errorf("no stream found for %q by %q", title, artist)
	}
	return resp.Data[0].Preview, nil
}

// ArtistNamer resolves artist ids to display names; the catalog
// implements it.
type ArtistNamer interface {
	ArtistNames(ids []int) []string
}

// StreamLookup adapts the preview search into the resolver's lookup,
// naming the track's first artist through the catalog.
func StreamLookup(d *Deezer, artists ArtistNamer) LookupFunc {
	return func(t *models.Track) (string, error) {
		var artist string
		if names := artists.ArtistNames(t.ArtistIDs); len(names) > 0 {
			artist = names[0]
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return d.StreamURI(ctx, t.Name, artist)
	}
}

func deezerAlbumPayload(a deezerAlbum) AlbumPayload {
	payload := AlbumPayload{
		Name:       a.Title,
		Artists:    []string{a.Artist.Name},
		ArtworkURI: a.CoverBig,
		Year:       releaseYear(a.ReleaseDate),
	}
	if a.Tracks != nil {
		for _, t := range a.Tracks.Data {
			payload.Tracks = append(payload.Tracks, TrackPayload{
				Name:        t.Title,
				Artists:     []string{t.Artist.Name},
				DurationMS:  t.DurationSec * 1000,
				DiscNumber:  t.DiskNumber,
				TrackNumber: t.TrackPos,
			})
		}
	}
	payload.Canonicalize()
	payload.URI = "web://" + payload.ExternalID
	for i := range payload.Tracks {
		payload.Tracks[i].URI = "web://" + payload.Tracks[i].ExternalID
	}
	return payload
}
