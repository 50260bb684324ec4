package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"cantata/internal/config"

	"github.com/sirupsen/logrus"
)

const spotifyAPI = "https://api.spotify.com/v1"

// Spotify fetches catalog metadata through the Spotify Web API using the
// brokered client-credentials token.
type Spotify struct {
	cfg    *config.Config
	client *Client
	broker *TokenBroker
	logger *logrus.Logger
}

// NewSpotify wires the provider to the shared client and token broker.
func NewSpotify(cfg *config.Config, client *Client, broker *TokenBroker, logger *logrus.Logger) *Spotify {
	if logger == nil {
		logger = logrus.New()
	}
	return &Spotify{cfg: cfg, client: client, broker: broker, logger: logger}
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	DiscNumber  int             `json:"disc_number"`
	TrackNumber int             `json:"track_number"`
	DurationMS  int             `json:"duration_ms"`
	Album       *spotifyAlbum   `json:"album,omitempty"`
}

type spotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	Images      []spotifyImage  `json:"images"`
	ReleaseDate string          `json:"release_date"`
	Popularity  int             `json:"popularity"`
	Tracks      *struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks,omitempty"`
}

// get performs an authorized GET against the API.
func (s *Spotify) get(ctx context.Context, path string, out any) error {
	if !s.cfg.ProviderAllowed("spotify") {
		return fmt.Errorf("spotify access is disabled")
	}
	token, err := s.broker.Token(ctx)
	if err != nil {
		return err
	}
	data, err := s.client.Get(ctx, spotifyAPI+path, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == 401 {
			s.broker.Invalidate()
		}
		return err
	}
	return json.Unmarshal(data, out)
}

// SearchAlbums returns canonical album payloads matching the query,
// without their track lists.
func (s *Spotify) SearchAlbums(ctx context.Context, query string, limit int) ([]AlbumPayload, error) {
	var resp struct {
		Albums struct {
			Items []spotifyAlbum `json:"items"`
		} `json:"albums"`
	}
	path := "/search?type=album&q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	if err := s.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	payloads := make([]AlbumPayload, 0, len(resp.Albums.Items))
	for _, a := range resp.Albums.Items {
		payloads = append(payloads, s.albumPayload(a))
	}
	return payloads, nil
}

// SearchTracks returns canonical track payloads matching the query, each
// wrapped in its album payload.
func (s *Spotify) SearchTracks(ctx context.Context, query string, limit int) ([]AlbumPayload, error) {
	var resp struct {
		Tracks struct {
			Items []spotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	path := "/search?type=track&q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	if err := s.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return s.wrapTracks(resp.Tracks.Items), nil
}

// Album returns a full canonical payload for a Spotify album id,
// including tracks.
func (s *Spotify) Album(ctx context.Context, spotifyID string) (AlbumPayload, error) {
	var a spotifyAlbum
	if err := s.get(ctx, "/albums/"+url.PathEscape(spotifyID), &a); err != nil {
		return AlbumPayload{}, err
	}
	return s.albumPayload(a), nil
}

// NewReleases returns the current new-release albums.
func (s *Spotify) NewReleases(ctx context.Context, limit int) ([]AlbumPayload, error) {
	var resp struct {
		Albums struct {
			Items []spotifyAlbum `json:"items"`
		} `json:"albums"`
	}
	if err := s.get(ctx, "/browse/new-releases?limit="+strconv.Itoa(limit), &resp); err != nil {
		return nil, err
	}
	payloads := make([]AlbumPayload, 0, len(resp.Albums.Items))
	for _, a := range resp.Albums.Items {
		payloads = append(payloads, s.albumPayload(a))
	}
	return payloads, nil
}

// ArtistID resolves an artist name to its Spotify id, empty when not
// found.
func (s *Spotify) ArtistID(ctx context.Context, name string) (string, error) {
	var resp struct {
		Artists struct {
			Items []spotifyArtist `json:"items"`
		} `json:"artists"`
	}
	path := "/search?type=artist&q=" + url.QueryEscape(name) + "&limit=1"
	if err := s.get(ctx, path, &resp); err != nil {
		return "", err
	}
	if len(resp.Artists.Items) == 0 {
		return "", nil
	}
	return resp.Artists.Items[0].ID, nil
}

// RelatedArtists returns names of artists related to the given Spotify
// artist id, best match first.
func (s *Spotify) RelatedArtists(ctx context.Context, spotifyID string) ([]string, error) {
	var resp struct {
		Artists []spotifyArtist `json:"artists"`
	}
	if err := s.get(ctx, "/artists/"+url.PathEscape(spotifyID)+"/related-artists", &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		names = append(names, a.Name)
	}
	return names, nil
}

// TopTracks returns the artist's most popular tracks as canonical
// payloads grouped per album.
func (s *Spotify) TopTracks(ctx context.Context, spotifyID string) ([]AlbumPayload, error) {
	var resp struct {
		Tracks []spotifyTrack `json:"tracks"`
	}
	if err := s.get(ctx, "/artists/"+url.PathEscape(spotifyID)+"/top-tracks?market=US", &resp); err != nil {
		return nil, err
	}
	return s.wrapTracks(resp.Tracks), nil
}

// albumPayload converts an API album into the canonical form.
func (s *Spotify) albumPayload(a spotifyAlbum) AlbumPayload {
	payload := AlbumPayload{
		Name:       a.Name,
		Artists:    artistNames(a.Artists),
		Year:       releaseYear(a.ReleaseDate),
		Popularity: float64(a.Popularity),
	}
	if len(a.Images) > 0 {
		payload.ArtworkURI = a.Images[0].URL
	}
	if a.Tracks != nil {
		for _, t := range a.Tracks.Items {
			payload.Tracks = append(payload.Tracks, trackPayload(t))
		}
	}
	payload.Canonicalize()
	payload.URI = "web://" + payload.ExternalID
	for i := range payload.Tracks {
		payload.Tracks[i].URI = "web://" + payload.Tracks[i].ExternalID
	}
	return payload
}

// wrapTracks folds loose tracks into per-album payloads, preserving
// arrival order.
func (s *Spotify) wrapTracks(tracks []spotifyTrack) []AlbumPayload {
	var payloads []AlbumPayload
	index := make(map[string]int)
	for _, t := range tracks {
		var album AlbumPayload
		if t.Album != nil {
			album = AlbumPayload{
				Name:    t.Album.Name,
				Artists: artistNames(t.Album.Artists),
				Year:    releaseYear(t.Album.ReleaseDate),
			}
			if len(t.Album.Images) > 0 {
				album.ArtworkURI = t.Album.Images[0].URL
			}
		} else {
			album = AlbumPayload{Name: t.Name, Artists: artistNames(t.Artists)}
		}
		album.Tracks = []TrackPayload{trackPayload(t)}
		album.Canonicalize()
		album.URI = "web://" + album.ExternalID
		album.Tracks[0].URI = "web://" + album.Tracks[0].ExternalID

		if i, ok := index[album.ExternalID]; ok {
			payloads[i].Tracks = append(payloads[i].Tracks, album.Tracks[0])
		} else {
			index[album.ExternalID] = len(payloads)
			payloads = append(payloads, album)
		}
	}
	return payloads
}

func trackPayload(t spotifyTrack) TrackPayload {
	return TrackPayload{
		Name:        t.Name,
		Artists:     artistNames(t.Artists),
		DurationMS:  t.DurationMS,
		DiscNumber:  t.DiscNumber,
		TrackNumber: t.TrackNumber,
	}
}

func artistNames(artists []spotifyArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
