package web

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"strings"
)

// TrackPayload is a provider-neutral track description. ExternalID is
// derived from the names, so the same recording found through different
// providers resolves to one catalog row.
type TrackPayload struct {
	ExternalID  string
	Name        string
	Artists     []string
	URI         string
	DurationMS  int
	DiscNumber  int
	TrackNumber int
}

// AlbumPayload is a provider-neutral album description with its tracks.
type AlbumPayload struct {
	ExternalID string
	Name       string
	Artists    []string
	URI        string
	ArtworkURI string
	Year       int
	Popularity float64
	Tracks     []TrackPayload
}

// AlbumExternalID derives the canonical id for an album from its artists
// and name, case folded.
func AlbumExternalID(artists []string, name string) string {
	return canonicalID(strings.Join(artists, ","), name)
}

// TrackExternalID derives the canonical id for a track from its artists,
// album and name, case folded.
func TrackExternalID(artists []string, album, name string) string {
	return canonicalID(strings.Join(artists, ","), album, name)
}

func canonicalID(parts ...string) string {
	h := md5.New() //nolint:gosec
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Canonicalize fills in the derived ids on a payload and its tracks,
// overriding whatever provider-specific ids were present.
func (a *AlbumPayload) Canonicalize() {
	a.ExternalID = AlbumExternalID(a.Artists, a.Name)
	for i := range a.Tracks {
		t := &a.Tracks[i]
		artists := t.Artists
		if len(artists) == 0 {
			artists = a.Artists
			t.Artists = artists
		}
		t.ExternalID = TrackExternalID(artists, a.Name, t.Name)
	}
}
