package models

// Playlist is an ordered list of tracks, optionally defined by a stored
// catalog query instead of a fixed track list.
type Playlist struct {
	ID         int
	Name       string
	TrackIDs   []int
	SmartQuery string
}

// IsSmart reports whether the playlist resolves through a stored query.
func (p *Playlist) IsSmart() bool {
	return p.SmartQuery != ""
}

// Radio is a named stream URI. It is modeled as a Track/Album pair with
// sentinel ids so every player pathway accepts it.
type Radio struct {
	ID   int
	Name string
	URI  string
}

// AsTrack wraps the radio into a sentinel track.
func (r Radio) AsTrack() *Track {
	t := &Track{
		ID:        RadioTrackID(r.ID),
		Name:      r.Name,
		AlbumID:   NoneID,
		ArtistIDs: []int{SentinelRadioRef},
		GenreIDs:  []int{SentinelRadioRef},
		URI:       r.URI,
		Storage:   StorageEphemeral,
	}
	album := &Album{ID: NoneID, Name: r.Name, URI: r.URI, Storage: StorageEphemeral}
	album.SetTracks([]*Track{t})
	return t
}
