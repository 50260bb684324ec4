package models

// NoneID marks the absence of a track or album. Catalog ids are >= 0;
// radio tracks carry negative sentinel ids derived from the radio row.
const NoneID = -1

// radioIDBase offsets radio ids into the negative track id space so a
// Radio can travel through every player pathway disguised as a Track.
const radioIDBase = 1000

// SentinelRadioRef is the artist/genre id attached to radio tracks.
const SentinelRadioRef = -2

// RadioTrackID maps a radio row id into the sentinel track id space.
func RadioTrackID(radioID int) int {
	return -(radioID + radioIDBase)
}

// RadioIDFromTrack recovers the radio row id from a sentinel track id.
// Returns NoneID if the track id is not a radio sentinel.
func RadioIDFromTrack(trackID int) int {
	if trackID > -radioIDBase {
		return NoneID
	}
	return -trackID - radioIDBase
}

// Track is a playable item. Catalog tracks resolve their album lazily via
// the integer AlbumID; the album pointer is a reseatable handle, never an
// owner, so a Track outliving its Album is always safe.
type Track struct {
	ID          int
	Name        string
	AlbumID     int
	ArtistIDs   []int
	GenreIDs    []int
	DiscNumber  int
	TrackNumber int
	DiscName    string
	Duration    int // milliseconds
	Year        int
	Timestamp   int64 // release timestamp
	MTime       int64
	Rate        int // -1 skip, 0 unrated, 1..5
	Loved       bool
	Popularity  float64
	Storage     StorageType
	ExternalID  string // "sp:<id>", "dz:<id>" or "mb:<id>"
	URI         string

	album *Album
}

// EmptyTrack returns the sentinel "no track" value.
func EmptyTrack() *Track {
	return &Track{ID: NoneID}
}

// IsNone reports whether the track is the absence sentinel.
func (t *Track) IsNone() bool {
	return t == nil || t.ID == NoneID
}

// IsRadio reports whether the track wraps a radio stream.
func (t *Track) IsRadio() bool {
	return t != nil && t.ID <= -radioIDBase
}

// IsWeb reports whether the track lives outside the local collection.
func (t *Track) IsWeb() bool {
	return t != nil && t.Storage.IsWeb()
}

// Album returns the current album handle, which may be nil when the track
// has not been attached to a materialized album yet.
func (t *Track) Album() *Album {
	return t.album
}

// SetAlbum reseats the album handle.
func (t *Track) SetAlbum(a *Album) {
	t.album = a
}
