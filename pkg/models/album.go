package models

// Disc is one disc of an album: its number and the ordered tracks on it.
type Disc struct {
	Number int
	Tracks []*Track
}

// Album is an ordered set of tracks sharing a release. Tracks are
// materialized lazily by the catalog; an Album handle with no tracks is
// valid and cheap to copy. GenreFilter/ArtistFilter scope which tracks the
// catalog resolves for this handle.
type Album struct {
	ID         int
	Name       string
	ArtistIDs  []int
	Year       int
	Timestamp  int64
	MTime      int64
	URI        string
	Duration   int // milliseconds, sum of track durations
	Synced     int // synced-devices mask
	Loved      bool
	Popularity float64
	Storage    StorageType
	ExternalID string

	GenreFilter  []int
	ArtistFilter []int

	// AllowSkipping marks party-mode albums whose tracks may be skipped
	// freely without narrowing the selection.
	AllowSkipping bool

	tracks []*Track
}

// EmptyAlbum returns the sentinel "no album" value.
func EmptyAlbum() *Album {
	return &Album{ID: NoneID}
}

// IsNone reports whether the album is the absence sentinel.
func (a *Album) IsNone() bool {
	return a == nil || a.ID == NoneID
}

// Tracks returns the materialized track list, which may be empty if the
// catalog has not resolved it yet.
func (a *Album) Tracks() []*Track {
	return a.tracks
}

// HasTracks reports whether the track list has been materialized.
func (a *Album) HasTracks() bool {
	return len(a.tracks) > 0
}

// TracksCount returns the number of materialized tracks.
func (a *Album) TracksCount() int {
	return len(a.tracks)
}

// SetTracks replaces the track list and reseats each track's album handle.
func (a *Album) SetTracks(tracks []*Track) {
	a.tracks = tracks
	for _, t := range tracks {
		t.SetAlbum(a)
	}
}

// AppendTracks merges tracks into the album preserving order and skipping
// ids already present.
func (a *Album) AppendTracks(tracks []*Track) {
	seen := make(map[int]bool, len(a.tracks))
	for _, t := range a.tracks {
		seen[t.ID] = true
	}
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t.SetAlbum(a)
		a.tracks = append(a.tracks, t)
	}
}

// TrackIDs maps the materialized tracks to their ids.
func (a *Album) TrackIDs() []int {
	ids := make([]int, 0, len(a.tracks))
	for _, t := range a.tracks {
		ids = append(ids, t.ID)
	}
	return ids
}

// Discs groups the materialized tracks by disc number, preserving track
// order within each disc.
func (a *Album) Discs() []Disc {
	var discs []Disc
	index := make(map[int]int)
	for _, t := range a.tracks {
		i, ok := index[t.DiscNumber]
		if !ok {
			i = len(discs)
			index[t.DiscNumber] = i
			discs = append(discs, Disc{Number: t.DiscNumber})
		}
		discs[i].Tracks = append(discs[i].Tracks, t)
	}
	return discs
}

// Clone returns a shallow copy of the album carrying the same track
// handles. Used by the player so its albums list owns its own anchors.
func (a *Album) Clone() *Album {
	clone := *a
	clone.tracks = append([]*Track(nil), a.tracks...)
	return &clone
}
