package player

import (
	"cantata/internal/bus"
	"cantata/pkg/models"
)

// Albums returns the playback albums list in order.
func (p *Player) Albums() []*models.Album {
	out := make([]*models.Album, len(p.albums))
	copy(out, p.albums)
	return out
}

// AlbumIDs returns the ids of the playback albums in order.
func (p *Player) AlbumIDs() []int {
	ids := make([]int, len(p.albums))
	for i, a := range p.albums {
		ids[i] = a.ID
	}
	return ids
}

// HasAlbum reports whether an album id is in the playback list.
func (p *Player) HasAlbum(albumID int) bool {
	return p.albumIndex(albumID) >= 0
}

// AddAlbum appends an album to the playback list. When the last album in
// the list is the same album, the tracks merge into it instead, so that
// adding an album piecewise keeps a single entry.
func (p *Player) AddAlbum(album *models.Album) {
	if album == nil || album.IsNone() || !album.HasTracks() {
		return
	}
	if n := len(p.albums); n > 0 && p.albums[n-1].ID == album.ID {
		p.albums[n-1].AppendTracks(album.Tracks())
	} else {
		p.albums = append(p.albums, album)
	}
	p.playbackMutated()
}

// AddAlbums appends several albums, merging per AddAlbum.
func (p *Player) AddAlbums(albums []*models.Album) {
	for _, a := range albums {
		p.AddAlbum(a)
	}
}

// AddAlbumIDs loads albums from the library and appends them, applying
// the given genre and artist filters to their track sets.
func (p *Player) AddAlbumIDs(albumIDs, genreIDs, artistIDs []int) {
	for _, id := range albumIDs {
		album, err := p.lib.AlbumWithTracks(id, genreIDs, artistIDs)
		if err != nil {
			p.logger.WithError(err).WithField("album_id", id).Warn("Skipping unknown album")
			continue
		}
		p.AddAlbum(album)
	}
}

// RemoveAlbumByID drops an album from the playback list. Removing the
// album of the current track skips to the next album first, so playback
// continues without an anchor into the removed entry.
func (p *Player) RemoveAlbumByID(albumID int) {
	i := p.albumIndex(albumID)
	if i < 0 {
		return
	}
	if p.currentAlbumIndex() == i {
		p.SkipAlbum()
		if i = p.albumIndex(albumID); i < 0 {
			return
		}
	}
	p.albums = append(p.albums[:i], p.albums[i+1:]...)
	p.playbackMutated()
}

// ClearAlbums empties the playback list without stopping playback.
func (p *Player) ClearAlbums() {
	if len(p.albums) == 0 {
		return
	}
	p.albums = nil
	p.playbackMutated()
}

// SetAlbums replaces the playback list wholesale, used by state restore.
func (p *Player) SetAlbums(albums []*models.Album) {
	p.albums = append([]*models.Album(nil), albums...)
	p.playbackMutated()
}

// PlayAlbum replaces the playback list with one album and starts it. In
// shuffle or party mode a random track opens, otherwise the first.
func (p *Player) PlayAlbum(album *models.Album) {
	p.PlayAlbumForAlbums(album, []*models.Album{album})
}

// PlayAlbumForAlbums replaces the playback list with albums and starts
// with the given album.
func (p *Player) PlayAlbumForAlbums(album *models.Album, albums []*models.Album) {
	if album == nil || !album.HasTracks() {
		return
	}
	tracks := album.Tracks()
	track := tracks[0]
	if p.party || p.cfg.Playback.Shuffle {
		track = tracks[p.rng.Intn(len(tracks))]
	}
	p.PlayTrackForAlbums(track, albums)
}

// PlayTrackForAlbums replaces the playback list and starts at a specific
// track within it.
func (p *Player) PlayTrackForAlbums(track *models.Track, albums []*models.Album) {
	if track == nil || track.IsNone() {
		return
	}
	p.cancelAuto()
	p.albums = nil
	for _, a := range albums {
		if a != nil && a.HasTracks() {
			p.albums = append(p.albums, a)
		}
	}
	p.resetShuffleHistory()
	p.playbackMutated()
	p.Load(track)
}

// PlayTrackIDs builds a one-off album from loose tracks and plays it.
func (p *Player) PlayTrackIDs(trackIDs []int, startID int) {
	var tracks []*models.Track
	start := models.EmptyTrack()
	for _, id := range trackIDs {
		t, err := p.lib.Track(id)
		if err != nil {
			p.logger.WithError(err).WithField("track_id", id).Warn("Skipping unknown track")
			continue
		}
		tracks = append(tracks, t)
		if id == startID {
			start = t
		}
	}
	if len(tracks) == 0 {
		return
	}
	if start.IsNone() {
		start = tracks[0]
	}
	album := &models.Album{ID: tracks[0].AlbumID, Storage: models.StorageEphemeral}
	album.SetTracks(tracks)
	p.PlayTrackForAlbums(start, []*models.Album{album})
}

// SkipAlbum jumps to the first track of the next album in the list. At
// the end of the list repeat-all wraps to the first album; every other
// mode stops playback.
func (p *Player) SkipAlbum() {
	i := p.currentAlbumIndex()
	if i < 0 {
		p.Stop()
		return
	}
	next := i + 1
	if next >= len(p.albums) {
		if p.repeatMode() != models.RepeatAll {
			p.Stop()
			return
		}
		next = 0
	}
	tracks := p.albums[next].Tracks()
	if len(tracks) == 0 {
		p.Stop()
		return
	}
	p.Load(tracks[0])
}

// TrackInPlayback reports whether a track id appears in the playback
// albums list.
func (p *Player) TrackInPlayback(trackID int) bool {
	_, _, ok := p.findTrack(trackID)
	return ok
}

// albumIndex returns the position of an album id in the list, or -1.
func (p *Player) albumIndex(albumID int) int {
	for i, a := range p.albums {
		if a.ID == albumID {
			return i
		}
	}
	return -1
}

// currentAlbumIndex locates the album the playback anchor belongs to.
func (p *Player) currentAlbumIndex() int {
	anchor := p.playbackAnchor()
	if anchor.IsNone() {
		return -1
	}
	if album := anchor.Album(); album != nil {
		if i := p.albumIndex(album.ID); i >= 0 {
			return i
		}
	}
	i, _, ok := p.findTrack(anchor.ID)
	if !ok {
		return -1
	}
	return i
}

// playbackAnchor is the track linear order is computed from: the current
// track, unless it came from the queue, in which case the last track
// played from the albums list.
func (p *Player) playbackAnchor() *models.Track {
	if p.currentPlaybackTrack != nil && !p.currentPlaybackTrack.IsNone() {
		if !p.current.IsNone() && p.current.ID == p.currentPlaybackTrack.ID {
			return p.current
		}
		return p.currentPlaybackTrack
	}
	return p.current
}

// findTrack locates a track id in the albums list, returning album and
// track indices.
func (p *Player) findTrack(trackID int) (albumIdx, trackIdx int, ok bool) {
	for i, a := range p.albums {
		for j, t := range a.Tracks() {
			if t.ID == trackID {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// playbackMutated refreshes shuffle snapshots and neighbors after any
// albums list change.
func (p *Player) playbackMutated() {
	p.rebuildShuffle()
	p.events.Emit(bus.SignalPlaybackChanged, nil)
	p.UpdateNextPrev()
}
