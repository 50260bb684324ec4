package player

import (
	"container/list"

	"cantata/internal/catalog"
	"cantata/pkg/models"
)

// partyAlbumCount is how many random albums a party session starts with.
const partyAlbumCount = 100

// SetParty toggles party mode. Turning it on replaces the playback list
// with random albums drawn from the configured party genres, falling
// back to all genres when the selection is empty, and starts playback
// when idle. Turning it off narrows the playback list to the album of
// the current track.
func (p *Player) SetParty(on bool) {
	if on == p.party {
		return
	}
	if !on {
		p.party = false
		if i := p.currentAlbumIndex(); i >= 0 {
			p.albums = []*models.Album{p.albums[i]}
		}
		p.playbackMutated()
		return
	}
	scope := catalog.Scope{
		GenreIDs: p.cfg.Playback.PartyIDs,
		Storage:  models.StorageCollection | models.StorageSaved,
	}
	ids, err := p.lib.RandomAlbumIDs(scope, partyAlbumCount)
	if err == nil && len(ids) == 0 && len(scope.GenreIDs) > 0 {
		// The configured party genres match nothing: widen to all.
		scope.GenreIDs = nil
		ids, err = p.lib.RandomAlbumIDs(scope, partyAlbumCount)
	}
	if err != nil || len(ids) == 0 {
		p.logger.WithError(err).Warn("No albums available for party mode")
		return
	}
	var albums []*models.Album
	for _, id := range ids {
		album, err := p.lib.AlbumWithTracks(id, nil, nil)
		if err != nil || !album.HasTracks() {
			continue
		}
		album.AllowSkipping = true
		albums = append(albums, album)
	}
	if len(albums) == 0 {
		return
	}
	p.party = true
	p.resetShuffleHistory()
	p.SetAlbums(albums)
	if !p.IsPlaying() {
		if t := p.nextShuffle(); !t.IsNone() {
			p.Load(t)
		}
	}
}

// shuffleStreamStart records the new current track in the navigation
// history, or just moves the cursor when the stream came from history
// navigation. Runs before the base stream-start bookkeeping.
func (p *Player) shuffleStreamStart() {
	if !(p.party || p.cfg.Playback.Shuffle) {
		return
	}
	if p.current.IsNone() || p.current.IsRadio() {
		return
	}
	cur := p.cursor()
	if cur != nil {
		if cur.Value.(*models.Track).ID == p.current.ID {
			p.markPlayed(p.current)
			return
		}
		// History front is most recent, so going back in play order
		// walks toward the back of the list.
		if back := cur.Next(); back != nil && back.Value.(*models.Track).ID == p.current.ID {
			p.historyPos = back
			p.markPlayed(p.current)
			return
		}
		if fwd := cur.Prev(); fwd != nil && fwd.Value.(*models.Track).ID == p.current.ID {
			p.historyPos = fwd
			p.markPlayed(p.current)
			return
		}
	}
	p.history.PushFront(p.current)
	p.historyPos = p.history.Front()
	p.markPlayed(p.current)
}

// nextShuffle replays forward history first, then draws a random track
// that has not been played in this cycle.
func (p *Player) nextShuffle() *models.Track {
	if cur := p.cursor(); cur != nil {
		if fwd := cur.Prev(); fwd != nil {
			return fwd.Value.(*models.Track)
		}
	}
	return p.pickRandom(true)
}

// prevShuffle walks back through the navigation history.
func (p *Player) prevShuffle() *models.Track {
	if cur := p.cursor(); cur != nil {
		if back := cur.Next(); back != nil {
			return back.Value.(*models.Track)
		}
	}
	return models.EmptyTrack()
}

// pickRandom draws a random unplayed track from the shuffle snapshots.
// When every track has been played, repeat-all resets the cycle and
// draws again; other modes yield the sentinel.
func (p *Player) pickRandom(allowReset bool) *models.Track {
	if len(p.notPlayedAlbums) == 0 && len(p.toPlayAlbums) > 0 {
		p.notPlayedAlbums = append([]*models.Album(nil), p.toPlayAlbums...)
	}
	for len(p.notPlayedAlbums) > 0 {
		i := p.rng.Intn(len(p.notPlayedAlbums))
		album := p.notPlayedAlbums[i]
		if t := p.randomUnplayed(album); !t.IsNone() {
			return t
		}
		// Album exhausted for this cycle.
		p.notPlayedAlbums = append(p.notPlayedAlbums[:i], p.notPlayedAlbums[i+1:]...)
	}
	if allowReset && p.repeatMode() == models.RepeatAll && len(p.toPlayAlbums) > 0 {
		p.alreadyPlayed = make(map[int]map[int]bool)
		p.notPlayedAlbums = append([]*models.Album(nil), p.toPlayAlbums...)
		return p.pickRandom(false)
	}
	return models.EmptyTrack()
}

// randomUnplayed picks a random track of the album not yet played in
// this shuffle cycle. The current track never repeats back to back.
func (p *Player) randomUnplayed(album *models.Album) *models.Track {
	played := p.alreadyPlayed[album.ID]
	var candidates []*models.Track
	for _, t := range album.Tracks() {
		if played[t.ID] {
			continue
		}
		if !p.current.IsNone() && t.ID == p.current.ID {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return models.EmptyTrack()
	}
	return candidates[p.rng.Intn(len(candidates))]
}

// markPlayed records a track as consumed for the current shuffle cycle.
func (p *Player) markPlayed(t *models.Track) {
	albumID := t.AlbumID
	if a := t.Album(); a != nil {
		albumID = a.ID
	}
	played, ok := p.alreadyPlayed[albumID]
	if !ok {
		played = make(map[int]bool)
		p.alreadyPlayed[albumID] = played
	}
	played[t.ID] = true
}

// rebuildShuffle refreshes the album snapshots after any playback list
// change, keeping already-played marks so a cycle survives edits.
func (p *Player) rebuildShuffle() {
	p.toPlayAlbums = append([]*models.Album(nil), p.albums...)
	p.notPlayedAlbums = nil
	for _, a := range p.albums {
		if !p.albumExhausted(a) {
			p.notPlayedAlbums = append(p.notPlayedAlbums, a)
		}
	}
}

func (p *Player) albumExhausted(album *models.Album) bool {
	played := p.alreadyPlayed[album.ID]
	if played == nil {
		return !album.HasTracks()
	}
	for _, t := range album.Tracks() {
		if !played[t.ID] {
			return false
		}
	}
	return true
}

// resetShuffleHistory clears navigation history and the played cycle.
func (p *Player) resetShuffleHistory() {
	p.history.Init()
	p.historyPos = nil
	p.alreadyPlayed = make(map[int]map[int]bool)
}

// cursor returns the history element for the current position.
func (p *Player) cursor() *list.Element {
	if p.historyPos != nil {
		return p.historyPos
	}
	return p.history.Front()
}
