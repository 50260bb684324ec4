package player

import "cantata/pkg/models"

// nextLinear walks the albums list in order: next track on the album,
// then the first track of the following album. At the very end repeat-all
// wraps around and every other mode yields the sentinel.
func (p *Player) nextLinear() *models.Track {
	albumIdx, trackIdx, ok := p.anchorPosition()
	if !ok {
		// Anchor left the playback list: start over from the front.
		return p.firstLinear()
	}
	tracks := p.albums[albumIdx].Tracks()
	if trackIdx+1 < len(tracks) {
		return tracks[trackIdx+1]
	}
	for i := albumIdx + 1; i < len(p.albums); i++ {
		if ts := p.albums[i].Tracks(); len(ts) > 0 {
			return ts[0]
		}
	}
	if p.repeatMode() == models.RepeatAll {
		return p.firstLinear()
	}
	return models.EmptyTrack()
}

// prevLinear is the mirror walk backwards.
func (p *Player) prevLinear() *models.Track {
	albumIdx, trackIdx, ok := p.anchorPosition()
	if !ok {
		return models.EmptyTrack()
	}
	tracks := p.albums[albumIdx].Tracks()
	if trackIdx-1 >= 0 {
		return tracks[trackIdx-1]
	}
	for i := albumIdx - 1; i >= 0; i-- {
		if ts := p.albums[i].Tracks(); len(ts) > 0 {
			return ts[len(ts)-1]
		}
	}
	if p.repeatMode() == models.RepeatAll {
		return p.lastLinear()
	}
	return models.EmptyTrack()
}

// anchorPosition locates the playback anchor inside the albums list.
func (p *Player) anchorPosition() (albumIdx, trackIdx int, ok bool) {
	anchor := p.playbackAnchor()
	if anchor.IsNone() {
		return 0, 0, false
	}
	// Prefer the album handle so duplicate track ids across albums
	// resolve to the right entry.
	if album := anchor.Album(); album != nil {
		if i := p.albumIndex(album.ID); i >= 0 {
			for j, t := range p.albums[i].Tracks() {
				if t.ID == anchor.ID {
					return i, j, true
				}
			}
		}
	}
	return p.findTrack(anchor.ID)
}

func (p *Player) firstLinear() *models.Track {
	for _, a := range p.albums {
		if ts := a.Tracks(); len(ts) > 0 {
			return ts[0]
		}
	}
	return models.EmptyTrack()
}

func (p *Player) lastLinear() *models.Track {
	for i := len(p.albums) - 1; i >= 0; i-- {
		if ts := p.albums[i].Tracks(); len(ts) > 0 {
			return ts[len(ts)-1]
		}
	}
	return models.EmptyTrack()
}
