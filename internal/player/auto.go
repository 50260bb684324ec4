package player

import (
	"context"

	"cantata/internal/catalog"
	"cantata/pkg/models"
)

// continueAtEnd appends one album when playback is about to run out and
// an automatic repeat mode is active. Triggered on every next-changed.
func (p *Player) continueAtEnd() {
	if !p.next.IsNone() || p.current.IsNone() || p.current.IsRadio() {
		return
	}
	if p.stopAfterMatched {
		return
	}
	switch p.repeatMode() {
	case models.RepeatAutoRandom:
		p.appendRandomAlbum()
	case models.RepeatAutoSimilar:
		p.appendSimilarAlbum()
	}
}

// appendRandomAlbum adds one random collection album to the playback
// list.
func (p *Player) appendRandomAlbum() {
	scope := catalog.Scope{Storage: models.StorageCollection | models.StorageSaved}
	ids, err := p.lib.RandomAlbumIDs(scope, 1)
	if err != nil || len(ids) == 0 {
		return
	}
	if p.HasAlbum(ids[0]) && len(p.albums) > 1 {
		return
	}
	album, err := p.lib.AlbumWithTracks(ids[0], nil, nil)
	if err != nil || !album.HasTracks() {
		return
	}
	p.AddAlbum(album)
}

// appendSimilarAlbum resolves artists similar to the current track on a
// worker, then appends an album by the best local match. Falls back to a
// random album when no similar artist is in the collection.
func (p *Player) appendSimilarAlbum() {
	if p.similars == nil {
		p.appendRandomAlbum()
		return
	}
	ctx := p.resetAuto()
	artistIDs := append([]int(nil), p.current.ArtistIDs...)
	p.tasks.RunBlocking(
		func() (any, error) {
			return p.similars.SimilarArtists(ctx, artistIDs)
		},
		func(value any, err error) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.WithError(err).Debug("Similar artists lookup failed")
				p.appendRandomAlbum()
				return
			}
			names, _ := value.([]string)
			if !p.appendAlbumByArtists(names) {
				p.appendRandomAlbum()
			}
		})
}

// appendAlbumByArtists tries each artist name against the local catalog
// and appends a random album of the first match.
func (p *Player) appendAlbumByArtists(names []string) bool {
	for _, name := range names {
		artistID := p.lib.ArtistIDByName(name)
		if artistID == models.NoneID {
			continue
		}
		scope := catalog.Scope{
			ArtistIDs: []int{artistID},
			Storage:   models.StorageCollection | models.StorageSaved,
		}
		ids, err := p.lib.RandomAlbumIDs(scope, 1)
		if err != nil || len(ids) == 0 {
			continue
		}
		if p.HasAlbum(ids[0]) {
			continue
		}
		album, err := p.lib.AlbumWithTracks(ids[0], nil, nil)
		if err != nil || !album.HasTracks() {
			continue
		}
		p.AddAlbum(album)
		return true
	}
	return false
}

// PlayArtistRadio clears playback and streams top tracks of artists
// similar to the given ones, starting playback as soon as the first
// track arrives. A later PlayArtistRadio or explicit play cancels the
// in-flight session.
func (p *Player) PlayArtistRadio(artistIDs []int) {
	if p.similars == nil {
		return
	}
	ctx := p.resetAuto()
	p.albums = nil
	p.queue = nil
	p.resetShuffleHistory()
	p.playbackMutated()

	ids := append([]int(nil), artistIDs...)
	p.tasks.RunBlocking(
		func() (any, error) {
			return p.similars.SimilarArtists(ctx, ids)
		},
		func(value any, err error) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.WithError(err).Warn("Artist radio failed")
				return
			}
			names, _ := value.([]string)
			p.streamArtistTracks(ctx, names)
		})
}

// streamArtistTracks fetches top tracks artist by artist, hopping each
// batch back onto the owner goroutine as it arrives.
func (p *Player) streamArtistTracks(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	name := names[0]
	rest := names[1:]
	p.tasks.RunBlocking(
		func() (any, error) {
			var tracks []*models.Track
			err := p.similars.TopTracks(ctx, name, func(t *models.Track) {
				tracks = append(tracks, t)
			})
			return tracks, err
		},
		func(value any, err error) {
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				tracks, _ := value.([]*models.Track)
				p.appendRadioTracks(tracks)
			}
			p.streamArtistTracks(ctx, rest)
		})
}

func (p *Player) appendRadioTracks(tracks []*models.Track) {
	if len(tracks) == 0 {
		return
	}
	wasEmpty := len(p.albums) == 0
	for _, t := range tracks {
		if album := t.Album(); album != nil {
			p.AddAlbum(album)
		}
	}
	if wasEmpty && p.current.IsNone() && len(p.albums) > 0 {
		if ts := p.albums[0].Tracks(); len(ts) > 0 {
			p.Load(ts[0])
		}
	}
}

// resetAuto cancels any in-flight auto session and opens a new context.
func (p *Player) resetAuto() context.Context {
	p.cancelAuto()
	ctx, cancel := context.WithCancel(context.Background())
	p.autoCancel = cancel
	return ctx
}

func (p *Player) cancelAuto() {
	if p.autoCancel != nil {
		p.autoCancel()
		p.autoCancel = nil
	}
}
