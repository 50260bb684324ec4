package player

import (
	"encoding/gob"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"cantata/pkg/models"
)

// State file names under the data directory. The binary blobs are only
// ever read back by this package; their layout is private to it.
const (
	stateTrackFile     = "track_id.bin"
	stateAlbumsFile    = "Albums.bin"
	statePlaylistsFile = "playlist_ids.bin"
	stateQueueFile     = "queue.bin"
	statePositionFile  = "position.bin"
	statePlayerFile    = "player.bin"
)

// albumSnapshot flattens an album into ids so the snapshot carries no
// object cycles.
type albumSnapshot struct {
	ID           int
	Storage      models.StorageType
	GenreFilter  []int
	ArtistFilter []int
	TrackIDs     []int
}

type playerSnapshot struct {
	Shuffle bool
	Party   bool
	Repeat  models.RepeatMode
	Volume  float64
}

// PlaylistIDs returns the playlist context ids of the current playback,
// with models.PlaylistRadios standing in for a playing radio.
func (p *Player) PlaylistIDs() []int {
	if p.current.IsRadio() {
		return []int{models.PlaylistRadios}
	}
	return append([]int(nil), p.playlistIDs...)
}

// SetPlaylistIDs records which playlists the current playback came from.
func (p *Player) SetPlaylistIDs(ids []int) {
	p.playlistIDs = append([]int(nil), ids...)
}

// SaveState snapshots playback to the data directory. A no-op unless
// state saving is enabled in the configuration.
func (p *Player) SaveState() error {
	if !p.cfg.Playback.SaveState {
		return nil
	}
	dir := p.cfg.Paths.DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	snapshots := make([]albumSnapshot, 0, len(p.albums))
	for _, a := range p.albums {
		snapshots = append(snapshots, albumSnapshot{
			ID:           a.ID,
			Storage:      a.Storage,
			GenreFilter:  a.GenreFilter,
			ArtistFilter: a.ArtistFilter,
			TrackIDs:     a.TrackIDs(),
		})
	}

	steps := []struct {
		file  string
		value any
	}{
		{stateTrackFile, p.current.ID},
		{statePositionFile, p.sink.Position()},
		{stateAlbumsFile, snapshots},
		{stateQueueFile, p.Queue()},
		{statePlaylistsFile, p.PlaylistIDs()},
		{statePlayerFile, playerSnapshot{
			Shuffle: p.cfg.Playback.Shuffle,
			Party:   p.party,
			Repeat:  p.repeatMode(),
			Volume:  p.sink.Volume(),
		}},
	}
	for _, s := range steps {
		if err := saveGob(filepath.Join(dir, s.file), s.value); err != nil {
			return err
		}
	}
	return nil
}

// RestoreState rebuilds playback from the last snapshot and leaves the
// restored track paused at its saved position. Missing state files are
// not an error.
func (p *Player) RestoreState() error {
	if !p.cfg.Playback.SaveState {
		return nil
	}
	dir := p.cfg.Paths.DataDir

	var snap playerSnapshot
	if err := loadGob(filepath.Join(dir, statePlayerFile), &snap); err == nil {
		p.cfg.Playback.Shuffle = snap.Shuffle
		// Re-enter party mode on the restored list without redrawing it.
		p.party = snap.Party
		p.cfg.SetRepeatMode(snap.Repeat)
		p.sink.SetVolume(snap.Volume)
	}

	var snapshots []albumSnapshot
	if err := loadGob(filepath.Join(dir, stateAlbumsFile), &snapshots); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	var albums []*models.Album
	for _, s := range snapshots {
		if a := p.restoreAlbum(s); a != nil {
			albums = append(albums, a)
		}
	}
	p.SetAlbums(albums)

	var queue []int
	if err := loadGob(filepath.Join(dir, stateQueueFile), &queue); err == nil {
		p.SetQueue(queue, false)
	}
	var playlistIDs []int
	if err := loadGob(filepath.Join(dir, statePlaylistsFile), &playlistIDs); err == nil {
		p.playlistIDs = playlistIDs
	}

	trackID := models.NoneID
	if err := loadGob(filepath.Join(dir, stateTrackFile), &trackID); err != nil || trackID == models.NoneID {
		return nil
	}
	var position int64
	_ = loadGob(filepath.Join(dir, statePositionFile), &position)

	if trackID < models.NoneID {
		radio, err := p.lib.Radio(models.RadioIDFromTrack(trackID))
		if err != nil {
			return nil
		}
		p.PlayRadio(radio)
		p.Pause()
		return nil
	}

	track := models.EmptyTrack()
	if albumIdx, trackIdx, ok := p.findTrack(trackID); ok {
		track = p.albums[albumIdx].Tracks()[trackIdx]
	} else {
		t, err := p.lib.Track(trackID)
		if err != nil {
			return nil
		}
		track = t
	}
	p.Load(track)
	if position > 0 {
		p.Seek(position)
	}
	p.Pause()
	return nil
}

// restoreAlbum rebuilds an album from its snapshot, falling back to a
// bare ephemeral album when the catalog row is gone but the tracks
// survive.
func (p *Player) restoreAlbum(s albumSnapshot) *models.Album {
	album, err := p.lib.AlbumWithTracks(s.ID, s.GenreFilter, s.ArtistFilter)
	if err == nil && album.HasTracks() {
		if len(s.TrackIDs) > 0 && len(s.TrackIDs) < len(album.Tracks()) {
			album.SetTracks(filterTracks(album.Tracks(), s.TrackIDs))
		}
		return album
	}
	var tracks []*models.Track
	for _, id := range s.TrackIDs {
		if t, terr := p.lib.Track(id); terr == nil {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return nil
	}
	fallback := &models.Album{ID: s.ID, Storage: models.StorageEphemeral}
	fallback.SetTracks(tracks)
	return fallback
}

func filterTracks(tracks []*models.Track, ids []int) []*models.Track {
	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var out []*models.Track
	for _, t := range tracks {
		if keep[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func saveGob(path string, value any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(value)
}

func loadGob(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(out)
}
