package player

import (
	"os"
	"path/filepath"
	"testing"

	"cantata/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.SaveState = true
	fx.cfg.Playback.Repeat = "all"
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[11])
	fx.player.AppendToQueue(20, false)
	fx.player.SetPlaylistIDs([]int{7})
	fx.player.SetVolume(0.4)
	fx.sink.SetPosition(42_000)
	require.NoError(t, fx.player.SaveState())

	// A fresh player over the same data directory.
	restored := newFixture(t)
	restored.cfg.Playback.SaveState = true
	restored.cfg.Paths.DataDir = fx.cfg.Paths.DataDir
	restored.lib.addAlbum(makeAlbum(1, 10, 11))
	restored.lib.addAlbum(makeAlbum(2, 20))
	require.NoError(t, restored.player.RestoreState())

	assert.Equal(t, 11, restored.player.Current().ID)
	assert.False(t, restored.player.IsPlaying(), "restored playback stays paused")
	assert.EqualValues(t, 42_000, restored.sink.Position())
	assert.Equal(t, []int{1, 2}, restored.player.AlbumIDs())
	assert.Equal(t, []int{20}, restored.player.Queue())
	assert.Equal(t, []int{7}, restored.player.PlaylistIDs())
	assert.EqualValues(t, 0.4, restored.player.Volume())
	assert.Equal(t, "all", restored.cfg.Playback.Repeat)
}

func TestStateRestoreParty(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.SaveState = true
	fx.lib.addAlbum(makeAlbum(1, 10, 11))
	fx.lib.addAlbum(makeAlbum(2, 20))
	fx.lib.randomAlbumIDs = []int{1, 2}
	fx.player.SetParty(true)
	require.True(t, fx.player.IsParty())
	require.NoError(t, fx.player.SaveState())

	restored := newFixture(t)
	restored.cfg.Playback.SaveState = true
	restored.cfg.Paths.DataDir = fx.cfg.Paths.DataDir
	restored.lib.addAlbum(makeAlbum(1, 10, 11))
	restored.lib.addAlbum(makeAlbum(2, 20))
	require.NoError(t, restored.player.RestoreState())

	assert.True(t, restored.player.IsParty(), "party flag survives the round trip")
	assert.False(t, restored.player.IsPlaying(), "restored playback stays paused")
	assert.Equal(t, fx.player.AlbumIDs(), restored.player.AlbumIDs(), "the party list is restored, not redrawn")
}

func TestStateDisabledWritesNothing(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10))
	fx.player.Load(fx.lib.tracks[10])

	require.NoError(t, fx.player.SaveState())
	_, err := os.Stat(filepath.Join(fx.cfg.Paths.DataDir, "track_id.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestStateRestoreMissingFiles(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.SaveState = true
	require.NoError(t, fx.player.RestoreState())
	assert.True(t, fx.player.Current().IsNone())
}

func TestStateRestoreRadio(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.SaveState = true
	fx.lib.radios[4] = models.Radio{ID: 4, Name: "News", URI: "https://example.test/news"}

	radio, err := fx.lib.Radio(4)
	require.NoError(t, err)
	fx.player.PlayRadio(radio)
	require.NoError(t, fx.player.SaveState())

	restored := newFixture(t)
	restored.cfg.Playback.SaveState = true
	restored.cfg.Paths.DataDir = fx.cfg.Paths.DataDir
	restored.lib.radios[4] = fx.lib.radios[4]
	require.NoError(t, restored.player.RestoreState())

	assert.Equal(t, 4, restored.player.CurrentRadioID())
	assert.False(t, restored.player.IsPlaying())
	assert.Equal(t, []int{models.PlaylistRadios}, restored.player.PlaylistIDs())
}

func TestStateRestoreGoneAlbumFallsBack(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.SaveState = true
	fx.loadAlbums(makeAlbum(1, 10, 11))
	fx.player.Load(fx.lib.tracks[10])
	require.NoError(t, fx.player.SaveState())

	// The album row is gone but the tracks survive.
	restored := newFixture(t)
	restored.cfg.Playback.SaveState = true
	restored.cfg.Paths.DataDir = fx.cfg.Paths.DataDir
	for id, track := range fx.lib.tracks {
		restored.lib.tracks[id] = track
	}
	require.NoError(t, restored.player.RestoreState())

	albums := restored.player.Albums()
	require.Len(t, albums, 1)
	assert.Equal(t, models.StorageEphemeral, albums[0].Storage)
	assert.Equal(t, []int{10, 11}, albums[0].TrackIDs())
	assert.Equal(t, 10, restored.player.Current().ID)
}
