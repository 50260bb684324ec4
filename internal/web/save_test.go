package web

import (
	"fmt"
	"path/filepath"
	"testing"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSaver(t *testing.T) (*Saver, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.New(filepath.Join(t.TempDir(), "library.db"), bus.New(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return NewSaver(config.DefaultConfig(), cat, bus.New(), nil, quietLogger()), cat
}

func webPayload(name string, trackNames ...string) AlbumPayload {
	payload := AlbumPayload{
		Name:    name,
		Artists: []string{name + " Artist"},
		Year:    1999,
	}
	for _, tn := range trackNames {
		payload.Tracks = append(payload.Tracks, TrackPayload{Name: tn, DurationMS: 210_000})
	}
	payload.Canonicalize()
	return payload
}

func TestPersistMaterializesAlbum(t *testing.T) {
	saver, cat := newTestSaver(t)

	album, err := saver.Persist(webPayload("Discovery", "One More Time", "Aerodynamic"), models.StorageSaved)
	require.NoError(t, err)
	require.Len(t, album.Tracks(), 2)
	assert.Equal(t, models.StorageSaved, album.Storage)
	assert.Equal(t, 1999, album.Year)

	track := album.Tracks()[0]
	assert.Equal(t, "One More Time", track.Name)
	assert.Equal(t, 210_000, track.Duration)
	assert.Equal(t, "web://"+track.ExternalID, track.URI)

	genreID := cat.GenreIDByName(catalog.WebGenreName)
	require.NotEqual(t, models.NoneID, genreID)
	assert.Contains(t, track.GenreIDs, genreID)
}

func TestPersistIsIdempotent(t *testing.T) {
	saver, cat := newTestSaver(t)
	payload := webPayload("Discovery", "One More Time")

	first, err := saver.Persist(payload, models.StorageEphemeral)
	require.NoError(t, err)
	second, err := saver.Persist(payload, models.StorageSaved)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "canonical ids collapse repeat saves onto one row")
	assert.Equal(t, models.StorageSaved, second.Storage, "a later save upgrades the storage")
	assert.Equal(t, first.ID, cat.AlbumIDForExternal(payload.ExternalID))
}

func TestCleanOldAlbumsDemotesPastCap(t *testing.T) {
	saver, cat := newTestSaver(t)
	saver.cfg.Playback.MaxSavedAlbums = 2

	var ids []int
	for i := 0; i < 3; i++ {
		album, err := saver.Persist(webPayload(fmt.Sprintf("Album %d", i), "T"), models.StorageSaved)
		require.NoError(t, err)
		ids = append(ids, album.ID)
	}

	require.NoError(t, saver.CleanOldAlbums())

	count, err := cat.CountAlbums(models.StorageSaved)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	demoted, err := cat.CountAlbums(models.StorageEphemeral)
	require.NoError(t, err)
	assert.Equal(t, 1, demoted)

	// Saved albums never vanish outright from a demotion.
	for _, id := range ids {
		_, err := cat.Album(id)
		assert.NoError(t, err)
	}
}

func TestCleanOldAlbumsNoopUnderCap(t *testing.T) {
	saver, cat := newTestSaver(t)
	_, err := saver.Persist(webPayload("Only", "T"), models.StorageSaved)
	require.NoError(t, err)

	require.NoError(t, saver.CleanOldAlbums())
	count, err := cat.CountAlbums(models.StorageSaved)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
