package catalog

import (
	"fmt"
	"path/filepath"
	"testing"

	"cantata/internal/bus"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := New(filepath.Join(t.TempDir(), "library.db"), bus.New(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// seedAlbum inserts an artist, genre, album and its tracks, returning the
// album id and the track ids in order.
func seedAlbum(t *testing.T, c *Catalog, name string, storage models.StorageType, trackNames ...string) (int, []int) {
	t.Helper()
	artistID, err := c.AddArtist(name+" Artist", "", "")
	require.NoError(t, err)
	genreID, err := c.AddGenre("Rock")
	require.NoError(t, err)

	albumID, err := c.AddAlbum(&models.Album{
		Name:      name,
		URI:       "file:///music/" + name,
		ArtistIDs: []int{artistID},
		Storage:   storage,
	})
	require.NoError(t, err)

	var trackIDs []int
	for i, tn := range trackNames {
		id, err := c.AddTrack(&models.Track{
			Name:        tn,
			URI:         fmt.Sprintf("file:///music/%s/%02d.flac", name, i+1),
			AlbumID:     albumID,
			ArtistIDs:   []int{artistID},
			GenreIDs:    []int{genreID},
			DiscNumber:  1,
			TrackNumber: i + 1,
			Duration:    180_000,
			Storage:     storage,
		})
		require.NoError(t, err)
		trackIDs = append(trackIDs, id)
	}
	return albumID, trackIDs
}

func TestTrackRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	albumID, trackIDs := seedAlbum(t, c, "Abbey", models.StorageCollection, "Come Together")

	track, err := c.Track(trackIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Come Together", track.Name)
	assert.Equal(t, albumID, track.AlbumID)
	assert.Equal(t, 180_000, track.Duration)
	assert.Len(t, track.ArtistIDs, 1)
	assert.Len(t, track.GenreIDs, 1)
	assert.Equal(t, models.StorageCollection, track.Storage)

	assert.Equal(t, trackIDs[0], c.TrackIDByURI(track.URI))
	assert.Equal(t, models.NoneID, c.TrackIDByURI("file:///nope.flac"))
}

func TestAddTrackUpsertsByURI(t *testing.T) {
	c := newTestCatalog(t)
	albumID, trackIDs := seedAlbum(t, c, "Abbey", models.StorageCollection, "Come Together")

	again, err := c.AddTrack(&models.Track{
		Name:        "Come Together (Remaster)",
		URI:         "file:///music/Abbey/01.flac",
		AlbumID:     albumID,
		DiscNumber:  1,
		TrackNumber: 1,
		Duration:    181_000,
		Storage:     models.StorageCollection,
	})
	require.NoError(t, err)
	assert.Equal(t, trackIDs[0], again, "same URI never creates a second row")

	track, err := c.Track(again)
	require.NoError(t, err)
	assert.Equal(t, "Come Together (Remaster)", track.Name)
	assert.Equal(t, 181_000, track.Duration)
}

func TestAddArtistIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	first, err := c.AddArtist("Miles Davis", "", "")
	require.NoError(t, err)
	second, err := c.AddArtist("miles davis", "", "")
	require.NoError(t, err)
	assert.Equal(t, first, second, "lookup is case insensitive")
	assert.Equal(t, first, c.ArtistIDByName("Miles Davis"))
}

func TestAlbumWithTracksOrdersByDiscAndNumber(t *testing.T) {
	c := newTestCatalog(t)
	albumID, _ := seedAlbum(t, c, "Wall", models.StorageCollection, "In the Flesh", "Thin Ice", "Brick pt 1")

	album, err := c.AlbumWithTracks(albumID, nil, nil)
	require.NoError(t, err)
	require.Len(t, album.Tracks(), 3)
	for i, track := range album.Tracks() {
		assert.Equal(t, i+1, track.TrackNumber)
	}
}

func TestAlbumIDsScopedByStorage(t *testing.T) {
	c := newTestCatalog(t)
	local, _ := seedAlbum(t, c, "Local", models.StorageCollection, "One")
	saved, _ := seedAlbum(t, c, "Saved", models.StorageSaved, "Two")

	ids, err := c.AlbumIDs(Scope{Storage: models.StorageCollection})
	require.NoError(t, err)
	assert.Equal(t, []int{local}, ids)

	ids, err = c.AlbumIDs(Scope{Storage: models.StorageCollection | models.StorageSaved})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{local, saved}, ids)
}

func TestTrackFlagsRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	_, trackIDs := seedAlbum(t, c, "Kind of Blue", models.StorageCollection, "So What")
	id := trackIDs[0]

	require.NoError(t, c.SetTrackRate(id, 4))
	require.NoError(t, c.SetTrackLoved(id, true))
	require.NoError(t, c.SetTrackPopularity(id, 2.5))
	require.NoError(t, c.SetTrackListenedAt(id, 1_700_000_000))

	track, err := c.Track(id)
	require.NoError(t, err)
	assert.Equal(t, 4, track.Rate)
	assert.True(t, track.Loved)
	assert.InDelta(t, 2.5, track.Popularity, 0.001)
}

func TestPlaylistLifecycle(t *testing.T) {
	c := newTestCatalog(t)
	_, trackIDs := seedAlbum(t, c, "Mix", models.StorageCollection, "A", "B")

	plID, err := c.CreatePlaylist("Favourites", "")
	require.NoError(t, err)
	require.NoError(t, c.AddTrackToPlaylist(plID, trackIDs[0]))
	require.NoError(t, c.AddTrackToPlaylist(plID, trackIDs[1]))

	pl, err := c.Playlist(plID)
	require.NoError(t, err)
	assert.Equal(t, "Favourites", pl.Name)
	assert.Equal(t, trackIDs, pl.TrackIDs)

	require.NoError(t, c.RemoveTrackFromPlaylist(plID, trackIDs[0]))
	pl, err = c.Playlist(plID)
	require.NoError(t, err)
	assert.Equal(t, trackIDs[1:], pl.TrackIDs)

	require.NoError(t, c.DeletePlaylist(plID))
	_, err = c.Playlist(plID)
	assert.Error(t, err)
}

func TestRadios(t *testing.T) {
	c := newTestCatalog(t)
	id, err := c.AddRadio("Jazz24", "https://example.test/jazz24")
	require.NoError(t, err)

	// Adding the same URI again reuses the row.
	again, err := c.AddRadio("Jazz24 copy", "https://example.test/jazz24")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	radio, err := c.Radio(id)
	require.NoError(t, err)
	assert.Equal(t, "Jazz24", radio.Name)

	radios, err := c.Radios()
	require.NoError(t, err)
	assert.Len(t, radios, 1)
}

func TestCleanRemovesOrphans(t *testing.T) {
	c := newTestCatalog(t)
	albumID, trackIDs := seedAlbum(t, c, "Gone", models.StorageCollection, "Only")

	require.NoError(t, c.RemoveAlbum(albumID))
	require.NoError(t, c.Clean(true))

	_, err := c.Track(trackIDs[0])
	assert.Error(t, err, "tracks of a removed album are swept")
	assert.Equal(t, models.NoneID, c.ArtistIDByName("Gone Artist"))
}

func TestDelNonPersistent(t *testing.T) {
	c := newTestCatalog(t)
	keep, _ := seedAlbum(t, c, "Keep", models.StorageCollection, "A")
	drop, _ := seedAlbum(t, c, "Drop", models.StorageEphemeral, "B")

	require.NoError(t, c.DelNonPersistent(true))

	_, err := c.Album(keep)
	assert.NoError(t, err)
	_, err = c.Album(drop)
	assert.Error(t, err)
}

func TestOldestAlbumIDs(t *testing.T) {
	c := newTestCatalog(t)
	first, _ := seedAlbum(t, c, "First", models.StorageSaved, "A")
	second, _ := seedAlbum(t, c, "Second", models.StorageSaved, "B")

	count, err := c.CountAlbums(models.StorageSaved)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ids, err := c.OldestAlbumIDs(models.StorageSaved)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Contains(t, [][]int{{first, second}, {second, first}}, ids)
}

func TestExternalIDLookups(t *testing.T) {
	c := newTestCatalog(t)
	albumID, err := c.AddAlbum(&models.Album{Name: "Web Album", ExternalID: "abc123", Storage: models.StorageEphemeral})
	require.NoError(t, err)
	assert.Equal(t, albumID, c.AlbumIDForExternal("abc123"))
	assert.Equal(t, models.NoneID, c.AlbumIDForExternal("missing"))

	// Re-adding by external id updates in place.
	again, err := c.AddAlbum(&models.Album{Name: "Web Album v2", ExternalID: "abc123", Storage: models.StorageSaved})
	require.NoError(t, err)
	assert.Equal(t, albumID, again)
	album, err := c.Album(albumID)
	require.NoError(t, err)
	assert.Equal(t, "Web Album v2", album.Name)
	assert.Equal(t, models.StorageSaved, album.Storage)
}

func TestExecuteSmartQuery(t *testing.T) {
	c := newTestCatalog(t)
	_, trackIDs := seedAlbum(t, c, "Rated", models.StorageCollection, "A", "B")
	require.NoError(t, c.SetTrackRate(trackIDs[1], 5))

	plID, err := c.CreatePlaylist("Best", `SELECT id FROM tracks WHERE rate >= 5`)
	require.NoError(t, err)
	pl, err := c.Playlist(plID)
	require.NoError(t, err)

	ids, err := c.Execute(pl.SmartQuery)
	require.NoError(t, err)
	assert.Equal(t, []int{trackIDs[1]}, ids)
}
