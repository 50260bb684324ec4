package player

import (
	"fmt"
	"testing"
	"time"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/internal/sink"
	"cantata/internal/task"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeLibrary is an in-memory Library for driving the player without a
// database.
type fakeLibrary struct {
	tracks         map[int]*models.Track
	albums         map[int]*models.Album
	radios         map[int]models.Radio
	randomAlbumIDs []int
	// randomFn overrides RandomAlbumIDs for scope-sensitive tests.
	randomFn   func(scope catalog.Scope, limit int) ([]int, error)
	popularity map[int]float64
	listened   map[int]int64
	rates      map[int]int
	loved      map[int]bool
	durations  map[int]int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		tracks:     make(map[int]*models.Track),
		albums:     make(map[int]*models.Album),
		radios:     make(map[int]models.Radio),
		popularity: make(map[int]float64),
		listened:   make(map[int]int64),
		rates:      make(map[int]int),
		loved:      make(map[int]bool),
		durations:  make(map[int]int),
	}
}

func (f *fakeLibrary) addAlbum(a *models.Album) {
	f.albums[a.ID] = a
	for _, t := range a.Tracks() {
		f.tracks[t.ID] = t
	}
}

func (f *fakeLibrary) Track(id int) (*models.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return nil, fmt.Errorf("track %d not found", id)
	}
	return t, nil
}

func (f *fakeLibrary) TrackIDByURI(uri string) int {
	for _, t := range f.tracks {
		if t.URI == uri {
			return t.ID
		}
	}
	return models.NoneID
}

func (f *fakeLibrary) Album(id int) (*models.Album, error) {
	a, ok := f.albums[id]
	if !ok {
		return nil, fmt.Errorf("album %d not found", id)
	}
	return a, nil
}

func (f *fakeLibrary) AlbumWithTracks(id int, genreIDs, artistIDs []int) (*models.Album, error) {
	a, ok := f.albums[id]
	if !ok {
		return nil, fmt.Errorf("album %d not found", id)
	}
	clone := a.Clone()
	clone.GenreFilter = genreIDs
	clone.ArtistFilter = artistIDs
	return clone, nil
}

func (f *fakeLibrary) AlbumIDs(scope catalog.Scope) ([]int, error) {
	ids := make([]int, 0, len(f.albums))
	for id := range f.albums {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeLibrary) RandomAlbumIDs(scope catalog.Scope, limit int) ([]int, error) {
	if f.randomFn != nil {
		return f.randomFn(scope, limit)
	}
	if len(f.randomAlbumIDs) <= limit {
		return f.randomAlbumIDs, nil
	}
	return f.randomAlbumIDs[:limit], nil
}

func (f *fakeLibrary) ArtistIDByName(name string) int { return models.NoneID }

func (f *fakeLibrary) GenreIDs() ([]int, error) { return nil, nil }

func (f *fakeLibrary) Radio(id int) (models.Radio, error) {
	r, ok := f.radios[id]
	if !ok {
		return models.Radio{}, fmt.Errorf("radio %d not found", id)
	}
	return r, nil
}

func (f *fakeLibrary) SetTrackPopularity(id int, popularity float64) error {
	f.popularity[id] = popularity
	return nil
}

func (f *fakeLibrary) SetTrackListenedAt(id int, ts int64) error {
	f.listened[id] = ts
	return nil
}

func (f *fakeLibrary) SetTrackRate(id, rate int) error {
	f.rates[id] = rate
	return nil
}

func (f *fakeLibrary) SetTrackLoved(id int, loved bool) error {
	f.loved[id] = loved
	return nil
}

func (f *fakeLibrary) SetTrackDuration(id, durationMS int) error {
	f.durations[id] = durationMS
	return nil
}

// recordingScrobbler captures dispatched listens.
type recordingScrobbler struct {
	listens    []int
	playingNow []int
	loves      map[int]bool
}

func (r *recordingScrobbler) Listen(t *models.Track, ts time.Time) {
	r.listens = append(r.listens, t.ID)
}

func (r *recordingScrobbler) PlayingNow(t *models.Track) {
	r.playingNow = append(r.playingNow, t.ID)
}

func (r *recordingScrobbler) Love(t *models.Track, loved bool) {
	if r.loves == nil {
		r.loves = make(map[int]bool)
	}
	r.loves[t.ID] = loved
}

func makeAlbum(albumID int, trackIDs ...int) *models.Album {
	album := &models.Album{ID: albumID, Name: fmt.Sprintf("Album %d", albumID), Storage: models.StorageCollection}
	tracks := make([]*models.Track, 0, len(trackIDs))
	for i, id := range trackIDs {
		tracks = append(tracks, &models.Track{
			ID:          id,
			Name:        fmt.Sprintf("Track %d", id),
			AlbumID:     albumID,
			TrackNumber: i + 1,
			DiscNumber:  1,
			Duration:    200_000,
			Storage:     models.StorageCollection,
			URI:         fmt.Sprintf("file:///music/%d/%d.flac", albumID, id),
		})
	}
	album.SetTracks(tracks)
	return album
}

type fixture struct {
	player *Player
	sink   *sink.MemorySink
	lib    *fakeLibrary
	events *bus.Bus
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Playback.SaveState = false
	cfg.Paths.DataDir = t.TempDir()
	events := bus.New()
	lib := newFakeLibrary()
	snk := sink.NewMemorySink()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	p := New(cfg, events, lib, snk, task.NewDirect(), logger)
	return &fixture{player: p, sink: snk, lib: lib, events: events, cfg: cfg}
}

// loadAlbums installs albums in both the library and the playback list.
func (fx *fixture) loadAlbums(albums ...*models.Album) {
	for _, a := range albums {
		fx.lib.addAlbum(a)
		fx.player.AddAlbum(a)
	}
}

func TestLinearNextAcrossAlbums(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[10])
	require.Equal(t, 10, fx.player.Current().ID)
	assert.Equal(t, 11, fx.player.NextTrack().ID)

	fx.player.Next()
	assert.Equal(t, 11, fx.player.Current().ID)
	assert.Equal(t, 20, fx.player.NextTrack().ID, "next should cross the album boundary")
	assert.Equal(t, 10, fx.player.PrevTrack().ID)

	fx.player.Next()
	assert.Equal(t, 20, fx.player.Current().ID)
	assert.True(t, fx.player.NextTrack().IsNone(), "no next at the end without repeat")
}

func TestRepeatAllWrapsBothWays(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.Repeat = "all"
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[20])
	assert.Equal(t, 10, fx.player.NextTrack().ID, "end wraps to the first track")

	fx.player.Load(fx.lib.tracks[10])
	assert.Equal(t, 20, fx.player.PrevTrack().ID, "start wraps to the last track")
}

func TestQueueJumpAndAnchorRestore(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11, 12), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.AppendToQueue(20, true)
	require.Equal(t, 20, fx.player.NextTrack().ID, "queued track outranks linear order")

	fx.player.Next()
	assert.Equal(t, 20, fx.player.Current().ID)
	assert.Empty(t, fx.player.Queue(), "played queue entry is consumed")
	assert.Equal(t, 11, fx.player.NextTrack().ID, "linear order resumes from the anchor, not the queued track")
}

func TestQueuePrependOutranksAppend(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.AppendToQueue(11, false)
	fx.player.PrependToQueue(10, false)
	assert.Equal(t, []int{10, 11}, fx.player.Queue())
}

func TestStopAfterStopsAndClears(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.StopAfter(10)
	fx.player.Load(fx.lib.tracks[10])
	assert.True(t, fx.player.NextTrack().IsNone(), "armed track suppresses next")

	fx.sink.FireEOS()
	assert.True(t, fx.player.Current().IsNone(), "playback stops after the armed track")

	// The flag is one-shot.
	fx.player.Load(fx.lib.tracks[10])
	assert.Equal(t, 11, fx.player.NextTrack().ID)
}

func TestPrevRestartsWhenPastThreshold(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[11])
	fx.sink.SetPosition(5_000)
	fx.player.Prev()
	assert.Equal(t, 11, fx.player.Current().ID, "past two seconds prev restarts the track")
	assert.EqualValues(t, 0, fx.sink.Position())

	fx.player.Prev()
	assert.Equal(t, 10, fx.player.Current().ID, "near the start prev jumps back")
}

func TestRemoveCurrentAlbumSkipsToNextAlbum(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.RemoveAlbumByID(1)

	assert.Equal(t, 20, fx.player.Current().ID, "playback moves off the removed album before it leaves the list")
	assert.Equal(t, sink.Playing, fx.sink.Status())
	assert.Equal(t, []int{2}, fx.player.AlbumIDs())
	assert.True(t, fx.player.NextTrack().IsNone(), "neighbors recompute against the remaining albums")
}

func TestRemoveCurrentAlbumAtListEndStops(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[20])
	fx.player.RemoveAlbumByID(2)

	assert.True(t, fx.player.Current().IsNone(), "no album to skip into stops playback")
	assert.Equal(t, []int{1}, fx.player.AlbumIDs())
}

func TestRemoveOtherAlbumKeepsPlaying(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.RemoveAlbumByID(2)

	assert.Equal(t, 10, fx.player.Current().ID)
	assert.Equal(t, 11, fx.player.NextTrack().ID)
	assert.Equal(t, []int{1}, fx.player.AlbumIDs())
}

func TestAddAlbumMergesTail(t *testing.T) {
	fx := newFixture(t)
	first := makeAlbum(1, 10, 11)
	fx.lib.addAlbum(first)
	fx.player.AddAlbum(first)

	more := makeAlbum(1, 11, 12)
	fx.player.AddAlbum(more)

	albums := fx.player.Albums()
	require.Len(t, albums, 1, "same album appended twice stays one entry")
	assert.Equal(t, []int{10, 11, 12}, albums[0].TrackIDs())
}

func TestSkipAlbum(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.SkipAlbum()
	assert.Equal(t, 20, fx.player.Current().ID)

	fx.player.SkipAlbum()
	assert.True(t, fx.player.Current().IsNone(), "skipping past the last album stops")
}

func TestSkipAlbumRepeatAllWraps(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.Repeat = "all"
	fx.loadAlbums(makeAlbum(1, 10), makeAlbum(2, 20))

	fx.player.Load(fx.lib.tracks[20])
	fx.player.SkipAlbum()
	assert.Equal(t, 10, fx.player.Current().ID)
}

func TestTrackFinishedAdvancesThenStops(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	fx.sink.FireEOS()
	assert.Equal(t, 11, fx.player.Current().ID)

	fx.sink.FireEOS()
	assert.True(t, fx.player.Current().IsNone())
	assert.Equal(t, sink.Stopped, fx.sink.Status())
}

func TestTrackFinishedRecordsListen(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	fx.sink.FireEOS()

	assert.NotZero(t, fx.lib.listened[10])
	assert.Greater(t, fx.lib.popularity[10], 0.0)
}

func TestRepeatTrackPinsNext(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.Repeat = "track"
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	assert.Equal(t, 10, fx.player.NextTrack().ID)

	// The queue still outranks track repeat.
	fx.player.AppendToQueue(11, false)
	assert.Equal(t, 11, fx.player.NextTrack().ID)
}

func TestRadioSuppressesNeighbors(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))
	fx.lib.radios[3] = models.Radio{ID: 3, Name: "Jazz FM", URI: "https://example.test/jazz"}

	radio, err := fx.lib.Radio(3)
	require.NoError(t, err)
	fx.player.PlayRadio(radio)

	assert.True(t, fx.player.Current().IsRadio())
	assert.True(t, fx.player.NextTrack().IsNone())
	assert.True(t, fx.player.PrevTrack().IsNone())
	assert.Equal(t, 3, fx.player.CurrentRadioID())

	// Queued jumps still win over a radio.
	fx.player.AppendToQueue(10, false)
	assert.Equal(t, 10, fx.player.NextTrack().ID)
}

func TestScrobbleThreshold(t *testing.T) {
	cases := []struct {
		name       string
		durationMS int
		playedMS   int64
		want       bool
	}{
		{"half played", 200_000, 100_000, true},
		{"under half", 200_000, 99_000, false},
		{"four minute cap", 600_000, 240_000, true},
		{"long track under cap", 600_000, 239_000, false},
		{"short track never", 29_000, 29_000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			scrobbler := &recordingScrobbler{}
			fx.player.SetScrobbler(scrobbler)

			album := makeAlbum(1, 10, 11)
			album.Tracks()[0].Duration = tc.durationMS
			fx.lib.addAlbum(album)
			fx.player.AddAlbum(album)

			fx.player.Load(fx.lib.tracks[10])
			fx.sink.SetPosition(tc.playedMS)
			fx.player.Next()

			if tc.want {
				assert.Equal(t, []int{10}, scrobbler.listens)
			} else {
				assert.Empty(t, scrobbler.listens)
			}
		})
	}
}

func TestPlayingNowOnStreamStart(t *testing.T) {
	fx := newFixture(t)
	scrobbler := &recordingScrobbler{}
	fx.player.SetScrobbler(scrobbler)
	fx.loadAlbums(makeAlbum(1, 10))

	fx.player.Load(fx.lib.tracks[10])
	assert.Equal(t, []int{10}, scrobbler.playingNow)
}

func TestSignalOrderOnStreamStart(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	var order []string
	fx.events.Subscribe(bus.SignalCurrentChanged, func(any) { order = append(order, "current") })
	fx.events.Subscribe(bus.SignalNextChanged, func(any) { order = append(order, "next") })

	fx.player.Load(fx.lib.tracks[10])
	require.NotEmpty(t, order)
	assert.Equal(t, "current", order[0], "current-changed precedes next-changed")
}

func TestShuffleCyclePlaysEverythingOnce(t *testing.T) {
	fx := newFixture(t)
	fx.player.SetShuffle(true)
	fx.loadAlbums(makeAlbum(1, 10, 11, 12), makeAlbum(2, 20, 21))

	fx.player.Load(fx.lib.tracks[10])
	seen := map[int]bool{10: true}
	for !fx.player.NextTrack().IsNone() {
		fx.player.Next()
		id := fx.player.Current().ID
		assert.False(t, seen[id], "track %d repeated within the cycle", id)
		seen[id] = true
	}
	assert.Len(t, seen, 5, "every track plays exactly once per cycle")
}

func TestShuffleHistoryBackAndForward(t *testing.T) {
	fx := newFixture(t)
	fx.player.SetShuffle(true)
	fx.loadAlbums(makeAlbum(1, 10, 11, 12, 13))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.Next()
	second := fx.player.Current().ID
	fx.player.Next()
	third := fx.player.Current().ID

	fx.player.Prev()
	assert.Equal(t, second, fx.player.Current().ID, "prev replays the history")
	fx.player.Prev()
	assert.Equal(t, 10, fx.player.Current().ID)

	fx.player.Next()
	assert.Equal(t, second, fx.player.Current().ID, "forward replays history before drawing randomly")
	fx.player.Next()
	assert.Equal(t, third, fx.player.Current().ID)
}

func TestShuffleRepeatAllResetsCycle(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.Repeat = "all"
	fx.player.SetShuffle(true)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.Next()
	assert.False(t, fx.player.NextTrack().IsNone(), "repeat-all restarts the cycle instead of ending")
}

func TestAutoRandomAppendsAlbumAtEnd(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.Repeat = "auto-random"
	fx.loadAlbums(makeAlbum(1, 10))
	extra := makeAlbum(2, 20, 21)
	fx.lib.addAlbum(extra)
	fx.lib.randomAlbumIDs = []int{2}

	fx.player.Load(fx.lib.tracks[10])

	require.Len(t, fx.player.Albums(), 2, "one album appended when playback runs out")
	assert.Equal(t, 20, fx.player.NextTrack().ID)
}

func TestPartyBuildsSkippableRandomList(t *testing.T) {
	fx := newFixture(t)
	fx.lib.addAlbum(makeAlbum(1, 10, 11))
	fx.lib.addAlbum(makeAlbum(2, 20))
	fx.lib.randomAlbumIDs = []int{1, 2}

	fx.player.SetParty(true)

	require.True(t, fx.player.IsParty())
	assert.Equal(t, []int{1, 2}, fx.player.AlbumIDs())
	for _, a := range fx.player.Albums() {
		assert.True(t, a.AllowSkipping, "party albums allow skipping")
	}
	assert.False(t, fx.player.Current().IsNone(), "party starts playback when idle")
	assert.Equal(t, sink.Playing, fx.sink.Status())
}

func TestPartyWhilePlayingKeepsCurrentStream(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10))
	fx.player.Load(fx.lib.tracks[10])

	fx.lib.addAlbum(makeAlbum(2, 20))
	fx.lib.randomAlbumIDs = []int{2}
	fx.player.SetParty(true)

	assert.Equal(t, 10, fx.player.Current().ID, "an active stream survives entering party mode")
	assert.Equal(t, []int{2}, fx.player.AlbumIDs())
}

func TestLeavingPartyNarrowsToCurrentAlbum(t *testing.T) {
	fx := newFixture(t)
	fx.lib.addAlbum(makeAlbum(1, 10, 11))
	fx.lib.addAlbum(makeAlbum(2, 20))
	fx.lib.randomAlbumIDs = []int{1, 2}

	fx.player.SetParty(true)
	current := fx.player.Current()
	require.False(t, current.IsNone())

	fx.player.SetParty(false)

	assert.False(t, fx.player.IsParty())
	assert.Equal(t, []int{current.AlbumID}, fx.player.AlbumIDs(), "only the current track's album stays")
	assert.Equal(t, current.ID, fx.player.Current().ID, "leaving party keeps the stream")
}

func TestPartyEmptyGenreSelectionFallsBackToAll(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Playback.PartyIDs = []int{99}
	fx.lib.addAlbum(makeAlbum(1, 10))
	fx.lib.randomFn = func(scope catalog.Scope, limit int) ([]int, error) {
		if len(scope.GenreIDs) > 0 {
			return nil, nil
		}
		return []int{1}, nil
	}

	fx.player.SetParty(true)

	require.True(t, fx.player.IsParty())
	assert.Equal(t, []int{1}, fx.player.AlbumIDs())
}

func TestSetLovedUpdatesCatalogAndProviders(t *testing.T) {
	fx := newFixture(t)
	scrobbler := &recordingScrobbler{}
	fx.player.SetScrobbler(scrobbler)
	fx.loadAlbums(makeAlbum(1, 10))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.SetLoved(true)

	assert.True(t, fx.lib.loved[10])
	assert.True(t, fx.player.Current().Loved)
	assert.True(t, scrobbler.loves[10])

	fx.player.SetLoved(false)
	assert.False(t, fx.lib.loved[10])
	assert.False(t, scrobbler.loves[10])
}

func TestStreamStartRecordsSinkDuration(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10))

	fx.sink.SetDuration(184_000)
	fx.player.Load(fx.lib.tracks[10])

	assert.Equal(t, 184_000, fx.lib.durations[10])
	assert.Equal(t, 184_000, fx.player.Current().Duration)
}

func TestVolumeClampAndSignal(t *testing.T) {
	fx := newFixture(t)
	fired := 0
	fx.events.Subscribe(bus.SignalVolumeChanged, func(any) { fired++ })

	fx.player.SetVolume(1.5)
	assert.EqualValues(t, 1.0, fx.player.Volume())
	fx.player.SetVolume(-0.2)
	assert.EqualValues(t, 0.0, fx.player.Volume())
	assert.Equal(t, 2, fired)
}

func TestSetRateClamps(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.SetRate(9)
	assert.Equal(t, 5, fx.lib.rates[10])
	fx.player.SetRate(-3)
	assert.Equal(t, 0, fx.lib.rates[10])
}

func TestStopClearsEverything(t *testing.T) {
	fx := newFixture(t)
	fx.loadAlbums(makeAlbum(1, 10, 11))

	fx.player.Load(fx.lib.tracks[10])
	fx.player.Stop()

	assert.True(t, fx.player.Current().IsNone())
	assert.True(t, fx.player.NextTrack().IsNone())
	assert.True(t, fx.player.PrevTrack().IsNone())
	assert.Equal(t, sink.Stopped, fx.sink.Status())
}
