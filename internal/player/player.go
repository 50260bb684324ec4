// Package player implements the playback engine: an ordered albums list,
// a jump queue, linear and shuffled orders, radio streams and automatic
// continuation, composed behind a single facade.
//
// Player state is confined to the goroutine driving the task runner.
// Worker goroutines never touch it directly; they post results through
// the runner, and every signal emission is a cooperative suspension
// point.
package player

import (
	"container/list"
	"context"
	"math/rand"
	"strings"
	"time"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/internal/sink"
	"cantata/internal/task"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
)

// Library is the narrow catalog contract the player consumes.
type Library interface {
	Track(id int) (*models.Track, error)
	TrackIDByURI(uri string) int
	Album(id int) (*models.Album, error)
	AlbumWithTracks(id int, genreIDs, artistIDs []int) (*models.Album, error)
	AlbumIDs(scope catalog.Scope) ([]int, error)
	RandomAlbumIDs(scope catalog.Scope, limit int) ([]int, error)
	ArtistIDByName(name string) int
	GenreIDs() ([]int, error)
	Radio(id int) (models.Radio, error)
	SetTrackPopularity(id int, popularity float64) error
	SetTrackListenedAt(id int, ts int64) error
	SetTrackRate(id, rate int) error
	SetTrackLoved(id int, loved bool) error
	SetTrackDuration(id, durationMS int) error
}

// Scrobbler receives listen reports from the facade. The dispatcher in
// internal/scrobble implements it.
type Scrobbler interface {
	Listen(t *models.Track, ts time.Time)
	PlayingNow(t *models.Track)
	Love(t *models.Track, loved bool)
}

// SimilarsProvider feeds the auto-similar continuation and artist radio.
type SimilarsProvider interface {
	// SimilarArtists returns artist names similar to the given catalog
	// artists, best match first.
	SimilarArtists(ctx context.Context, artistIDs []int) ([]string, error)
	// TopTracks streams canonical tracks for an artist name as they
	// arrive from the provider.
	TopTracks(ctx context.Context, artist string, onTrack func(*models.Track)) error
}

// WebResolver turns a web:// placeholder URI into a playable one, usually
// through the per-track URI cache.
type WebResolver func(t *models.Track) (string, error)

// minimum position before prev() restarts the track instead of jumping
const restartThresholdMS = 2000

// Player composes the playback layers and owns current/next/prev.
type Player struct {
	logger *logrus.Logger
	cfg    *config.Config
	events *bus.Bus
	lib    Library
	sink   sink.Sink
	tasks  *task.Runner

	scrobbler Scrobbler
	similars  SimilarsProvider
	resolver  WebResolver

	current *models.Track
	next    *models.Track
	prev    *models.Track

	albums      []*models.Album
	queue       []int
	playlistIDs []int

	party       bool
	stopAfterID int
	// stopAfterMatched suppresses next computation for the stream that
	// matched stop_after.
	stopAfterMatched bool
	// currentPlaybackTrack anchors linear order when the current track
	// came from the albums list rather than the queue.
	currentPlaybackTrack *models.Track
	playStart            time.Time

	// shuffle state
	history         *list.List
	historyPos      *list.Element
	alreadyPlayed   map[int]map[int]bool
	toPlayAlbums    []*models.Album
	notPlayedAlbums []*models.Album

	autoCancel context.CancelFunc

	rng *rand.Rand
}

// New wires the facade to its collaborators and registers the sink
// callbacks. Optional collaborators are attached with the Set* methods.
func New(cfg *config.Config, events *bus.Bus, lib Library, snk sink.Sink, tasks *task.Runner, logger *logrus.Logger) *Player {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Player{
		logger:        logger,
		cfg:           cfg,
		events:        events,
		lib:           lib,
		sink:          snk,
		tasks:         tasks,
		current:       models.EmptyTrack(),
		next:          models.EmptyTrack(),
		prev:          models.EmptyTrack(),
		stopAfterID:   models.NoneID,
		history:       list.New(),
		alreadyPlayed: make(map[int]map[int]bool),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	snk.OnStreamStart(func() { tasks.Post(p.onStreamStart) })
	snk.OnEOS(func() { tasks.Post(p.onTrackFinished) })
	snk.OnError(func(err error) { tasks.Post(func() { p.onStreamError(err) }) })

	// Auto continuation mutates the albums list, so it hops through the
	// runner instead of running inside the next-changed emission.
	events.Subscribe(bus.SignalNextChanged, func(any) { tasks.Post(p.continueAtEnd) })

	snk.SetVolume(cfg.Playback.Volume)
	return p
}

// SetScrobbler attaches the scrobble dispatcher.
func (p *Player) SetScrobbler(s Scrobbler) { p.scrobbler = s }

// SetSimilarsProvider attaches the similar-artists source used by
// auto-similar continuation and artist radio.
func (p *Player) SetSimilarsProvider(s SimilarsProvider) { p.similars = s }

// SetWebResolver attaches the web:// URI resolver.
func (p *Player) SetWebResolver(r WebResolver) { p.resolver = r }

// Current returns the currently playing track. Its id is models.NoneID
// exactly when playback is idle.
func (p *Player) Current() *models.Track { return p.current }

// NextTrack returns the upcoming track, or the sentinel when none.
func (p *Player) NextTrack() *models.Track { return p.next }

// PrevTrack returns the previous track, or the sentinel when none.
func (p *Player) PrevTrack() *models.Track { return p.prev }

// IsPlaying reports whether the sink is progressing playback.
func (p *Player) IsPlaying() bool { return p.sink.Status() == sink.Playing }

// IsParty reports whether party mode is active.
func (p *Player) IsParty() bool { return p.party }

// Load starts playback of a track.
func (p *Player) Load(t *models.Track) {
	if t.IsNone() {
		return
	}
	if t.IsRadio() {
		radioID := models.RadioIDFromTrack(t.ID)
		if radio, err := p.lib.Radio(radioID); err == nil {
			p.PlayRadio(radio)
			return
		}
		// Restored sentinel without a backing row: play the URI as-is.
		p.current = t
		if err := p.sink.Load(t.URI); err != nil {
			p.onStreamError(err)
		}
		return
	}

	if strings.HasPrefix(t.URI, "web://") {
		p.loadWeb(t)
		return
	}

	p.current = t
	if !p.loadWithTransition(t.URI) {
		if err := p.sink.Load(t.URI); err != nil {
			p.onStreamError(err)
			return
		}
	}
	p.emitStatus()
}

// loadWeb resolves a web:// placeholder off the main goroutine, emitting
// loading-changed around the preload.
func (p *Player) loadWeb(t *models.Track) {
	if p.resolver == nil {
		p.logger.WithField("uri", t.URI).Warn("No web resolver configured, skipping track")
		p.Next()
		return
	}
	p.events.Emit(bus.SignalLoadingChanged, bus.LoadingPayload{Loading: true, TrackID: t.ID})
	p.tasks.RunBlocking(
		func() (any, error) {
			return p.resolver(t)
		},
		func(value any, err error) {
			p.events.Emit(bus.SignalLoadingChanged, bus.LoadingPayload{Loading: false, TrackID: t.ID})
			if err != nil {
				p.logger.WithError(err).WithField("track_id", t.ID).Warn("Failed to resolve web track")
				p.Next()
				return
			}
			uri := value.(string)
			p.current = t
			if !p.loadWithTransition(uri) {
				if err := p.sink.Load(uri); err != nil {
					p.onStreamError(err)
					return
				}
			}
			p.emitStatus()
		})
}

// Play resumes or starts the sink.
func (p *Player) Play() {
	if p.current.IsNone() {
		return
	}
	p.sink.Play()
	p.emitStatus()
}

// Pause pauses the sink.
func (p *Player) Pause() {
	p.fadedPause()
	p.emitStatus()
}

// PlayPause toggles between playing and paused.
func (p *Player) PlayPause() {
	if p.IsPlaying() {
		p.Pause()
	} else {
		p.Play()
	}
}

// Stop halts playback and clears the current track.
func (p *Player) Stop() {
	p.sink.Stop()
	p.current = models.EmptyTrack()
	p.setNextTrack(models.EmptyTrack())
	p.setPrevTrack(models.EmptyTrack())
	p.events.Emit(bus.SignalCurrentChanged, nil)
	p.emitStatus()
}

// Next advances to the next track, scrobbling the finished one.
func (p *Player) Next() {
	if p.next.IsNone() {
		p.Stop()
		return
	}
	p.scrobbleCurrent(p.sink.Position())
	p.Load(p.next)
}

// Prev restarts the current track when more than two seconds in,
// otherwise jumps to the previous track, otherwise stops.
func (p *Player) Prev() {
	if p.sink.Position() > restartThresholdMS {
		p.Seek(0)
		return
	}
	if !p.prev.IsNone() {
		p.Load(p.prev)
		return
	}
	p.Stop()
}

// Seek jumps to an absolute position in milliseconds and emits seeked.
func (p *Player) Seek(positionMS int64) {
	p.sink.Seek(positionMS)
	p.events.Emit(bus.SignalSeeked, positionMS)
}

// Position reports the current playback position in milliseconds.
func (p *Player) Position() int64 { return p.sink.Position() }

// SetVolume adjusts the sink volume and emits volume-changed.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.sink.SetVolume(v)
	p.cfg.Playback.Volume = v
	p.events.Emit(bus.SignalVolumeChanged, nil)
}

// Volume reports the sink volume.
func (p *Player) Volume() float64 { return p.sink.Volume() }

// StopAfter arms playback to stop once the given track finishes. Passing
// models.NoneID disarms it.
func (p *Player) StopAfter(trackID int) {
	p.stopAfterID = trackID
}

// SetRate rates the current track, clamped to 0..5, and emits
// rate-changed through the catalog.
func (p *Player) SetRate(rate int) {
	if p.current.IsNone() {
		return
	}
	if rate < 0 {
		rate = 0
	} else if rate > 5 {
		rate = 5
	}
	if err := p.lib.SetTrackRate(p.current.ID, rate); err != nil {
		return
	}
	p.current.Rate = rate
}

// SetLoved flags the current track as loved in the catalog and forwards
// the change to the scrobble providers.
func (p *Player) SetLoved(loved bool) {
	if p.current.IsNone() || p.current.IsRadio() {
		return
	}
	if err := p.lib.SetTrackLoved(p.current.ID, loved); err != nil {
		p.logger.WithError(err).WithField("track_id", p.current.ID).Error("Failed to store loved flag")
		return
	}
	p.current.Loved = loved
	if p.scrobbler != nil && !p.cfg.Scrobble.Disabled {
		p.scrobbler.Love(p.current, loved)
	}
}

// SetShuffle toggles shuffle mode and rebuilds the shuffle snapshots.
func (p *Player) SetShuffle(on bool) {
	p.cfg.Playback.Shuffle = on
	p.rebuildShuffle()
	p.UpdateNextPrev()
}

// SetRepeat switches the repeat mode.
func (p *Player) SetRepeat(mode models.RepeatMode) {
	p.cfg.SetRepeatMode(mode)
	p.UpdateNextPrev()
}

// UpdateNextPrev recomputes both neighbors, emitting the change signals.
func (p *Player) UpdateNextPrev() {
	p.setNext()
	p.setPrev()
}

// SetNext overrides the computed next track.
func (p *Player) SetNext(t *models.Track) { p.setNextTrack(t) }

// SetPrev overrides the computed previous track.
func (p *Player) SetPrev(t *models.Track) { p.setPrevTrack(t) }

// onStreamStart runs when the sink reports a new stream. Hook ordering is
// fixed: shuffle history first, then the base bookkeeping, then next,
// then prev.
func (p *Player) onStreamStart() {
	p.shuffleStreamStart()
	p.baseStreamStart()
	p.setNext()
	p.setPrev()
}

// baseStreamStart clears stop-after, consumes the queue head and records
// the playback anchor, then announces the new current track.
func (p *Player) baseStreamStart() {
	p.stopAfterMatched = p.stopAfterID != models.NoneID && p.current.ID == p.stopAfterID
	p.stopAfterID = models.NoneID

	if p.IsInQueue(p.current.ID) {
		p.removeQueued(p.current.ID)
		p.events.Emit(bus.SignalQueueChanged, nil)
	} else {
		p.currentPlaybackTrack = p.current
	}

	p.playStart = time.Now()
	if !p.current.IsRadio() {
		// The sink is authoritative for duration once a stream decodes.
		if d := int(p.sink.Duration()); d > 0 && d != p.current.Duration {
			p.current.Duration = d
			if err := p.lib.SetTrackDuration(p.current.ID, d); err != nil {
				p.logger.WithError(err).WithField("track_id", p.current.ID).Debug("Failed to store duration")
			}
		}
	}
	if p.scrobbler != nil && !p.cfg.Scrobble.Disabled && !p.current.IsRadio() {
		p.scrobbler.PlayingNow(p.current)
	}

	p.events.Emit(bus.SignalCurrentChanged, nil)
}

// onTrackFinished handles end-of-stream: listen bookkeeping, popularity,
// scrobbling, then advance or stop.
func (p *Player) onTrackFinished() {
	finished := p.current
	if !finished.IsNone() && !finished.IsRadio() {
		now := time.Now().Unix()
		if err := p.lib.SetTrackListenedAt(finished.ID, now); err == nil {
			p.bumpPopularity(finished)
		}
		p.scrobbleCurrent(int64(finished.Duration))
	}

	if p.next.IsNone() {
		p.Stop()
		return
	}
	p.Load(p.next)
}

// onStreamError reports a failed load and advances when possible.
func (p *Player) onStreamError(err error) {
	p.logger.WithError(err).WithField("track_id", p.current.ID).Error("Stream load failed")
	p.sink.Stop()
	p.emitStatus()
	if !p.next.IsNone() {
		p.Load(p.next)
	}
}

// scrobbleCurrent forwards the current track to the dispatcher when the
// played time meets the listen threshold.
func (p *Player) scrobbleCurrent(playedMS int64) {
	if p.scrobbler == nil || p.cfg.Scrobble.Disabled {
		return
	}
	t := p.current
	if t.IsNone() || t.IsRadio() {
		return
	}
	duration := int64(t.Duration)
	if duration < 30_000 {
		return
	}
	if playedMS >= duration/2 || playedMS >= 240_000 {
		p.scrobbler.Listen(t, p.playStart)
	}
}

// bumpPopularity rewards a finished track: a full point in party mode,
// else a share scaled by how much competition it has.
func (p *Player) bumpPopularity(t *models.Track) {
	increment := 1.0
	if !p.party {
		maxPopularity := 0.0
		trackCount := 0
		for _, album := range p.albums {
			for _, at := range album.Tracks() {
				trackCount++
				if at.Popularity > maxPopularity {
					maxPopularity = at.Popularity
				}
			}
		}
		if trackCount > 0 && maxPopularity > 0 {
			increment = maxPopularity / float64(trackCount)
		}
	}
	t.Popularity += increment
	if err := p.lib.SetTrackPopularity(t.ID, t.Popularity); err != nil {
		p.logger.WithError(err).WithField("track_id", t.ID).Error("Failed to store popularity")
	}
}

// setNext computes the upcoming track and emits next-changed when it
// moved.
func (p *Player) setNext() {
	p.setNextTrack(p.computeNext())
}

func (p *Player) setNextTrack(t *models.Track) {
	if t == nil {
		t = models.EmptyTrack()
	}
	changed := t.ID != p.next.ID
	p.next = t
	if changed {
		p.events.Emit(bus.SignalNextChanged, nil)
	}
}

// computeNext applies the layer priority: stop-after, queue jumps, radio
// suppression, track repeat, shuffle, then linear order.
func (p *Player) computeNext() *models.Track {
	if p.stopAfterMatched {
		return models.EmptyTrack()
	}
	if head := p.NextInQueue(); !head.IsNone() {
		return head
	}
	if p.current.IsRadio() {
		return models.EmptyTrack()
	}
	if p.repeatMode() == models.RepeatTrack {
		return p.current
	}
	if p.party || p.cfg.Playback.Shuffle {
		return p.nextShuffle()
	}
	return p.nextLinear()
}

// setPrev computes the previous track and emits prev-changed when it
// moved.
func (p *Player) setPrev() {
	p.setPrevTrack(p.computePrev())
}

func (p *Player) setPrevTrack(t *models.Track) {
	if t == nil {
		t = models.EmptyTrack()
	}
	changed := t.ID != p.prev.ID
	p.prev = t
	if changed {
		p.events.Emit(bus.SignalPrevChanged, nil)
	}
}

func (p *Player) computePrev() *models.Track {
	if p.current.IsRadio() {
		return models.EmptyTrack()
	}
	if p.party || p.cfg.Playback.Shuffle {
		return p.prevShuffle()
	}
	return p.prevLinear()
}

func (p *Player) repeatMode() models.RepeatMode {
	mode, err := p.cfg.RepeatMode()
	if err != nil {
		return models.RepeatNone
	}
	return mode
}

func (p *Player) emitStatus() {
	p.events.Emit(bus.SignalStatusChanged, nil)
}
