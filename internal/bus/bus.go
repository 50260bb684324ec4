// Package bus provides the synchronous signal fan-out shared by the
// catalog, the player facade and the import helpers. Handlers run on the
// emitter's goroutine; every emission is a cooperative suspension point.
package bus

import "sync"

// Signal names emitted across the core. Payload types are documented per
// signal; handlers receive the payload as-is.
const (
	SignalCurrentChanged  = "current-changed"  // no payload
	SignalNextChanged     = "next-changed"     // no payload
	SignalPrevChanged     = "prev-changed"     // no payload
	SignalStatusChanged   = "status-changed"   // no payload
	SignalSeeked          = "seeked"           // int64 position ms
	SignalDurationChanged = "duration-changed" // int track id
	SignalLoadingChanged  = "loading-changed"  // LoadingPayload
	SignalVolumeChanged   = "volume-changed"   // no payload
	SignalQueueChanged    = "queue-changed"    // no payload
	SignalPlaybackChanged = "playback-changed" // no payload
	SignalRateChanged     = "rate-changed"     // RatePayload

	SignalAlbumUpdated  = "album-updated"  // UpdatePayload
	SignalArtistUpdated = "artist-updated" // UpdatePayload

	SignalMatchAlbum  = "match-album"  // int album id
	SignalMatchTrack  = "match-track"  // int track id
	SignalMatchArtist = "match-artist" // int artist id
	SignalFinished    = "finished"     // no payload
)

// LoadingPayload travels with loading-changed.
type LoadingPayload struct {
	Loading bool
	TrackID int
}

// RatePayload travels with rate-changed.
type RatePayload struct {
	ID   int
	Rate int
}

// UpdatePayload travels with album-updated and artist-updated.
type UpdatePayload struct {
	ID   int
	Kind int // models.UpdateKind
}

// Handler receives a signal payload.
type Handler func(payload any)

// Bus is a named-signal emitter. Subscription is concurrency-safe;
// emission invokes handlers synchronously in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a signal.
func (b *Bus) Subscribe(signal string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[signal] = append(b.handlers[signal], fn)
}

// Emit invokes every handler registered for the signal.
func (b *Bus) Emit(signal string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[signal]...)
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
