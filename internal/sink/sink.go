// Package sink abstracts the audio pipeline. The player facade is the
// single owner of a Sink; all playback requests route through it.
package sink

import "time"

// Status enumerates the playback states of a sink.
type Status int

const (
	Stopped Status = iota
	Paused
	Playing
)

// Sink is the narrow contract the player facade holds on the audio
// pipeline. Implementations deliver stream-start, end-of-stream and
// error events through the registered callbacks, on the caller's
// scheduler.
type Sink interface {
	// Load starts playback of a new stream URI.
	Load(uri string) error
	// Crossfade fades the current stream out while preloading and then
	// starting the new one.
	Crossfade(uri string, duration time.Duration) error

	Play()
	Pause()
	Stop()

	// Seek jumps to an absolute position in milliseconds.
	Seek(positionMS int64)
	// Position reports the current playback position in milliseconds.
	Position() int64
	// Duration reports the current stream duration in milliseconds, 0
	// when unknown.
	Duration() int64

	SetVolume(v float64)
	Volume() float64

	Status() Status

	OnStreamStart(fn func())
	OnEOS(fn func())
	OnError(fn func(error))
}
