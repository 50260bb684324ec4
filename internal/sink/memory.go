package sink

import "time"

// MemorySink is an in-process Sink for tests and headless runs. Load
// fires stream-start synchronously; tests drive end-of-stream through
// FireEOS and advance the clock through SetPosition.
type MemorySink struct {
	LoadedURIs     []string
	CrossfadedURIs []string

	status   Status
	position int64
	duration int64
	volume   float64

	onStreamStart func()
	onEOS         func()
	onError       func(error)
}

// NewMemorySink returns a stopped sink at full volume.
func NewMemorySink() *MemorySink {
	return &MemorySink{volume: 1.0}
}

func (s *MemorySink) Load(uri string) error {
	s.LoadedURIs = append(s.LoadedURIs, uri)
	s.position = 0
	s.status = Playing
	if s.onStreamStart != nil {
		s.onStreamStart()
	}
	return nil
}

func (s *MemorySink) Crossfade(uri string, _ time.Duration) error {
	s.CrossfadedURIs = append(s.CrossfadedURIs, uri)
	s.position = 0
	s.status = Playing
	if s.onStreamStart != nil {
		s.onStreamStart()
	}
	return nil
}

func (s *MemorySink) Play() {
	if s.status == Paused {
		s.status = Playing
	}
}

func (s *MemorySink) Pause() {
	if s.status == Playing {
		s.status = Paused
	}
}

func (s *MemorySink) Stop() {
	s.status = Stopped
	s.position = 0
}

func (s *MemorySink) Seek(positionMS int64) {
	s.position = positionMS
}

func (s *MemorySink) Position() int64 {
	return s.position
}

// SetPosition lets tests simulate playback progress.
func (s *MemorySink) SetPosition(positionMS int64) {
	s.position = positionMS
}

func (s *MemorySink) Duration() int64 {
	return s.duration
}

// SetDuration lets tests simulate a discovered stream duration.
func (s *MemorySink) SetDuration(durationMS int64) {
	s.duration = durationMS
}

func (s *MemorySink) SetVolume(v float64) {
	s.volume = v
}

func (s *MemorySink) Volume() float64 {
	return s.volume
}

func (s *MemorySink) Status() Status {
	return s.status
}

func (s *MemorySink) OnStreamStart(fn func()) { s.onStreamStart = fn }
func (s *MemorySink) OnEOS(fn func())         { s.onEOS = fn }
func (s *MemorySink) OnError(fn func(error))  { s.onError = fn }

// FireEOS simulates the current stream finishing.
func (s *MemorySink) FireEOS() {
	if s.onEOS != nil {
		s.onEOS()
	}
}

// FireError simulates a stream load failure.
func (s *MemorySink) FireError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

var _ Sink = (*MemorySink)(nil)
