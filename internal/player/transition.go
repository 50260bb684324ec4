package player

import (
	"time"

	"cantata/internal/sink"
)

const fadeSteps = 10

// loadWithTransition crossfades into the next stream when transitions
// are enabled and something is already playing. Returns false when the
// caller should perform a plain load instead.
func (p *Player) loadWithTransition(uri string) bool {
	if !p.cfg.Playback.Transitions {
		return false
	}
	if p.sink.Status() != sink.Playing {
		return false
	}
	if p.current.IsRadio() {
		return false
	}
	duration := time.Duration(p.cfg.Playback.TransitionDurationMS) * time.Millisecond
	if duration <= 0 {
		return false
	}
	if err := p.sink.Crossfade(uri, duration); err != nil {
		p.logger.WithError(err).Warn("Crossfade failed, loading directly")
		return false
	}
	return true
}

// fadedPause ramps the volume down before pausing, then restores it, so
// a pause does not click. Without transitions it pauses directly.
func (p *Player) fadedPause() {
	if !p.cfg.Playback.Transitions || p.sink.Status() != sink.Playing {
		p.sink.Pause()
		return
	}
	target := p.sink.Volume()
	go func() {
		step := target / fadeSteps
		for i := 0; i < fadeSteps; i++ {
			p.sink.SetVolume(target - step*float64(i+1))
			time.Sleep(25 * time.Millisecond)
		}
		p.sink.Pause()
		p.sink.SetVolume(target)
	}()
}
