package player

import (
	"cantata/pkg/models"
)

// PlayRadio starts a radio stream. Radios bypass the albums list and the
// queue: while one plays both neighbors stay at the sentinel, except for
// queued jumps which always win.
func (p *Player) PlayRadio(radio models.Radio) {
	if radio.URI == "" {
		return
	}
	p.cancelAuto()
	p.current = radio.AsTrack()
	if err := p.sink.Load(radio.URI); err != nil {
		p.onStreamError(err)
		return
	}
	p.emitStatus()
}

// CurrentRadioID returns the id of the playing radio, or models.NoneID
// when the current track is not a radio.
func (p *Player) CurrentRadioID() int {
	if !p.current.IsRadio() {
		return models.NoneID
	}
	return models.RadioIDFromTrack(p.current.ID)
}
