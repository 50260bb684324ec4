package player

import (
	"cantata/internal/bus"
	"cantata/pkg/models"
)

// Queue returns the pending jump queue as track ids, play order first.
func (p *Player) Queue() []int {
	out := make([]int, len(p.queue))
	copy(out, p.queue)
	return out
}

// AppendToQueue adds a track to the back of the queue.
func (p *Player) AppendToQueue(trackID int, notify bool) {
	p.removeQueued(trackID)
	p.queue = append(p.queue, trackID)
	p.queueMutated(notify)
}

// PrependToQueue adds a track to the front of the queue, so it plays
// next.
func (p *Player) PrependToQueue(trackID int, notify bool) {
	p.removeQueued(trackID)
	p.queue = append([]int{trackID}, p.queue...)
	p.queueMutated(notify)
}

// RemoveFromQueue drops a track from the queue if present.
func (p *Player) RemoveFromQueue(trackID int, notify bool) {
	if !p.removeQueued(trackID) {
		return
	}
	p.queueMutated(notify)
}

// ClearQueue empties the queue.
func (p *Player) ClearQueue(notify bool) {
	if len(p.queue) == 0 {
		return
	}
	p.queue = nil
	p.queueMutated(notify)
}

// SetQueue replaces the queue wholesale, used by state restore.
func (p *Player) SetQueue(trackIDs []int, notify bool) {
	p.queue = append([]int(nil), trackIDs...)
	p.queueMutated(notify)
}

// IsInQueue reports whether the track is queued.
func (p *Player) IsInQueue(trackID int) bool {
	return p.queuePosition(trackID) >= 0
}

// QueuePosition returns the zero-based position of a track in the queue,
// or -1 when absent.
func (p *Player) QueuePosition(trackID int) int {
	return p.queuePosition(trackID)
}

// NextInQueue returns the queue head without consuming it, or the
// sentinel track when the queue is empty.
func (p *Player) NextInQueue() *models.Track {
	if len(p.queue) == 0 {
		return models.EmptyTrack()
	}
	t, err := p.lib.Track(p.queue[0])
	if err != nil {
		p.logger.WithError(err).WithField("track_id", p.queue[0]).Warn("Dropping unknown queued track")
		p.queue = p.queue[1:]
		return p.NextInQueue()
	}
	return t
}

func (p *Player) queuePosition(trackID int) int {
	for i, id := range p.queue {
		if id == trackID {
			return i
		}
	}
	return -1
}

func (p *Player) removeQueued(trackID int) bool {
	i := p.queuePosition(trackID)
	if i < 0 {
		return false
	}
	p.queue = append(p.queue[:i], p.queue[i+1:]...)
	return true
}

func (p *Player) queueMutated(notify bool) {
	if notify {
		p.events.Emit(bus.SignalQueueChanged, nil)
	}
	p.UpdateNextPrev()
}
