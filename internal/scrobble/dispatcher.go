package scrobble

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
)

// submitTimeout bounds one provider round trip.
const submitTimeout = 30 * time.Second

// ArtistNamer resolves artist ids to names; the catalog implements it.
type ArtistNamer interface {
	ArtistNames(ids []int) []string
}

// Dispatcher fans listens out to every configured provider. Each
// provider keeps its own offline queue, persisted to
// <provider>_queue.bin under the data directory and drained before the
// next listen is submitted.
type Dispatcher struct {
	cfg       *config.Config
	logger    *logrus.Logger
	artists   ArtistNamer
	providers []Provider

	mu     sync.Mutex
	queues map[string][]Listen
}

// NewDispatcher loads the persisted queues for the given providers.
func NewDispatcher(cfg *config.Config, artists ArtistNamer, providers []Provider, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Dispatcher{
		cfg:       cfg,
		logger:    logger,
		artists:   artists,
		providers: providers,
		queues:    make(map[string][]Listen),
	}
	for _, p := range providers {
		d.queues[p.Name()] = d.loadQueue(p.Name())
	}
	return d
}

// Listen reports a finished playback to every provider, asynchronously.
func (d *Dispatcher) Listen(t *models.Track, ts time.Time) {
	if d.cfg.Scrobble.Disabled || t == nil || t.IsNone() {
		return
	}
	listen := listenFromTrack(t, d.artists.ArtistNames(t.ArtistIDs), ts)
	go d.submitAll(listen)
}

// PlayingNow announces a starting track. Failures are dropped.
func (d *Dispatcher) PlayingNow(t *models.Track) {
	if d.cfg.Scrobble.Disabled || t == nil || t.IsNone() {
		return
	}
	listen := listenFromTrack(t, d.artists.ArtistNames(t.ArtistIDs), time.Now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		for _, p := range d.providers {
			if !p.Configured() {
				continue
			}
			if err := p.NowPlaying(ctx, listen); err != nil {
				d.logger.WithError(err).WithField("provider", p.Name()).Debug("Now-playing failed")
			}
		}
	}()
}

// Love forwards a loved flag change to every provider that supports it.
func (d *Dispatcher) Love(t *models.Track, loved bool) {
	if d.cfg.Scrobble.Disabled || t == nil || t.IsNone() {
		return
	}
	listen := listenFromTrack(t, d.artists.ArtistNames(t.ArtistIDs), time.Now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		for _, p := range d.providers {
			if !p.Configured() {
				continue
			}
			if err := p.Love(ctx, listen, loved); err != nil {
				d.logger.WithError(err).WithField("provider", p.Name()).Debug("Love submission failed")
			}
		}
	}()
}

// QueueLen returns the pending queue length for a provider.
func (d *Dispatcher) QueueLen(provider string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[provider])
}

// submitAll drains each provider's backlog and then submits the new
// listen, re-queueing on failure.
func (d *Dispatcher) submitAll(listen Listen) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	for _, p := range d.providers {
		if !p.Configured() {
			continue
		}
		name := p.Name()

		d.mu.Lock()
		pending := append(d.queues[name], listen)
		d.queues[name] = nil
		d.mu.Unlock()

		var failed []Listen
		for i, l := range pending {
			if len(failed) > 0 {
				// Keep order once a submission fails.
				failed = append(failed, pending[i:]...)
				break
			}
			if err := p.Scrobble(ctx, l); err != nil {
				d.logger.WithError(err).WithFields(logrus.Fields{
					"provider": name,
					"track":    l.TrackName,
				}).Debug("Scrobble failed, queueing")
				failed = append(failed, l)
			}
		}

		d.mu.Lock()
		d.queues[name] = append(failed, d.queues[name]...)
		queue := d.queues[name]
		d.mu.Unlock()
		d.saveQueue(name, queue)
	}
}

func (d *Dispatcher) queuePath(provider string) string {
	return filepath.Join(d.cfg.Paths.DataDir, provider+"_queue.bin")
}

func (d *Dispatcher) loadQueue(provider string) []Listen {
	f, err := os.Open(d.queuePath(provider))
	if err != nil {
		return nil
	}
	defer f.Close()
	var queue []Listen
	if err := gob.NewDecoder(f).Decode(&queue); err != nil {
		d.logger.WithError(err).WithField("provider", provider).Warn("Dropping unreadable scrobble queue")
		return nil
	}
	return queue
}

func (d *Dispatcher) saveQueue(provider string, queue []Listen) {
	path := d.queuePath(provider)
	if len(queue) == 0 {
		_ = os.Remove(path)
		return
	}
	if err := os.MkdirAll(d.cfg.Paths.DataDir, 0o755); err != nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(queue); err != nil {
		d.logger.WithError(err).WithField("provider", provider).Warn("Failed to persist scrobble queue")
	}
}
