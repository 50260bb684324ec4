package web

import (
	"context"
	"sync"
	"time"

	"cantata/internal/bus"
	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SaveStatus is the lifecycle of a save job.
type SaveStatus string

const (
	SaveStatusPending   SaveStatus = "pending"
	SaveStatusSaving    SaveStatus = "saving"
	SaveStatusCompleted SaveStatus = "completed"
	SaveStatusFailed    SaveStatus = "failed"
)

// SaveJob tracks one album save from payload to catalog rows.
type SaveJob struct {
	ID          string
	AlbumName   string
	Status      SaveStatus
	AlbumID     int
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Saver persists web payloads into the catalog. Persist writes rows
// synchronously; SaveAlbum runs the full save procedure, artwork
// included, as a background job.
type Saver struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	events  *bus.Bus
	mb      *MusicBrainz
	logger  *logrus.Logger

	jobs    map[string]*SaveJob
	jobsMux sync.RWMutex
}

// NewSaver creates the save pipeline. The MusicBrainz provider may be
// nil, in which case saved albums keep the provider artwork URI.
func NewSaver(cfg *config.Config, cat *catalog.Catalog, events *bus.Bus, mb *MusicBrainz, logger *logrus.Logger) *Saver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Saver{
		cfg:     cfg,
		catalog: cat,
		events:  events,
		mb:      mb,
		logger:  logger,
		jobs:    make(map[string]*SaveJob),
	}
}

// Persist upserts a payload's artists, album and tracks with the given
// storage type, returning the materialized album. Web rows always carry
// the synthetic Web genre so library views can scope them out.
func (s *Saver) Persist(payload AlbumPayload, storage models.StorageType) (*models.Album, error) {
	genreID, err := s.catalog.AddGenre(catalog.WebGenreName)
	if err != nil {
		return nil, err
	}

	artistIDs := make([]int, 0, len(payload.Artists))
	for _, name := range payload.Artists {
		id, aerr := s.catalog.AddArtist(name, "", "")
		if aerr != nil {
			return nil, aerr
		}
		artistIDs = append(artistIDs, id)
	}

	album := &models.Album{
		Name:       payload.Name,
		ArtistIDs:  artistIDs,
		Year:       payload.Year,
		Timestamp:  time.Now().Unix(),
		MTime:      time.Now().Unix(),
		URI:        payload.URI,
		Popularity: payload.Popularity,
		Storage:    storage,
		ExternalID: payload.ExternalID,
	}
	albumID, err := s.catalog.AddAlbum(album)
	if err != nil {
		return nil, err
	}

	for i, tp := range payload.Tracks {
		trackArtistIDs := artistIDs
		if len(tp.Artists) > 0 {
			trackArtistIDs = make([]int, 0, len(tp.Artists))
			for _, name := range tp.Artists {
				id, aerr := s.catalog.AddArtist(name, "", "")
				if aerr != nil {
					return nil, aerr
				}
				trackArtistIDs = append(trackArtistIDs, id)
			}
		}
		trackNumber := tp.TrackNumber
		if trackNumber == 0 {
			trackNumber = i + 1
		}
		uri := tp.URI
		if uri == "" {
			uri = "web://" + tp.ExternalID
		}
		track := &models.Track{
			Name:        tp.Name,
			AlbumID:     albumID,
			ArtistIDs:   trackArtistIDs,
			GenreIDs:    []int{genreID},
			DiscNumber:  tp.DiscNumber,
			TrackNumber: trackNumber,
			Duration:    tp.DurationMS,
			Year:        payload.Year,
			Timestamp:   time.Now().Unix(),
			Storage:     storage,
			ExternalID:  tp.ExternalID,
			URI:         uri,
		}
		if _, terr := s.catalog.AddTrack(track); terr != nil {
			return nil, terr
		}
	}

	return s.catalog.AlbumWithTracks(albumID, nil, nil)
}

// SaveAlbum persists a payload as a saved album in the background. The
// returned job can be polled; completion is also announced on the bus
// with match signals followed by finished.
func (s *Saver) SaveAlbum(ctx context.Context, payload AlbumPayload) *SaveJob {
	job := &SaveJob{
		ID:        uuid.New().String(),
		AlbumName: payload.Name,
		Status:    SaveStatusPending,
		AlbumID:   models.NoneID,
		CreatedAt: time.Now(),
	}
	s.jobsMux.Lock()
	s.jobs[job.ID] = job
	s.jobsMux.Unlock()

	go s.runSave(ctx, job, payload)
	return job
}

func (s *Saver) runSave(ctx context.Context, job *SaveJob, payload AlbumPayload) {
	s.setJobStatus(job.ID, SaveStatusSaving, models.NoneID, "")

	if payload.ArtworkURI == "" && s.mb != nil && len(payload.Artists) > 0 {
		uri, err := s.mb.AlbumArtwork(ctx, payload.Artists[0], payload.Name)
		if err != nil {
			s.logger.WithError(err).WithField("album", payload.Name).Debug("Artwork lookup failed")
		} else {
			payload.ArtworkURI = uri
		}
	}

	album, err := s.Persist(payload, models.StorageSaved)
	if err != nil {
		s.logger.WithError(err).WithField("album", payload.Name).Error("Failed to save album")
		s.setJobStatus(job.ID, SaveStatusFailed, models.NoneID, err.Error())
		return
	}

	if err := s.CleanOldAlbums(); err != nil {
		s.logger.WithError(err).Warn("Failed to demote old saved albums")
	}

	s.setJobStatus(job.ID, SaveStatusCompleted, album.ID, "")

	s.events.Emit(bus.SignalMatchAlbum, album.ID)
	for _, t := range album.Tracks() {
		s.events.Emit(bus.SignalMatchTrack, t.ID)
	}
	for _, artistID := range album.ArtistIDs {
		s.events.Emit(bus.SignalMatchArtist, artistID)
	}
	s.events.Emit(bus.SignalFinished, nil)
}

// CleanOldAlbums demotes the oldest saved albums to ephemeral storage
// once the saved set exceeds the configured cap. Demoted rows survive
// until the next non-persistent purge.
func (s *Saver) CleanOldAlbums() error {
	limit := s.cfg.Playback.MaxSavedAlbums
	if limit <= 0 {
		return nil
	}
	count, err := s.catalog.CountAlbums(models.StorageSaved)
	if err != nil {
		return err
	}
	if count <= limit {
		return nil
	}
	oldest, err := s.catalog.OldestAlbumIDs(models.StorageSaved)
	if err != nil {
		return err
	}
	for _, albumID := range oldest[:count-limit] {
		tracks, terr := s.catalog.AlbumTracks(albumID, nil, nil)
		if terr != nil {
			return terr
		}
		for _, t := range tracks {
			if err := s.catalog.SetTrackStorageType(t.ID, models.StorageEphemeral); err != nil {
				return err
			}
		}
		if err := s.catalog.SetAlbumStorageType(albumID, models.StorageEphemeral); err != nil {
			return err
		}
		s.logger.WithField("album_id", albumID).Debug("Demoted old saved album")
	}
	return nil
}

// Job returns a save job by id.
func (s *Saver) Job(jobID string) (*SaveJob, bool) {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// Jobs returns all known save jobs.
func (s *Saver) Jobs() []*SaveJob {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()
	jobs := make([]*SaveJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CleanupJobs drops finished jobs older than maxAge.
func (s *Saver) CleanupJobs(maxAge time.Duration) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, job := range s.jobs {
		if job.Status != SaveStatusCompleted && job.Status != SaveStatusFailed {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Saver) setJobStatus(jobID string, status SaveStatus, albumID int, errMsg string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	if albumID != models.NoneID {
		job.AlbumID = albumID
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	if status == SaveStatusCompleted || status == SaveStatusFailed {
		now := time.Now()
		job.CompletedAt = &now
	}
}
