package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
)

// Scanner walks directories into the catalog and keeps the collection
// current through a filesystem watcher.
type Scanner struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	extractor *Extractor
	logger    *logrus.Logger
	watcher   *Watcher

	busy atomic.Bool
}

// NewScanner creates a scanner over the catalog.
func NewScanner(cfg *config.Config, cat *catalog.Catalog, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		cfg:       cfg,
		catalog:   cat,
		extractor: NewExtractor(logger),
		logger:    logger,
	}
}

// Busy reports whether a scan is in progress. The catalog consults it
// before vacuuming.
func (s *Scanner) Busy() bool { return s.busy.Load() }

// ScanCollection walks the configured music directory into collection
// storage and sweeps rows whose files disappeared.
func (s *Scanner) ScanCollection() error {
	return s.scan(s.cfg.Paths.MusicDir, models.StorageCollection)
}

// ScanExternal ingests a mounted device directory as external storage.
// External rows are scoped out of library views but fully playable.
func (s *Scanner) ScanExternal(dir string) error {
	return s.scan(dir, models.StorageExternal)
}

func (s *Scanner) scan(dir string, storage models.StorageType) error {
	s.busy.Store(true)
	defer s.busy.Store(false)

	start := time.Now()
	seen := make(map[string]bool)
	count := 0

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}
		if info.IsDir() || !IsAudioFile(path) {
			return nil
		}
		uri := FileURI(path)
		seen[uri] = true

		if id := s.catalog.TrackIDByURI(uri); id != models.NoneID {
			if existing, terr := s.catalog.Track(id); terr == nil && existing.MTime >= info.ModTime().Unix() {
				return nil
			}
		}
		if err := s.AddFile(path, storage); err != nil {
			s.logger.WithError(err).WithField("path", path).Error("Failed to ingest file")
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	s.sweepMissing(dir, storage, seen)

	if err := s.catalog.Clean(true); err != nil {
		s.logger.WithError(err).Warn("Orphan sweep failed after scan")
	}

	s.logger.WithFields(logrus.Fields{
		"dir":      dir,
		"ingested": count,
		"elapsed":  time.Since(start),
	}).Info("Scan finished")
	return nil
}

// AddFile extracts one file and upserts its rows.
func (s *Scanner) AddFile(path string, storage models.StorageType) error {
	info, err := s.extractor.ExtractFromFile(path)
	if err != nil {
		return err
	}
	return s.persist(info, storage)
}

// RemoveFile drops the row for a deleted file and sweeps orphans.
func (s *Scanner) RemoveFile(path string) error {
	if err := s.catalog.RemoveTrackByURI(FileURI(path)); err != nil {
		return err
	}
	return s.catalog.Clean(false)
}

// persist resolves names to catalog ids and writes the track.
func (s *Scanner) persist(info TrackInfo, storage models.StorageType) error {
	artistIDs := make([]int, 0, len(info.Artists))
	for _, name := range info.Artists {
		id, err := s.catalog.AddArtist(name, "", "")
		if err != nil {
			return err
		}
		artistIDs = append(artistIDs, id)
	}
	albumArtistIDs := make([]int, 0, len(info.AlbumArtists))
	for _, name := range info.AlbumArtists {
		id, err := s.catalog.AddArtist(name, "", "")
		if err != nil {
			return err
		}
		albumArtistIDs = append(albumArtistIDs, id)
	}
	genreIDs := make([]int, 0, len(info.Genres))
	for _, name := range info.Genres {
		id, err := s.catalog.AddGenre(name)
		if err != nil {
			return err
		}
		genreIDs = append(genreIDs, id)
	}

	album := &models.Album{
		Name:      info.Album,
		ArtistIDs: albumArtistIDs,
		Year:      info.Year,
		Timestamp: time.Now().Unix(),
		MTime:     info.MTime,
		URI:       FileURI(filepath.Dir(info.Path)),
		Storage:   storage,
	}
	albumID, err := s.catalog.AddAlbum(album)
	if err != nil {
		return err
	}

	track := &models.Track{
		Name:        info.Title,
		AlbumID:     albumID,
		ArtistIDs:   artistIDs,
		GenreIDs:    genreIDs,
		DiscNumber:  info.DiscNumber,
		TrackNumber: info.TrackNumber,
		Duration:    info.DurationMS,
		Year:        info.Year,
		Timestamp:   time.Now().Unix(),
		MTime:       info.MTime,
		Storage:     storage,
		URI:         FileURI(info.Path),
	}
	_, err = s.catalog.AddTrack(track)
	return err
}

// sweepMissing removes rows under dir whose files are gone.
func (s *Scanner) sweepMissing(dir string, storage models.StorageType, seen map[string]bool) {
	ids, err := s.catalog.TrackIDs(catalog.Scope{Storage: storage})
	if err != nil {
		return
	}
	prefix := FileURI(dir)
	for _, id := range ids {
		t, terr := s.catalog.Track(id)
		if terr != nil {
			continue
		}
		if !strings.HasPrefix(t.URI, prefix) || seen[t.URI] {
			continue
		}
		if err := s.catalog.RemoveTrack(id); err != nil {
			s.logger.WithError(err).WithField("track_id", id).Warn("Failed to remove missing track")
		}
	}
}

func (s *Scanner) collectionStorage() models.StorageType {
	return models.StorageCollection
}

// FileURI converts a local path to the canonical file:// form used for
// catalog URIs.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
