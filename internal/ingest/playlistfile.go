package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cantata/pkg/models"
)

// ParsePlaylistFile reads a .pls or .m3u/.m3u8 file into its entry URIs,
// in file order. Relative entries resolve against the playlist's
// directory.
func ParsePlaylistFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pls":
		return parsePLS(path)
	case ".m3u", ".m3u8":
		return parseM3U(path)
	}
	return nil, fmt.Errorf("unsupported playlist format: %s", path)
}

// parsePLS reads FileN= entries from the [playlist] section.
func parsePLS(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var uris []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "file") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		if entry := strings.TrimSpace(line[eq+1:]); entry != "" {
			uris = append(uris, resolveEntry(path, entry))
		}
	}
	return uris, scanner.Err()
}

// parseM3U reads non-comment lines; extended directives are skipped.
func parseM3U(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var uris []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uris = append(uris, resolveEntry(path, line))
	}
	return uris, scanner.Err()
}

// resolveEntry normalizes one playlist entry: remote URIs pass through,
// local paths become absolute file URIs relative to the playlist.
func resolveEntry(playlistPath, entry string) string {
	if strings.Contains(entry, "://") {
		return entry
	}
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(filepath.Dir(playlistPath), entry)
	}
	return FileURI(entry)
}

// ImportPlaylist parses a playlist file, ingests any local entries not
// yet in the catalog as external rows and creates a catalog playlist
// holding the resolved tracks. Remote http(s) entries become radios
// instead of playlist tracks.
func (s *Scanner) ImportPlaylist(path string) (int, error) {
	uris, err := ParsePlaylistFile(path)
	if err != nil {
		return models.NoneID, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	playlistID, err := s.catalog.CreatePlaylist(name, "")
	if err != nil {
		return models.NoneID, err
	}

	for _, uri := range uris {
		if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
			if _, rerr := s.catalog.AddRadio(name, uri); rerr != nil {
				s.logger.WithError(rerr).WithField("uri", uri).Warn("Failed to add radio from playlist")
			}
			continue
		}

		trackID := s.catalog.TrackIDByURI(uri)
		if trackID == models.NoneID {
			localPath := strings.TrimPrefix(uri, "file://")
			if _, serr := os.Stat(localPath); serr != nil {
				s.logger.WithField("uri", uri).Debug("Skipping missing playlist entry")
				continue
			}
			if aerr := s.AddFile(localPath, models.StorageExternal); aerr != nil {
				s.logger.WithError(aerr).WithField("uri", uri).Warn("Failed to ingest playlist entry")
				continue
			}
			trackID = s.catalog.TrackIDByURI(uri)
		}
		if trackID == models.NoneID {
			continue
		}
		if perr := s.catalog.AddTrackToPlaylist(playlistID, trackID); perr != nil {
			s.logger.WithError(perr).WithField("track_id", trackID).Warn("Failed to add playlist entry")
		}
	}
	return playlistID, nil
}
