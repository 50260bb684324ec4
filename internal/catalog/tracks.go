package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"cantata/internal/bus"
	"cantata/pkg/models"
)

// AddTrack inserts a new track or updates an existing one (matched by
// URI), returning the track's id. Artist and genre bindings are replaced.
func (c *Catalog) AddTrack(t *models.Track) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var existingID int
	err := c.conn.QueryRow(`SELECT id FROM tracks WHERE uri = ?`, t.URI).Scan(&existingID)
	if err == nil {
		_, err = c.conn.Exec(`UPDATE tracks SET name = ?, album_id = ?, disc_number = ?,
			disc_name = ?, track_number = ?, duration = ?, year = ?, timestamp = ?, mtime = ?,
			storage_type = ?, external_id = ? WHERE id = ?`,
			t.Name, t.AlbumID, t.DiscNumber, t.DiscName, t.TrackNumber, t.Duration,
			t.Year, t.Timestamp, t.MTime, int(t.Storage), t.ExternalID, existingID)
		if err != nil {
			c.logger.WithError(err).WithField("track_id", existingID).Error("Failed to update existing track")
			return 0, err
		}
		if err := c.bindTrack(existingID, t); err != nil {
			return 0, err
		}
		return existingID, nil
	}

	result, err := c.conn.Exec(`INSERT INTO tracks (name, uri, album_id, disc_number, disc_name,
		track_number, duration, year, timestamp, mtime, rate, loved, popularity, storage_type, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.URI, t.AlbumID, t.DiscNumber, t.DiscName, t.TrackNumber, t.Duration,
		t.Year, t.Timestamp, t.MTime, t.Rate, t.Loved, t.Popularity, int(t.Storage), t.ExternalID)
	if err != nil {
		c.logger.WithError(err).WithField("uri", t.URI).Error("Failed to insert new track")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := c.bindTrack(int(id), t); err != nil {
		return 0, err
	}
	return int(id), nil
}

// bindTrack replaces the artist/genre junction rows for a track and keeps
// the album junctions in sync. Caller must hold writeMu.
func (c *Catalog) bindTrack(id int, t *models.Track) error {
	if _, err := c.conn.Exec(`DELETE FROM track_artists WHERE track_id = ?`, id); err != nil {
		return err
	}
	if _, err := c.conn.Exec(`DELETE FROM track_genres WHERE track_id = ?`, id); err != nil {
		return err
	}
	for _, artistID := range t.ArtistIDs {
		if _, err := c.conn.Exec(`INSERT OR IGNORE INTO track_artists (track_id, artist_id) VALUES (?, ?)`,
			id, artistID); err != nil {
			return err
		}
	}
	for _, genreID := range t.GenreIDs {
		if _, err := c.conn.Exec(`INSERT OR IGNORE INTO track_genres (track_id, genre_id) VALUES (?, ?)`,
			id, genreID); err != nil {
			return err
		}
		if t.AlbumID >= 0 {
			if _, err := c.conn.Exec(`INSERT OR IGNORE INTO album_genres (album_id, genre_id) VALUES (?, ?)`,
				t.AlbumID, genreID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Track returns a single track by its id, with artist and genre ids
// resolved.
func (c *Catalog) Track(id int) (*models.Track, error) {
	t, err := c.scanTrackRow(c.trackByIDStmt.QueryRow(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("track with id %d not found", id)
		}
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to get track by id")
		return nil, err
	}
	return t, nil
}

// TrackIDByURI returns the id of the track stored under uri, or
// models.NoneID when absent.
func (c *Catalog) TrackIDByURI(uri string) int {
	var id int
	if err := c.trackIDByURIStmt.QueryRow(uri).Scan(&id); err != nil {
		return models.NoneID
	}
	return id
}

// TrackIDForExternal returns the id of the track with the given external
// id, or models.NoneID when absent.
func (c *Catalog) TrackIDForExternal(externalID string) int {
	var id int
	if err := c.trackIDByExtStmt.QueryRow(externalID).Scan(&id); err != nil {
		return models.NoneID
	}
	return id
}

// TrackIDs returns track ids matching the scope.
func (c *Catalog) TrackIDs(scope Scope) ([]int, error) {
	query, args := trackScopeQuery(scope, "")
	rows, err := c.conn.Query(query, args...)
	if err != nil {
		c.logger.WithError(err).Error("Failed to query track ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// RandomTrackIDs returns up to limit random track ids within the scope.
func (c *Catalog) RandomTrackIDs(scope Scope, limit int) ([]int, error) {
	query, args := trackScopeQuery(scope, fmt.Sprintf("ORDER BY RANDOM() LIMIT %d", limit))
	rows, err := c.conn.Query(query, args...)
	if err != nil {
		c.logger.WithError(err).Error("Failed to query random track ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// trackScopeQuery builds the scoped id query; order overrides the scope's
// ordering hint when non-empty.
func trackScopeQuery(scope Scope, order string) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT DISTINCT t.id FROM tracks t")
	if len(scope.ArtistIDs) > 0 {
		sb.WriteString(" JOIN track_artists ta ON ta.track_id = t.id")
	}
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" JOIN track_genres tg ON tg.track_id = t.id")
	}
	sb.WriteString(" WHERE 1=1")
	if len(scope.ArtistIDs) > 0 {
		sb.WriteString(" AND ta.artist_id IN (" + placeholders(len(scope.ArtistIDs)) + ")")
		args = append(args, intArgs(scope.ArtistIDs)...)
	}
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" AND tg.genre_id IN (" + placeholders(len(scope.GenreIDs)) + ")")
		args = append(args, intArgs(scope.GenreIDs)...)
	}
	if scope.Storage != models.StorageNone {
		sb.WriteString(fmt.Sprintf(" AND t.storage_type & %d != 0", int(scope.Storage)))
	}
	if order == "" {
		order = scope.orderClause("t")
	}
	sb.WriteString(" " + order)
	return sb.String(), args
}

// SetTrackStorageType updates the storage flags for a track.
func (c *Catalog) SetTrackStorageType(id int, storage models.StorageType) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE tracks SET storage_type = ? WHERE id = ?`, int(storage), id)
	if err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set track storage type")
	}
	return err
}

// SetTrackLoved updates the loved flag for a track.
func (c *Catalog) SetTrackLoved(id int, loved bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE tracks SET loved = ? WHERE id = ?`, loved, id)
	if err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set track loved")
	}
	return err
}

// SetTrackRate updates the rating for a track (-1 skip, 0 none, 1..5).
func (c *Catalog) SetTrackRate(id, rate int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE tracks SET rate = ? WHERE id = ?`, rate, id)
	if err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set track rate")
		return err
	}
	c.emit(bus.SignalRateChanged, bus.RatePayload{ID: id, Rate: rate})
	return nil
}

// SetTrackPopularity updates the popularity score for a track.
func (c *Catalog) SetTrackPopularity(id int, popularity float64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.popularityStmt.Exec(popularity, id); err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set track popularity")
		return err
	}
	return nil
}

// SetTrackDuration records a duration discovered during playback and
// emits duration-changed.
func (c *Catalog) SetTrackDuration(id, durationMS int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Exec(`UPDATE tracks SET duration = ? WHERE id = ?`, durationMS, id); err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set track duration")
		return err
	}
	c.emit(bus.SignalDurationChanged, id)
	return nil
}

// SetTrackListenedAt records the listen timestamp for a track.
func (c *Catalog) SetTrackListenedAt(id int, ts int64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE tracks SET listened_at = ? WHERE id = ?`, ts, id)
	if err != nil {
		c.logger.WithError(err).WithField("track_id", id).Error("Failed to set listened_at")
	}
	return err
}

// RemoveTrack deletes a track row and its junctions.
func (c *Catalog) RemoveTrack(id int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	statements := []string{
		`DELETE FROM track_artists WHERE track_id = ?`,
		`DELETE FROM track_genres WHERE track_id = ?`,
		`DELETE FROM playlist_tracks WHERE track_id = ?`,
		`DELETE FROM tracks WHERE id = ?`,
	}
	for _, stmt := range statements {
		if _, err := c.conn.Exec(stmt, id); err != nil {
			c.logger.WithError(err).WithField("track_id", id).Error("Failed to remove track")
			return err
		}
	}
	return nil
}

// RemoveTrackByURI deletes a track row identified by its URI.
func (c *Catalog) RemoveTrackByURI(uri string) error {
	id := c.TrackIDByURI(uri)
	if id == models.NoneID {
		return nil
	}
	return c.RemoveTrack(id)
}

// scanTrackRow scans a track row plus its artist and genre junctions.
func (c *Catalog) scanTrackRow(row *sql.Row) (*models.Track, error) {
	var t models.Track
	var storage int
	err := row.Scan(&t.ID, &t.Name, &t.URI, &t.AlbumID, &t.DiscNumber, &t.DiscName,
		&t.TrackNumber, &t.Duration, &t.Year, &t.Timestamp, &t.MTime, &t.Rate,
		&t.Loved, &t.Popularity, &storage, &t.ExternalID)
	if err != nil {
		return nil, err
	}
	t.Storage = models.StorageType(storage)
	t.ArtistIDs, _ = c.junctionIDs(c.trackArtistIDsStmt, t.ID)
	t.GenreIDs, _ = c.junctionIDs(c.trackGenreIDsStmt, t.ID)
	return &t, nil
}

// junctionIDs reads a single-column junction result for an id.
func (c *Catalog) junctionIDs(stmt *sql.Stmt, id int) ([]int, error) {
	rows, err := stmt.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}
