package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"cantata/internal/bus"
	"cantata/pkg/models"
)

// AddAlbum inserts a new album or updates an existing one (matched by
// external id when set, else by URI), returning its id. Artist bindings
// are replaced. Emits album-updated.
func (c *Catalog) AddAlbum(a *models.Album) (int, error) {
	c.writeMu.Lock()

	existingID := models.NoneID
	if a.ExternalID != "" {
		var id int
		if err := c.conn.QueryRow(`SELECT id FROM albums WHERE external_id = ?`, a.ExternalID).Scan(&id); err == nil {
			existingID = id
		}
	} else if a.URI != "" {
		var id int
		if err := c.conn.QueryRow(`SELECT id FROM albums WHERE uri = ?`, a.URI).Scan(&id); err == nil {
			existingID = id
		}
	}

	if existingID != models.NoneID {
		_, err := c.conn.Exec(`UPDATE albums SET name = ?, uri = ?, year = ?, timestamp = ?,
			mtime = ?, storage_type = ?, external_id = ?, synced = ? WHERE id = ?`,
			a.Name, a.URI, a.Year, a.Timestamp, a.MTime, int(a.Storage), a.ExternalID, a.Synced, existingID)
		if err != nil {
			c.logger.WithError(err).WithField("album_id", existingID).Error("Failed to update existing album")
			c.writeMu.Unlock()
			return 0, err
		}
		if err := c.bindAlbum(existingID, a); err != nil {
			c.writeMu.Unlock()
			return 0, err
		}
		c.writeMu.Unlock()
		c.emit(bus.SignalAlbumUpdated, bus.UpdatePayload{ID: existingID, Kind: int(models.UpdateModified)})
		return existingID, nil
	}

	result, err := c.conn.Exec(`INSERT INTO albums (name, uri, year, timestamp, mtime,
		popularity, loved, storage_type, external_id, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.URI, a.Year, a.Timestamp, a.MTime, a.Popularity, a.Loved,
		int(a.Storage), a.ExternalID, a.Synced)
	if err != nil {
		c.logger.WithError(err).WithField("name", a.Name).Error("Failed to insert new album")
		c.writeMu.Unlock()
		return 0, err
	}

	last, err := result.LastInsertId()
	if err != nil {
		c.writeMu.Unlock()
		return 0, err
	}
	id := int(last)
	if err := c.bindAlbum(id, a); err != nil {
		c.writeMu.Unlock()
		return 0, err
	}
	c.writeMu.Unlock()

	c.emit(bus.SignalAlbumUpdated, bus.UpdatePayload{ID: id, Kind: int(models.UpdateAdded)})
	return id, nil
}

// bindAlbum replaces the album artist junction rows. Caller must hold
// writeMu.
func (c *Catalog) bindAlbum(id int, a *models.Album) error {
	if _, err := c.conn.Exec(`DELETE FROM album_artists WHERE album_id = ?`, id); err != nil {
		return err
	}
	for _, artistID := range a.ArtistIDs {
		if _, err := c.conn.Exec(`INSERT OR IGNORE INTO album_artists (album_id, artist_id) VALUES (?, ?)`,
			id, artistID); err != nil {
			return err
		}
	}
	return nil
}

// Album returns the album record without materializing its tracks.
func (c *Catalog) Album(id int) (*models.Album, error) {
	var a models.Album
	var storage int
	err := c.albumByIDStmt.QueryRow(id).Scan(&a.ID, &a.Name, &a.URI, &a.Year, &a.Timestamp,
		&a.Popularity, &a.Loved, &storage, &a.ExternalID, &a.Synced)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("album with id %d not found", id)
		}
		c.logger.WithError(err).WithField("album_id", id).Error("Failed to get album by id")
		return nil, err
	}
	a.Storage = models.StorageType(storage)
	a.ArtistIDs, _ = c.junctionIDs(c.albumArtistIDsStmt, id)
	return &a, nil
}

// AlbumWithTracks returns the album with its track list materialized,
// honoring the genre/artist filtering context.
func (c *Catalog) AlbumWithTracks(id int, genreIDs, artistIDs []int) (*models.Album, error) {
	a, err := c.Album(id)
	if err != nil {
		return nil, err
	}
	a.GenreFilter = genreIDs
	a.ArtistFilter = artistIDs
	tracks, err := c.AlbumTracks(id, genreIDs, artistIDs)
	if err != nil {
		return nil, err
	}
	a.SetTracks(tracks)
	duration := 0
	for _, t := range tracks {
		duration += t.Duration
	}
	a.Duration = duration
	return a, nil
}

// AlbumTracks returns the ordered track list of an album, optionally
// narrowed to the given genres and artists.
func (c *Catalog) AlbumTracks(albumID int, genreIDs, artistIDs []int) ([]*models.Track, error) {
	var rows *sql.Rows
	var err error

	if len(genreIDs) == 0 && len(artistIDs) == 0 {
		rows, err = c.albumTracksStmt.Query(albumID)
	} else {
		var sb strings.Builder
		var args []any
		sb.WriteString(`SELECT DISTINCT t.id, t.name, t.uri, t.album_id, t.disc_number, t.disc_name,
			t.track_number, t.duration, t.year, t.timestamp, t.mtime, t.rate, t.loved, t.popularity,
			t.storage_type, t.external_id FROM tracks t`)
		if len(artistIDs) > 0 {
			sb.WriteString(" JOIN track_artists ta ON ta.track_id = t.id")
		}
		if len(genreIDs) > 0 {
			sb.WriteString(" JOIN track_genres tg ON tg.track_id = t.id")
		}
		sb.WriteString(" WHERE t.album_id = ?")
		args = append(args, albumID)
		if len(artistIDs) > 0 {
			sb.WriteString(" AND ta.artist_id IN (" + placeholders(len(artistIDs)) + ")")
			args = append(args, intArgs(artistIDs)...)
		}
		if len(genreIDs) > 0 {
			sb.WriteString(" AND tg.genre_id IN (" + placeholders(len(genreIDs)) + ")")
			args = append(args, intArgs(genreIDs)...)
		}
		sb.WriteString(" ORDER BY t.disc_number, t.track_number, t.name")
		rows, err = c.conn.Query(sb.String(), args...)
	}
	if err != nil {
		c.logger.WithError(err).WithField("album_id", albumID).Error("Failed to query album tracks")
		return nil, err
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		var t models.Track
		var storage int
		if err := rows.Scan(&t.ID, &t.Name, &t.URI, &t.AlbumID, &t.DiscNumber, &t.DiscName,
			&t.TrackNumber, &t.Duration, &t.Year, &t.Timestamp, &t.MTime, &t.Rate,
			&t.Loved, &t.Popularity, &storage, &t.ExternalID); err != nil {
			return nil, err
		}
		t.Storage = models.StorageType(storage)
		t.ArtistIDs, _ = c.junctionIDs(c.trackArtistIDsStmt, t.ID)
		t.GenreIDs, _ = c.junctionIDs(c.trackGenreIDsStmt, t.ID)
		tracks = append(tracks, &t)
	}
	return tracks, rows.Err()
}

// AlbumIDForExternal returns the id of the album with the given external
// id, or models.NoneID when absent.
func (c *Catalog) AlbumIDForExternal(externalID string) int {
	var id int
	if err := c.albumIDByExtStmt.QueryRow(externalID).Scan(&id); err != nil {
		return models.NoneID
	}
	return id
}

// AlbumIDs returns album ids matching the scope.
func (c *Catalog) AlbumIDs(scope Scope) ([]int, error) {
	query, args := albumScopeQuery(scope, "")
	rows, err := c.conn.Query(query, args...)
	if err != nil {
		c.logger.WithError(err).Error("Failed to query album ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// RandomAlbumIDs returns up to limit random album ids within the scope.
func (c *Catalog) RandomAlbumIDs(scope Scope, limit int) ([]int, error) {
	query, args := albumScopeQuery(scope, fmt.Sprintf("ORDER BY RANDOM() LIMIT %d", limit))
	rows, err := c.conn.Query(query, args...)
	if err != nil {
		c.logger.WithError(err).Error("Failed to query random album ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// OldestAlbumIDs returns album ids limited to the storage mask, oldest
// modification first. Used to demote surplus web albums.
func (c *Catalog) OldestAlbumIDs(storage models.StorageType) ([]int, error) {
	rows, err := c.conn.Query(fmt.Sprintf(
		`SELECT id FROM albums WHERE storage_type & %d != 0 ORDER BY mtime ASC`, int(storage)))
	if err != nil {
		c.logger.WithError(err).Error("Failed to query oldest album ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// albumScopeQuery builds the scoped album id query.
func albumScopeQuery(scope Scope, order string) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT DISTINCT a.id FROM albums a")
	if len(scope.ArtistIDs) > 0 {
		sb.WriteString(" JOIN album_artists aa ON aa.album_id = a.id")
	}
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" JOIN album_genres ag ON ag.album_id = a.id")
	}
	sb.WriteString(" WHERE 1=1")
	if len(scope.ArtistIDs) > 0 {
		sb.WriteString(" AND aa.artist_id IN (" + placeholders(len(scope.ArtistIDs)) + ")")
		args = append(args, intArgs(scope.ArtistIDs)...)
	}
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" AND ag.genre_id IN (" + placeholders(len(scope.GenreIDs)) + ")")
		args = append(args, intArgs(scope.GenreIDs)...)
	}
	if scope.Storage != models.StorageNone {
		sb.WriteString(fmt.Sprintf(" AND a.storage_type & %d != 0", int(scope.Storage)))
	}
	if order == "" {
		order = scope.orderClause("a")
	}
	sb.WriteString(" " + order)
	return sb.String(), args
}

// CountAlbums returns how many albums carry the storage mask.
func (c *Catalog) CountAlbums(storage models.StorageType) (int, error) {
	var count int
	err := c.conn.QueryRow(fmt.Sprintf(
		`SELECT COUNT(*) FROM albums WHERE storage_type & %d != 0`, int(storage))).Scan(&count)
	return count, err
}

// SetAlbumStorageType updates the storage flags for an album and emits
// album-updated.
func (c *Catalog) SetAlbumStorageType(id int, storage models.StorageType) error {
	c.writeMu.Lock()
	_, err := c.conn.Exec(`UPDATE albums SET storage_type = ? WHERE id = ?`, int(storage), id)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.WithError(err).WithField("album_id", id).Error("Failed to set album storage type")
		return err
	}
	c.emit(bus.SignalAlbumUpdated, bus.UpdatePayload{ID: id, Kind: int(models.UpdateModified)})
	return nil
}

// SetAlbumLoved updates the loved flag for an album.
func (c *Catalog) SetAlbumLoved(id int, loved bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE albums SET loved = ? WHERE id = ?`, loved, id)
	if err != nil {
		c.logger.WithError(err).WithField("album_id", id).Error("Failed to set album loved")
	}
	return err
}

// SetAlbumPopularity updates the popularity score for an album.
func (c *Catalog) SetAlbumPopularity(id int, popularity float64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`UPDATE albums SET popularity = ? WHERE id = ?`, popularity, id)
	if err != nil {
		c.logger.WithError(err).WithField("album_id", id).Error("Failed to set album popularity")
	}
	return err
}

// DetachAlbumTracks unbinds an album's tracks, demoting them to EPHEMERAL
// so a later Clean removes them. Emits album-updated.
func (c *Catalog) DetachAlbumTracks(id int) error {
	c.writeMu.Lock()
	_, err := c.conn.Exec(`UPDATE tracks SET storage_type = ?, album_id = -1 WHERE album_id = ?`,
		int(models.StorageEphemeral), id)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.WithError(err).WithField("album_id", id).Error("Failed to detach album tracks")
		return err
	}
	c.emit(bus.SignalAlbumUpdated, bus.UpdatePayload{ID: id, Kind: int(models.UpdateModified)})
	return nil
}

// RemoveAlbum deletes an album row and its junctions. Orphaned tracks are
// swept by the next Clean. Emits album-updated.
func (c *Catalog) RemoveAlbum(id int) error {
	c.writeMu.Lock()
	statements := []string{
		`DELETE FROM album_artists WHERE album_id = ?`,
		`DELETE FROM album_genres WHERE album_id = ?`,
		`DELETE FROM albums WHERE id = ?`,
	}
	for _, stmt := range statements {
		if _, err := c.conn.Exec(stmt, id); err != nil {
			c.logger.WithError(err).WithField("album_id", id).Error("Failed to remove album")
			c.writeMu.Unlock()
			return err
		}
	}
	c.writeMu.Unlock()

	c.emit(bus.SignalAlbumUpdated, bus.UpdatePayload{ID: id, Kind: int(models.UpdateRemoved)})
	return nil
}
