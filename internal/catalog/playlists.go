package catalog

import (
	"database/sql"
	"fmt"

	"cantata/pkg/models"
)

// CreatePlaylist inserts a new playlist and returns its id. A non-empty
// smartQuery makes it a smart playlist resolved through Execute.
func (c *Catalog) CreatePlaylist(name, smartQuery string) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	result, err := c.conn.Exec(`INSERT INTO playlists (name, smart_sql) VALUES (?, ?)`,
		name, smartQuery)
	if err != nil {
		c.logger.WithError(err).WithField("name", name).Error("Failed to create playlist")
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// Playlist returns a playlist with its track ids resolved. Smart
// playlists resolve through their stored query.
func (c *Catalog) Playlist(id int) (*models.Playlist, error) {
	var p models.Playlist
	err := c.conn.QueryRow(`SELECT id, name, smart_sql FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.SmartQuery)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("playlist with id %d not found", id)
		}
		return nil, err
	}

	if p.IsSmart() {
		ids, err := c.Execute(p.SmartQuery)
		if err != nil {
			// A broken stored query yields an empty playlist, not a
			// crashed player.
			return &p, nil
		}
		p.TrackIDs = ids
		return &p, nil
	}

	rows, err := c.playlistTracksStmt.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	p.TrackIDs, err = scanIDs(rows)
	return &p, err
}

// Playlists returns all playlists without resolving track lists.
func (c *Catalog) Playlists() ([]*models.Playlist, error) {
	rows, err := c.conn.Query(`SELECT id, name, smart_sql FROM playlists ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.SmartQuery); err != nil {
			return nil, err
		}
		playlists = append(playlists, &p)
	}
	return playlists, rows.Err()
}

// AddTrackToPlaylist appends a track to the end of a playlist (if not
// already present).
func (c *Catalog) AddTrackToPlaylist(playlistID, trackID int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var maxPosition sql.NullInt64
	err := c.conn.QueryRow(`SELECT MAX(position) FROM playlist_tracks WHERE playlist_id = ?`,
		playlistID).Scan(&maxPosition)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	position := 1
	if maxPosition.Valid {
		position = int(maxPosition.Int64) + 1
	}

	_, err = c.conn.Exec(`INSERT INTO playlist_tracks (playlist_id, track_id, position)
		VALUES (?, ?, ?) ON CONFLICT(playlist_id, track_id) DO NOTHING`,
		playlistID, trackID, position)
	return err
}

// RemoveTrackFromPlaylist removes a specific track from the playlist.
func (c *Catalog) RemoveTrackFromPlaylist(playlistID, trackID int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?`,
		playlistID, trackID)
	return err
}

// DeletePlaylist deletes the playlist and its track entries.
func (c *Catalog) DeletePlaylist(id int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, id); err != nil {
		return err
	}
	_, err := c.conn.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	return err
}

// AddRadio inserts a radio station, reusing the row when the URI is
// already known, and returns its id.
func (c *Catalog) AddRadio(name, uri string) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var id int
	err := c.conn.QueryRow(`SELECT id FROM radios WHERE uri = ?`, uri).Scan(&id)
	if err == nil {
		return id, nil
	}

	result, err := c.conn.Exec(`INSERT INTO radios (name, uri) VALUES (?, ?)`, name, uri)
	if err != nil {
		c.logger.WithError(err).WithField("name", name).Error("Failed to insert radio")
		return 0, err
	}
	last, err := result.LastInsertId()
	return int(last), err
}

// Radio returns a radio station by id.
func (c *Catalog) Radio(id int) (models.Radio, error) {
	var r models.Radio
	err := c.radioByIDStmt.QueryRow(id).Scan(&r.ID, &r.Name, &r.URI)
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("radio with id %d not found", id)
	}
	return r, err
}

// Radios returns all radio stations.
func (c *Catalog) Radios() ([]models.Radio, error) {
	rows, err := c.conn.Query(`SELECT id, name, uri FROM radios ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var radios []models.Radio
	for rows.Next() {
		var r models.Radio
		if err := rows.Scan(&r.ID, &r.Name, &r.URI); err != nil {
			return nil, err
		}
		radios = append(radios, r)
	}
	return radios, rows.Err()
}
