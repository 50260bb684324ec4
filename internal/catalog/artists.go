package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"cantata/internal/bus"
	"cantata/pkg/models"
)

// AddArtist upserts an artist by name and returns its id. Emits
// artist-updated on insert.
func (c *Catalog) AddArtist(name, sortname, externalID string) (int, error) {
	c.writeMu.Lock()

	var id int
	err := c.conn.QueryRow(`SELECT id FROM artists WHERE name = ? COLLATE NOCASE`, name).Scan(&id)
	if err == nil {
		if externalID != "" {
			_, _ = c.conn.Exec(`UPDATE artists SET external_id = ? WHERE id = ? AND external_id = ''`,
				externalID, id)
		}
		c.writeMu.Unlock()
		return id, nil
	}

	if sortname == "" {
		sortname = sortName(name)
	}
	result, err := c.conn.Exec(`INSERT INTO artists (name, sortname, external_id) VALUES (?, ?, ?)`,
		name, sortname, externalID)
	if err != nil {
		c.logger.WithError(err).WithField("name", name).Error("Failed to insert artist")
		c.writeMu.Unlock()
		return 0, err
	}
	last, err := result.LastInsertId()
	c.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	c.emit(bus.SignalArtistUpdated, bus.UpdatePayload{ID: int(last), Kind: int(models.UpdateAdded)})
	return int(last), nil
}

// ArtistIDByName returns the id of the artist stored under name, or
// models.NoneID when absent.
func (c *Catalog) ArtistIDByName(name string) int {
	var id int
	if err := c.artistIDByNameStmt.QueryRow(name).Scan(&id); err != nil {
		return models.NoneID
	}
	return id
}

// ArtistName returns the display name for an artist id.
func (c *Catalog) ArtistName(id int) (string, error) {
	var name string
	err := c.conn.QueryRow(`SELECT name FROM artists WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("artist with id %d not found", id)
	}
	return name, err
}

// ArtistNames resolves display names for a list of artist ids, skipping
// unknown ids.
func (c *Catalog) ArtistNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, err := c.ArtistName(id)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// ArtistIDs returns artist ids matching the scope (genres and storage).
func (c *Catalog) ArtistIDs(scope Scope) ([]int, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT DISTINCT ar.id FROM artists ar
		JOIN album_artists aa ON aa.artist_id = ar.id
		JOIN albums a ON a.id = aa.album_id`)
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" JOIN album_genres ag ON ag.album_id = a.id")
	}
	sb.WriteString(" WHERE 1=1")
	if len(scope.GenreIDs) > 0 {
		sb.WriteString(" AND ag.genre_id IN (" + placeholders(len(scope.GenreIDs)) + ")")
		args = append(args, intArgs(scope.GenreIDs)...)
	}
	if scope.Storage != models.StorageNone {
		sb.WriteString(fmt.Sprintf(" AND a.storage_type & %d != 0", int(scope.Storage)))
	}
	sb.WriteString(" ORDER BY ar.sortname COLLATE NOCASE")

	rows, err := c.conn.Query(sb.String(), args...)
	if err != nil {
		c.logger.WithError(err).Error("Failed to query artist ids")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ArtistGenreIDs returns the genre ids attached to any album of the
// artist. Feeds the local similar-artists fallback.
func (c *Catalog) ArtistGenreIDs(artistID int) ([]int, error) {
	rows, err := c.conn.Query(`SELECT DISTINCT ag.genre_id FROM album_genres ag
		JOIN album_artists aa ON aa.album_id = ag.album_id
		WHERE aa.artist_id = ?`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AddGenre upserts a genre by name and returns its id.
func (c *Catalog) AddGenre(name string) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var id int
	err := c.conn.QueryRow(`SELECT id FROM genres WHERE name = ? COLLATE NOCASE`, name).Scan(&id)
	if err == nil {
		return id, nil
	}

	result, err := c.conn.Exec(`INSERT INTO genres (name) VALUES (?)`, name)
	if err != nil {
		c.logger.WithError(err).WithField("name", name).Error("Failed to insert genre")
		return 0, err
	}
	last, err := result.LastInsertId()
	return int(last), err
}

// GenreIDByName returns the id of the genre stored under name, or
// models.NoneID when absent.
func (c *Catalog) GenreIDByName(name string) int {
	var id int
	if err := c.genreIDByNameStmt.QueryRow(name).Scan(&id); err != nil {
		return models.NoneID
	}
	return id
}

// GenreIDs returns every genre id.
func (c *Catalog) GenreIDs() ([]int, error) {
	rows, err := c.conn.Query(`SELECT id FROM genres ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// sortName strips the leading article used for sorting ("The Beatles" ->
// "Beatles, The").
func sortName(name string) string {
	for _, article := range []string{"The ", "the "} {
		if strings.HasPrefix(name, article) {
			return name[len(article):] + ", " + strings.TrimSpace(article)
		}
	}
	return name
}
