// Package catalog is the persistent store for tracks, albums, artists,
// genres, playlists and radios. Every entity is addressed by a stable
// integer id; records carry storage-type flags describing their origin.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"cantata/internal/bus"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// WebGenreName is the genre assigned to tracks saved from web providers.
const WebGenreName = "Web"

// Catalog wraps a *sql.DB providing the per-entity stores. It is safe for
// concurrent use: readers go through short-lived cursors on the pooled
// connection, writers serialize on an internal mutex.
type Catalog struct {
	conn   *sql.DB
	logger *logrus.Logger
	events *bus.Bus

	// writeMu is the single enclosing writer cursor: every mutation
	// helper takes it before touching the database.
	writeMu sync.Mutex

	// Prepared statements for hot paths
	trackByIDStmt      *sql.Stmt
	trackIDByURIStmt   *sql.Stmt
	trackIDByExtStmt   *sql.Stmt
	albumIDByExtStmt   *sql.Stmt
	albumByIDStmt      *sql.Stmt
	albumTracksStmt    *sql.Stmt
	artistIDByNameStmt *sql.Stmt
	genreIDByNameStmt  *sql.Stmt
	radioByIDStmt      *sql.Stmt
	playlistTracksStmt *sql.Stmt
	popularityStmt     *sql.Stmt
	trackArtistIDsStmt *sql.Stmt
	trackGenreIDsStmt  *sql.Stmt
	albumArtistIDsStmt *sql.Stmt
}

// New opens (or creates) the catalog database at the provided path and
// ensures all required tables and indices exist. Caller should Close() it
// when finished.
func New(dbPath string, events *bus.Bus, logger *logrus.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	c := &Catalog{
		conn:   conn,
		logger: logger,
		events: events,
	}

	if err := c.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := c.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Catalog initialized")
	return c, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (c *Catalog) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			uri TEXT NOT NULL UNIQUE,
			album_id INTEGER DEFAULT -1,
			disc_number INTEGER DEFAULT 1,
			disc_name TEXT DEFAULT '',
			track_number INTEGER DEFAULT 0,
			duration INTEGER DEFAULT 0,
			year INTEGER DEFAULT 0,
			timestamp INTEGER DEFAULT 0,
			mtime INTEGER DEFAULT 0,
			rate INTEGER DEFAULT 0,
			loved BOOLEAN DEFAULT FALSE,
			popularity REAL DEFAULT 0,
			listened_at INTEGER DEFAULT 0,
			storage_type INTEGER DEFAULT 0,
			external_id TEXT DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			uri TEXT DEFAULT '',
			year INTEGER DEFAULT 0,
			timestamp INTEGER DEFAULT 0,
			mtime INTEGER DEFAULT 0,
			popularity REAL DEFAULT 0,
			loved BOOLEAN DEFAULT FALSE,
			storage_type INTEGER DEFAULT 0,
			external_id TEXT DEFAULT '',
			synced INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS artists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			sortname TEXT DEFAULT '',
			external_id TEXT DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS album_artists (
			album_id INTEGER,
			artist_id INTEGER,
			PRIMARY KEY (album_id, artist_id)
		);`,
		`CREATE TABLE IF NOT EXISTS album_genres (
			album_id INTEGER,
			genre_id INTEGER,
			PRIMARY KEY (album_id, genre_id)
		);`,
		`CREATE TABLE IF NOT EXISTS track_artists (
			track_id INTEGER,
			artist_id INTEGER,
			PRIMARY KEY (track_id, artist_id)
		);`,
		`CREATE TABLE IF NOT EXISTS track_genres (
			track_id INTEGER,
			genre_id INTEGER,
			PRIMARY KEY (track_id, genre_id)
		);`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			smart_sql TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id INTEGER,
			track_id INTEGER,
			position INTEGER,
			PRIMARY KEY (playlist_id, track_id),
			FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS radios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			uri TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_storage ON tracks(storage_type);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_external ON tracks(external_id);",
		"CREATE INDEX IF NOT EXISTS idx_albums_storage ON albums(storage_type);",
		"CREATE INDEX IF NOT EXISTS idx_albums_external ON albums(external_id);",
		"CREATE INDEX IF NOT EXISTS idx_album_artists_artist ON album_artists(artist_id);",
		"CREATE INDEX IF NOT EXISTS idx_album_genres_genre ON album_genres(genre_id);",
		"CREATE INDEX IF NOT EXISTS idx_track_artists_artist ON track_artists(artist_id);",
		"CREATE INDEX IF NOT EXISTS idx_track_genres_genre ON track_genres(genre_id);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks(playlist_id, position);",
	}

	for _, table := range tables {
		if _, err := c.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := c.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements.
func (c *Catalog) prepareStatements() error {
	prepared := []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&c.trackByIDStmt, `SELECT id, name, uri, album_id, disc_number, disc_name, track_number,
			duration, year, timestamp, mtime, rate, loved, popularity, storage_type, external_id
			FROM tracks WHERE id = ?`},
		{&c.trackIDByURIStmt, `SELECT id FROM tracks WHERE uri = ?`},
		{&c.trackIDByExtStmt, `SELECT id FROM tracks WHERE external_id = ?`},
		{&c.albumIDByExtStmt, `SELECT id FROM albums WHERE external_id = ?`},
		{&c.albumByIDStmt, `SELECT id, name, uri, year, timestamp, popularity, loved,
			storage_type, external_id, synced FROM albums WHERE id = ?`},
		{&c.albumTracksStmt, `SELECT id, name, uri, album_id, disc_number, disc_name, track_number,
			duration, year, timestamp, mtime, rate, loved, popularity, storage_type, external_id
			FROM tracks WHERE album_id = ? ORDER BY disc_number, track_number, name`},
		{&c.artistIDByNameStmt, `SELECT id FROM artists WHERE name = ? COLLATE NOCASE`},
		{&c.genreIDByNameStmt, `SELECT id FROM genres WHERE name = ? COLLATE NOCASE`},
		{&c.radioByIDStmt, `SELECT id, name, uri FROM radios WHERE id = ?`},
		{&c.playlistTracksStmt, `SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`},
		{&c.popularityStmt, `UPDATE tracks SET popularity = ? WHERE id = ?`},
		{&c.trackArtistIDsStmt, `SELECT artist_id FROM track_artists WHERE track_id = ?`},
		{&c.trackGenreIDsStmt, `SELECT genre_id FROM track_genres WHERE track_id = ?`},
		{&c.albumArtistIDsStmt, `SELECT artist_id FROM album_artists WHERE album_id = ?`},
	}

	for _, p := range prepared {
		stmt, err := c.conn.Prepare(p.sql)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %q: %w", p.sql, err)
		}
		*p.stmt = stmt
	}
	return nil
}

// Clean removes rows orphaned by deletions: tracks without an album,
// albums without tracks, artists and genres referenced by nothing. When
// commit is false the WAL checkpoint that normally follows is skipped so
// an enclosing batch can keep going.
func (c *Catalog) Clean(commit bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	statements := []string{
		`DELETE FROM tracks WHERE album_id >= 0 AND album_id NOT IN (SELECT id FROM albums)`,
		`DELETE FROM albums WHERE id NOT IN (SELECT DISTINCT album_id FROM tracks)`,
		`DELETE FROM track_artists WHERE track_id NOT IN (SELECT id FROM tracks)`,
		`DELETE FROM track_genres WHERE track_id NOT IN (SELECT id FROM tracks)`,
		`DELETE FROM album_artists WHERE album_id NOT IN (SELECT id FROM albums)`,
		`DELETE FROM album_genres WHERE album_id NOT IN (SELECT id FROM albums)`,
		`DELETE FROM artists WHERE id NOT IN (SELECT artist_id FROM track_artists)
			AND id NOT IN (SELECT artist_id FROM album_artists)`,
		`DELETE FROM genres WHERE id NOT IN (SELECT genre_id FROM track_genres)
			AND id NOT IN (SELECT genre_id FROM album_genres)`,
		`DELETE FROM playlist_tracks WHERE track_id NOT IN (SELECT id FROM tracks)`,
	}

	for _, stmt := range statements {
		if _, err := c.conn.Exec(stmt); err != nil {
			c.logger.WithError(err).Error("Failed to clean orphan rows")
			return err
		}
	}

	if commit {
		if _, err := c.conn.Exec("PRAGMA wal_checkpoint(PASSIVE);"); err != nil {
			c.logger.WithError(err).Warn("Failed to checkpoint after clean")
		}
	}
	return nil
}

// DelNonPersistent drops every EPHEMERAL row. Used at startup and when the
// application quits to shed transient web records.
func (c *Catalog) DelNonPersistent(commit bool) error {
	c.writeMu.Lock()

	statements := []string{
		fmt.Sprintf(`DELETE FROM tracks WHERE storage_type & %d != 0`, int(storageEphemeral)),
		fmt.Sprintf(`DELETE FROM albums WHERE storage_type & %d != 0`, int(storageEphemeral)),
	}

	for _, stmt := range statements {
		if _, err := c.conn.Exec(stmt); err != nil {
			c.logger.WithError(err).Error("Failed to delete non persistent rows")
			c.writeMu.Unlock()
			return err
		}
	}
	c.writeMu.Unlock()

	return c.Clean(commit)
}

// Execute runs a stored smart playlist query and returns the matched ids.
// The query must select a single integer column.
func (c *Catalog) Execute(smartQuery string) ([]int, error) {
	rows, err := c.conn.Query(smartQuery)
	if err != nil {
		c.logger.WithError(err).WithField("query", smartQuery).Error("Failed to execute smart query")
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Vacuum runs an exclusive VACUUM. The scanner must be idle: while
// scannerBusy reports true the call retries on a short timer.
func (c *Catalog) Vacuum(scannerBusy func() bool) error {
	for scannerBusy != nil && scannerBusy() {
		time.Sleep(500 * time.Millisecond)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Exec("VACUUM;"); err != nil {
		c.logger.WithError(err).Error("Failed to vacuum database")
		return err
	}
	return nil
}

// AddDevice registers a synced device (also used by --emulate-phone) and
// returns its id.
func (c *Catalog) AddDevice(name string) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var id int
	err := c.conn.QueryRow(`SELECT id FROM devices WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}

	result, err := c.conn.Exec(`INSERT INTO devices (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	last, err := result.LastInsertId()
	return int(last), err
}

// Close closes the underlying database connection and prepared statements.
func (c *Catalog) Close() error {
	statements := []*sql.Stmt{
		c.trackByIDStmt, c.trackIDByURIStmt, c.trackIDByExtStmt,
		c.albumIDByExtStmt, c.albumByIDStmt, c.albumTracksStmt,
		c.artistIDByNameStmt, c.genreIDByNameStmt, c.radioByIDStmt,
		c.playlistTracksStmt, c.popularityStmt,
		c.trackArtistIDsStmt, c.trackGenreIDsStmt, c.albumArtistIDsStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				c.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// emit forwards a signal when a bus is attached.
func (c *Catalog) emit(signal string, payload any) {
	if c.events != nil {
		c.events.Emit(signal, payload)
	}
}

// scanIDs collects a single integer column result set.
func scanIDs(rows *sql.Rows) ([]int, error) {
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
