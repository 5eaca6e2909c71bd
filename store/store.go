// Package store keeps generated images and frozen compressor dictionaries in
// a SQLite database. Images are addressed by the SHA-256 of their contents.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chazu/pig/compressor"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested image or snapshot doesn't exist.
var ErrNotFound = errors.New("not found")

var log = commonlog.GetLogger("pig.store")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS images (
		hash       TEXT PRIMARY KEY,
		program    TEXT NOT NULL,
		format     TEXT NOT NULL,
		compressor TEXT NOT NULL,
		data       BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS images_program ON images (program)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		key  TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
}

// Image is one stored memory image.
type Image struct {
	Hash       string
	Program    string
	Format     string
	Compressor string
	Data       []byte
}

// Store is a SQLite backed image store.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path. The parent directory is created
// if needed; ":memory:" opens a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives as long as its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	log.Debugf("opened store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Hash returns the content address of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutImage stores an image and returns its content address. Storing the
// same contents twice keeps one row.
func (s *Store) PutImage(img Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Hash(img.Data)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO images (hash, program, format, compressor, data) VALUES (?, ?, ?, ?, ?)",
		h, img.Program, img.Format, img.Compressor, img.Data,
	)
	if err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	log.Debugf("stored %s image of %s as %s", img.Format, img.Program, h[:12])
	return h, nil
}

// GetImage returns the image with the given content address.
func (s *Store) GetImage(hash string) (Image, error) {
	img := Image{Hash: hash}
	err := s.db.QueryRow(
		"SELECT program, format, compressor, data FROM images WHERE hash = ?", hash,
	).Scan(&img.Program, &img.Format, &img.Compressor, &img.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Image{}, fmt.Errorf("image %s: %w", hash, ErrNotFound)
		}
		return Image{}, fmt.Errorf("querying image: %w", err)
	}
	return img, nil
}

// Images lists the stored images of a program without their contents.
func (s *Store) Images(programName string) ([]Image, error) {
	rows, err := s.db.Query(
		"SELECT hash, format, compressor FROM images WHERE program = ? ORDER BY format, hash", programName,
	)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		img := Image{Program: programName}
		if err := rows.Scan(&img.Hash, &img.Format, &img.Compressor); err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// PutSnapshot stores a compressor snapshot under key, replacing any earlier
// snapshot with the same key.
func (s *Store) PutSnapshot(key string, snap compressor.Snapshot) error {
	data, err := compressor.MarshalSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("INSERT OR REPLACE INTO snapshots (key, data) VALUES (?, ?)", key, data); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot stored under key.
func (s *Store) GetSnapshot(key string) (compressor.Snapshot, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM snapshots WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return compressor.Snapshot{}, fmt.Errorf("snapshot %q: %w", key, ErrNotFound)
		}
		return compressor.Snapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}
	return compressor.UnmarshalSnapshot(data)
}

// SnapshotKey names the snapshot of a compressor over an encoding. The
// encoding is identified by the hash of its serialized form.
func SnapshotKey(compressorName string, encoding []byte) string {
	return compressorName + "@" + Hash(encoding)
}
