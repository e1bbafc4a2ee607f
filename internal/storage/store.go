package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tabscribe/tabscribe/internal/types"
)

// Store handles SQLite database operations for extraction records.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the extraction record database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS extractions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op_id TEXT NOT NULL UNIQUE,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		channel TEXT,
		mode TEXT NOT NULL,
		local_path TEXT NOT NULL,
		drive_url TEXT,
		word_count INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON extractions(created_at);
	CREATE INDEX IF NOT EXISTS idx_video_id ON extractions(video_id);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create table: %v", err)
	}

	return &Store{db: db}, nil
}

// Save inserts a completed extraction.
func (s *Store) Save(rec types.ExtractionRecord) error {
	query := `
	INSERT INTO extractions (op_id, video_id, title, channel, mode, local_path, drive_url, word_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, rec.OpID, rec.VideoID, rec.Title, rec.Channel,
		rec.Mode, rec.LocalPath, rec.DriveURL, rec.WordCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save extraction record: %v", err)
	}

	return nil
}

// Get retrieves one extraction record by operation ID.
func (s *Store) Get(opID string) (*types.ExtractionRecord, error) {
	query := `
	SELECT op_id, video_id, title, channel, mode, local_path, drive_url, word_count, created_at
	FROM extractions WHERE op_id = ?
	`

	var rec types.ExtractionRecord
	err := s.db.QueryRow(query, opID).Scan(&rec.OpID, &rec.VideoID, &rec.Title,
		&rec.Channel, &rec.Mode, &rec.LocalPath, &rec.DriveURL, &rec.WordCount, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction record: %v", err)
	}

	return &rec, nil
}

// List returns the most recent extraction records, newest first.
func (s *Store) List(limit int) ([]types.ExtractionRecord, error) {
	query := `
	SELECT op_id, video_id, title, channel, mode, local_path, drive_url, word_count, created_at
	FROM extractions ORDER BY created_at DESC LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction records: %v", err)
	}
	defer rows.Close()

	var records []types.ExtractionRecord
	for rows.Next() {
		var rec types.ExtractionRecord
		if err := rows.Scan(&rec.OpID, &rec.VideoID, &rec.Title, &rec.Channel,
			&rec.Mode, &rec.LocalPath, &rec.DriveURL, &rec.WordCount, &rec.CreatedAt); err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
