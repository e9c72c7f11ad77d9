package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// BookDB is the SQLite registry of finished books.
type BookDB struct {
	db *sql.DB
}

// NewBookDB opens (and if needed creates) the registry database.
func NewBookDB(dbPath string) (*BookDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		channel TEXT NOT NULL,
		file_name TEXT NOT NULL,
		local_path TEXT NOT NULL,
		drive_url TEXT,
		duration INTEGER,
		chapter_count INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_books_created_at ON books(created_at);
	CREATE INDEX IF NOT EXISTS idx_books_video_id ON books(video_id);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create table: %v", err)
	}

	return &BookDB{db: db}, nil
}

// SaveBook records one finished book.
func (bdb *BookDB) SaveBook(rec *types.BookRecord) error {
	query := `
	INSERT INTO books (job_id, video_id, title, channel, file_name, local_path, drive_url, duration, chapter_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := bdb.db.Exec(query, rec.JobID, rec.VideoID, rec.Title, rec.Channel,
		rec.FileName, rec.LocalPath, rec.DriveURL, rec.Duration, rec.ChapterCount, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save book record: %v", err)
	}

	return nil
}

// GetBook retrieves one book record by job ID.
func (bdb *BookDB) GetBook(jobID string) (*types.BookRecord, error) {
	query := `
	SELECT job_id, video_id, title, channel, file_name, local_path, drive_url, duration, chapter_count, created_at
	FROM books WHERE job_id = ?
	`

	row := bdb.db.QueryRow(query, jobID)

	var rec types.BookRecord
	var driveURL sql.NullString
	err := row.Scan(&rec.JobID, &rec.VideoID, &rec.Title, &rec.Channel,
		&rec.FileName, &rec.LocalPath, &driveURL, &rec.Duration, &rec.ChapterCount, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get book record: %v", err)
	}
	rec.DriveURL = driveURL.String

	return &rec, nil
}

// ListBooks returns the most recent books, newest first.
func (bdb *BookDB) ListBooks(limit int) ([]types.BookRecord, error) {
	query := `
	SELECT job_id, video_id, title, channel, file_name, local_path, drive_url, duration, chapter_count, created_at
	FROM books ORDER BY created_at DESC LIMIT ?
	`

	rows, err := bdb.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %v", err)
	}
	defer rows.Close()

	var books []types.BookRecord
	for rows.Next() {
		var rec types.BookRecord
		var driveURL sql.NullString
		if err := rows.Scan(&rec.JobID, &rec.VideoID, &rec.Title, &rec.Channel,
			&rec.FileName, &rec.LocalPath, &driveURL, &rec.Duration, &rec.ChapterCount, &rec.CreatedAt); err != nil {
			continue
		}
		rec.DriveURL = driveURL.String
		books = append(books, rec)
	}

	return books, nil
}

// Close closes the database connection.
func (bdb *BookDB) Close() error {
	return bdb.db.Close()
}
