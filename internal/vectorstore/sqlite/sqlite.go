// Package sqlite is a persistent vector backend on a single sqlite
// file. Vectors are stored as JSON and ranked by brute-force cosine
// distance in Go, which is plenty for a small curated corpus and keeps
// the service free of external infrastructure.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/studyware/coursechat/internal/vectorstore"
)

// Backend stores records in a sqlite database.
type Backend struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Backend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Backend{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding TEXT NOT NULL,
			course_title TEXT,
			lesson_number INTEGER,
			chunk_index INTEGER DEFAULT 0,
			course_link TEXT,
			instructor TEXT,
			lessons TEXT,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_course
			ON records(collection, course_title)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (b *Backend) Close() error { return b.db.Close() }

// Upsert inserts records, replacing any existing record with the same ID.
func (b *Backend) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records
			(collection, id, document, embedding, course_title, lesson_number,
			 chunk_index, course_link, instructor, lessons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		embedding, err := json.Marshal(rec.Vector)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		var lessonNumber any
		if rec.LessonNumber != nil {
			lessonNumber = *rec.LessonNumber
		}
		if _, err := stmt.ExecContext(ctx, collection, rec.ID, rec.Document,
			string(embedding), rec.CourseTitle, lessonNumber, rec.ChunkIndex,
			rec.CourseLink, rec.Instructor, rec.LessonsJSON); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Query returns up to limit records closest to vector, after applying
// the metadata filter server-side.
func (b *Backend) Query(ctx context.Context, collection string, vector []float32, limit int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	query := `SELECT id, document, embedding, course_title, lesson_number,
		chunk_index, course_link, instructor, lessons
		FROM records WHERE collection = ?`
	args := []any{collection}
	if filter.CourseTitle != "" {
		query += " AND course_title = ?"
		args = append(args, filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		query += " AND lesson_number = ?"
		args = append(args, *filter.LessonNumber)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, vectorstore.Match{
			Record:   *rec,
			Distance: cosineDistance(rec.Vector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Get returns the record with the given ID, or nil when absent.
func (b *Backend) Get(ctx context.Context, collection, id string) (*vectorstore.Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, document, embedding, course_title,
		lesson_number, chunk_index, course_link, instructor, lessons
		FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

// IDs lists all record IDs in a collection.
func (b *Backend) IDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id FROM records WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of records in a collection.
func (b *Backend) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

// Clear drops every record in every collection.
func (b *Backend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}

func scanRecord(rows *sql.Rows) (*vectorstore.Record, error) {
	var (
		rec          vectorstore.Record
		embedding    string
		courseTitle  sql.NullString
		lessonNumber sql.NullInt64
		chunkIndex   sql.NullInt64
		courseLink   sql.NullString
		instructor   sql.NullString
		lessons      sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.Document, &embedding, &courseTitle,
		&lessonNumber, &chunkIndex, &courseLink, &instructor, &lessons); err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &rec.Vector); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	rec.CourseTitle = courseTitle.String
	if lessonNumber.Valid {
		n := int(lessonNumber.Int64)
		rec.LessonNumber = &n
	}
	rec.ChunkIndex = int(chunkIndex.Int64)
	rec.CourseLink = courseLink.String
	rec.Instructor = instructor.String
	rec.LessonsJSON = lessons.String
	return &rec, nil
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
