package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/docutag/crawler/convert"
	"github.com/docutag/crawler/models"
)

// ErrNotFound is returned when a catalog to delete does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// DefaultConfig returns default database configuration
func DefaultConfig() Config {
	return Config{
		DSN: "host=localhost port=5432 user=docutag password=docutag_dev_pass dbname=docutag sslmode=disable",
	}
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// SaveRun saves a crawl run and indexes its exercises for search
func (db *DB) SaveRun(run *models.CrawlRun) error {
	if run.Catalog == nil {
		return fmt.Errorf("crawl run %s has no catalog", run.ID)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jsonData, err := json.Marshal(run.Catalog)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	query := `
		INSERT INTO crawler_catalogs (id, url, slug, storage_path, exercise_count, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			storage_path = excluded.storage_path,
			exercise_count = excluded.exercise_count,
			updated_at = excluded.updated_at
	`
	_, err = tx.Exec(
		query,
		run.ID,
		run.URL,
		run.Slug,
		run.StoragePath,
		len(run.Catalog.Exercises),
		string(jsonData),
		run.CreatedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}

	// Replace the indexed exercises of this run
	if _, err := tx.Exec("DELETE FROM crawler_exercises WHERE catalog_id = $1", run.ID); err != nil {
		return fmt.Errorf("failed to delete old exercises: %w", err)
	}

	exerciseQuery := `
		INSERT INTO crawler_exercises (id, catalog_id, position, title, url, tags, search_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, ex := range run.Catalog.Exercises {
		_, err := tx.Exec(
			exerciseQuery,
			uuid.New().String(),
			run.ID,
			i,
			ex.Title,
			ex.URL,
			pq.Array(tagTexts(ex.Tags)),
			convert.PlainText(ex.Description),
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to save exercise %q: %w", ex.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// tagTexts returns the lower-cased texts of tags, without duplicates
func tagTexts(tags []models.Tag) []string {
	seen := make(map[string]bool, len(tags))
	texts := make([]string, 0, len(tags))
	for _, t := range tags {
		text := strings.ToLower(t.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		texts = append(texts, text)
	}
	return texts
}

// GetByID retrieves a crawl run with its catalog
func (db *DB) GetByID(id string) (*models.CrawlRun, error) {
	query := `
		SELECT id, url, slug, storage_path, exercise_count, data, created_at
		FROM crawler_catalogs WHERE id = $1
	`
	return db.getOne(query, id)
}

// GetLatestByURL retrieves the most recent crawl run of a repository
func (db *DB) GetLatestByURL(url string) (*models.CrawlRun, error) {
	query := `
		SELECT id, url, slug, storage_path, exercise_count, data, created_at
		FROM crawler_catalogs WHERE url = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return db.getOne(query, url)
}

func (db *DB) getOne(query string, arg any) (*models.CrawlRun, error) {
	var (
		run         models.CrawlRun
		storagePath sql.NullString
		jsonData    string
	)

	err := db.conn.QueryRow(query, arg).Scan(&run.ID, &run.URL, &run.Slug, &storagePath, &run.ExerciseCount, &jsonData, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}

	var catalog models.Catalog
	if err := json.Unmarshal([]byte(jsonData), &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	run.StoragePath = storagePath.String
	run.Catalog = &catalog
	return &run, nil
}

// DeleteByID deletes a crawl run and its indexed exercises
func (db *DB) DeleteByID(id string) error {
	result, err := db.conn.Exec("DELETE FROM crawler_catalogs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete catalog: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no catalog found with id %s: %w", id, ErrNotFound)
	}

	return nil
}

// List returns crawl runs without their catalogs, newest first
func (db *DB) List(limit, offset int) ([]*models.CrawlRun, error) {
	query := `
		SELECT id, url, slug, storage_path, exercise_count, created_at
		FROM crawler_catalogs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalogs: %w", err)
	}
	defer rows.Close()

	results := []*models.CrawlRun{}
	for rows.Next() {
		var (
			run         models.CrawlRun
			storagePath sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.URL, &run.Slug, &storagePath, &run.ExerciseCount, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		run.StoragePath = storagePath.String
		results = append(results, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// Count returns the total count of stored crawl runs
func (db *DB) Count() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM crawler_catalogs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count catalogs: %w", err)
	}
	return count, nil
}

// SearchExercises finds exercises whose title or description matches query,
// or carrying a tag equal to query
func (db *DB) SearchExercises(query string, limit int) ([]models.ExerciseHit, error) {
	sqlQuery := `
		SELECT id, catalog_id, title, url, tags, left(search_text, 200)
		FROM crawler_exercises
		WHERE to_tsvector('simple', title || ' ' || search_text) @@ plainto_tsquery('simple', $1)
			OR tags @> ARRAY[lower($1)]::text[]
		ORDER BY created_at DESC, position
		LIMIT $2
	`

	rows, err := db.conn.Query(sqlQuery, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search exercises: %w", err)
	}
	defer rows.Close()

	hits := []models.ExerciseHit{}
	for rows.Next() {
		var (
			hit models.ExerciseHit
			url sql.NullString
		)
		if err := rows.Scan(&hit.ID, &hit.RunID, &hit.Title, &url, pq.Array(&hit.Tags), &hit.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		hit.URL = url.String
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return hits, nil
}
