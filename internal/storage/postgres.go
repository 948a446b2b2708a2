package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/models"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS apod_records (
	id SERIAL PRIMARY KEY,
	date DATE UNIQUE NOT NULL,
	title TEXT NOT NULL,
	url TEXT,
	hdurl TEXT,
	media_type VARCHAR(50),
	explanation TEXT,
	copyright VARCHAR(255),
	retrieved_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_apod_records_date ON apod_records (date);
`

const createStatusTable = `
CREATE TABLE IF NOT EXISTS apod_run_status (
	id INT PRIMARY KEY CHECK (id = 1),
	last_successful_run TIMESTAMPTZ,
	last_attempt TIMESTAMPTZ,
	last_date TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	warnings INT NOT NULL DEFAULT 0
);
`

const upsertRecord = `
INSERT INTO apod_records (date, title, url, hdurl, media_type, explanation, copyright, retrieved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (date) DO UPDATE SET
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	hdurl = EXCLUDED.hdurl,
	media_type = EXCLUDED.media_type,
	explanation = EXCLUDED.explanation,
	copyright = EXCLUDED.copyright,
	retrieved_at = EXCLUDED.retrieved_at,
	updated_at = NOW();
`

const selectRecord = `
SELECT id, date, title, url, hdurl, media_type, explanation, copyright, retrieved_at, created_at, updated_at
FROM apod_records
`

// PostgreSQLStorage implements Storage on the apod_records table.
type PostgreSQLStorage struct {
	db *sql.DB
}

// NewPostgreSQLStorage connects, verifies the connection and creates the
// destination tables if absent.
func NewPostgreSQLStorage(cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgreSQLStorage{db: db}
	if err := s.ensureTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure tables exist: %w", err)
	}
	return s, nil
}

func (s *PostgreSQLStorage) ensureTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRecordsTable); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, createStatusTable)
	return err
}

// UpsertRecord inserts or updates the row for rec.Date inside a single
// transaction. Any error rolls back and surfaces as a PersistenceError.
func (s *PostgreSQLStorage) UpsertRecord(ctx context.Context, rec models.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin", Err: err}
	}

	if _, err := tx.ExecContext(ctx, upsertRecord,
		rec.Date,
		rec.Title,
		rec.URL,
		nullable(rec.HDURL),
		rec.MediaType,
		rec.Explanation,
		nullable(rec.Copyright),
		rec.RetrievedAt,
	); err != nil {
		tx.Rollback()
		return &PersistenceError{Op: "upsert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// GetRecordByDate returns the row for a date, or nil when absent.
func (s *PostgreSQLStorage) GetRecordByDate(ctx context.Context, date string) (*models.PersistedRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+"WHERE date = $1", date)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record for %s: %w", date, err)
	}
	return rec, nil
}

// GetRecords returns rows ordered by date descending, with pagination.
func (s *PostgreSQLStorage) GetRecords(ctx context.Context, limit, offset int) ([]models.PersistedRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+"ORDER BY date DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.PersistedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateRunStatus stores the single status row, replacing any previous one.
func (s *PostgreSQLStorage) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO apod_run_status (id, last_successful_run, last_attempt, last_date, status, error_message, warnings)
VALUES (1, $1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	last_successful_run = EXCLUDED.last_successful_run,
	last_attempt = EXCLUDED.last_attempt,
	last_date = EXCLUDED.last_date,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	warnings = EXCLUDED.warnings;
`,
		nullTime(status.LastSuccessfulRun),
		nullTime(status.LastAttempt),
		status.LastDate,
		status.Status,
		status.ErrorMessage,
		status.Warnings,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRunStatus returns the stored status, or a "never_run" default.
func (s *PostgreSQLStorage) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	var (
		status        models.RunStatus
		lastSucceeded sql.NullTime
		lastAttempt   sql.NullTime
		lastDate      sql.NullString
		errMsg        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT last_successful_run, last_attempt, last_date, status, error_message, warnings
FROM apod_run_status WHERE id = 1`).
		Scan(&lastSucceeded, &lastAttempt, &lastDate, &status.Status, &errMsg, &status.Warnings)
	if err == sql.ErrNoRows {
		return &models.RunStatus{Status: "never_run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	status.LastSuccessfulRun = lastSucceeded.Time
	status.LastAttempt = lastAttempt.Time
	status.LastDate = lastDate.String
	status.ErrorMessage = errMsg.String
	return &status, nil
}

// Close closes the connection pool.
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.PersistedRecord, error) {
	var (
		rec       models.PersistedRecord
		date      time.Time
		hdurl     sql.NullString
		copyright sql.NullString
		retrieved sql.NullTime
	)
	if err := row.Scan(&rec.ID, &date, &rec.Title, &rec.URL, &hdurl, &rec.MediaType,
		&rec.Explanation, &copyright, &retrieved, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Date = date.Format(models.DateLayout)
	rec.HDURL = hdurl.String
	rec.Copyright = copyright.String
	rec.RetrievedAt = retrieved.Time
	return &rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
