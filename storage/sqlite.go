package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"centris_importer/models"
)

// RunLog keeps a local record of import attempts for operators.
type RunLog struct {
	db *sql.DB
}

func NewRunLog(dbPath string) (*RunLog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &RunLog{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *RunLog) Close() error {
	return s.db.Close()
}

func (s *RunLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS import_runs (
		id INTEGER PRIMARY KEY,
		url TEXT NOT NULL,
		source_id TEXT,
		user_id TEXT,
		listing_id TEXT,
		status TEXT,
		candidates_found INTEGER DEFAULT 0,
		images_saved INTEGER DEFAULT 0,
		image_errors INTEGER DEFAULT 0,
		error_message TEXT,
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *RunLog) CreateRun(ctx context.Context, run *models.ImportRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (url, source_id, user_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.URL, run.SourceID, run.UserID, run.Status, run.StartedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return result.LastInsertId()
}

func (s *RunLog) FinishRun(ctx context.Context, run *models.ImportRun) error {
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			listing_id = ?, status = ?, candidates_found = ?, images_saved = ?,
			image_errors = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		run.ListingID, run.Status, run.CandidatesFound, run.ImagesSaved,
		run.ImageErrors, run.ErrorMessage, finished, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *RunLog) RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, COALESCE(source_id, ''), COALESCE(user_id, ''), COALESCE(listing_id, ''),
			status, candidates_found, images_saved, image_errors, COALESCE(error_message, ''),
			started_at, finished_at
		FROM import_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ImportRun
	for rows.Next() {
		var r models.ImportRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.URL, &r.SourceID, &r.UserID, &r.ListingID,
			&r.Status, &r.CandidatesFound, &r.ImagesSaved, &r.ImageErrors, &r.ErrorMessage,
			&r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs that started before cutoff and reports how many
// were removed.
func (s *RunLog) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM import_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return result.RowsAffected()
}
