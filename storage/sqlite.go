package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"cnb_scraper/models"
)

// SQLiteStore is the local run ledger: one row per run plus its log lines.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		kind TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		urls_total INTEGER DEFAULT 0,
		records_written INTEGER DEFAULT 0,
		sections_failed INTEGER DEFAULT 0,
		object_key TEXT DEFAULT '',
		error_message TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_runs (id, kind, started_at, status, urls_total)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.StartedAt, run.Status, run.URLsTotal)
	return err
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, urls_total = ?,
			records_written = ?, sections_failed = ?, object_key = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.URLsTotal, run.RecordsWritten,
		run.SectionsFailed, run.ObjectKey, run.Error, run.ID.String())
	return err
}

func (s *SQLiteStore) Log(runID uuid.UUID, level models.LogLevel, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message)
		VALUES (?, ?, ?, ?)`,
		runID.String(), time.Now(), level, message)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, started_at, finished_at, status, urls_total,
			records_written, sections_failed, object_key, error_message
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		var id string
		var finished sql.NullTime
		if err := rows.Scan(&id, &r.Kind, &r.StartedAt, &finished, &r.Status, &r.URLsTotal,
			&r.RecordsWritten, &r.SectionsFailed, &r.ObjectKey, &r.Error); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
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

// RunLogs returns the log lines of one run in the order they were written.
func (s *SQLiteStore) RunLogs(runID uuid.UUID) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message
		FROM scrape_logs WHERE run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var id string
		if err := rows.Scan(&l.ID, &id, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		if l.RunID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
