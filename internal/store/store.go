// Package store persists analysis records and alerts in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
)

// Store handles persistence of analysis results.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at dbPath. The special
// path ":memory:" opens an in-memory database, used by tests.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.Error("Failed to open database", "path", dbPath, "error", err)
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		logging.Error("Failed to migrate database", "error", err)
		db.Close()
		return nil, err
	}

	logging.Info("Database initialized", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		sentiment_score INTEGER NOT NULL,
		key_opinions TEXT NOT NULL,
		summary TEXT,
		mindmap_code TEXT,
		heat_index REAL NOT NULL,
		total_items INTEGER NOT NULL,
		platform_distribution TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_keyword ON records(keyword);
	CREATE INDEX IF NOT EXISTS idx_records_analyzed ON records(analyzed_at DESC);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		keyword TEXT NOT NULL,
		sentiment_score INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		alert_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (record_id) REFERENCES records(id)
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_keyword ON alerts(keyword);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRecord inserts one analysis record. Records are immutable; saving the
// same ID twice is an error.
func (s *Store) SaveRecord(r *model.AnalysisRecord) error {
	opinions, err := json.Marshal(r.KeyOpinions)
	if err != nil {
		return fmt.Errorf("failed to encode opinions: %w", err)
	}
	distribution, err := json.Marshal(r.PlatformDistribution)
	if err != nil {
		return fmt.Errorf("failed to encode distribution: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO records (id, keyword, sentiment_score, key_opinions, summary,
			mindmap_code, heat_index, total_items, platform_distribution, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Keyword, r.SentimentScore, string(opinions), r.Summary,
		r.MindmapCode, r.HeatIndex, r.TotalItems, string(distribution),
		r.AnalyzedAt.UTC().Format(time.RFC3339))
	return err
}

// GetRecord fetches one record by ID. Returns sql.ErrNoRows when absent.
func (s *Store) GetRecord(id string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, keyword, sentiment_score, key_opinions, summary,
			mindmap_code, heat_index, total_items, platform_distribution, analyzed_at
		FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// ListRecords returns the most recent records for a keyword, newest first.
// An empty keyword matches everything.
func (s *Store) ListRecords(keyword string, limit int) ([]*model.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, keyword, sentiment_score, key_opinions, summary,
			mindmap_code, heat_index, total_items, platform_distribution, analyzed_at
		FROM records`
	args := []any{}
	if keyword != "" {
		query += " WHERE keyword = ?"
		args = append(args, keyword)
	}
	query += " ORDER BY analyzed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.AnalysisRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.AnalysisRecord, error) {
	var r model.AnalysisRecord
	var opinions, distribution, analyzedAt string
	if err := row.Scan(&r.ID, &r.Keyword, &r.SentimentScore, &opinions, &r.Summary,
		&r.MindmapCode, &r.HeatIndex, &r.TotalItems, &distribution, &analyzedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(opinions), &r.KeyOpinions); err != nil {
		return nil, fmt.Errorf("failed to decode opinions: %w", err)
	}
	if err := json.Unmarshal([]byte(distribution), &r.PlatformDistribution); err != nil {
		return nil, fmt.Errorf("failed to decode distribution: %w", err)
	}
	t, err := time.Parse(time.RFC3339, analyzedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analyzed_at: %w", err)
	}
	r.AnalyzedAt = t
	return &r, nil
}

// SaveAlert records a threshold breach for a run.
func (s *Store) SaveAlert(a *model.Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, record_id, keyword, sentiment_score, threshold, alert_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RecordID, a.Keyword, a.SentimentScore, a.Threshold, a.AlertType,
		a.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// ListAlerts returns recent alerts, newest first.
func (s *Store) ListAlerts(limit int) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, record_id, keyword, sentiment_score, threshold, alert_type, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		var a model.Alert
		var createdAt string
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Keyword, &a.SentimentScore,
			&a.Threshold, &a.AlertType, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		a.CreatedAt = t
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
