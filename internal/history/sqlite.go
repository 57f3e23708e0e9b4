package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"signscribe/internal/domain"
)

var ErrNotFound = errors.New("detection not found")

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	detected_text TEXT NOT NULL,
	confidence REAL NOT NULL,
	alternatives TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_user_created ON detections(user_id, created_at);
`

// SQLiteStore persists detections per user.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its parent directory if needed.
func Open(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save stores a detection, assigning its id and timestamp.
func (s *SQLiteStore) Save(ctx context.Context, record domain.HistoryRecord) (domain.HistoryRecord, error) {
	if strings.TrimSpace(record.UserID) == "" {
		return domain.HistoryRecord{}, errors.New("history record has no user")
	}
	record.ID = uuid.NewString()
	record.CreatedAt = s.now().UTC()
	if record.Alternatives == nil {
		record.Alternatives = []domain.Alternative{}
	}

	alternatives, err := json.Marshal(record.Alternatives)
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("failed to encode alternatives: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO detections (id, user_id, detected_text, confidence, alternatives, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, record.ID, record.UserID, record.DetectedText, record.Confidence, string(alternatives), record.CreatedAt.UnixNano())
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("failed to save detection: %w", err)
	}
	return record, nil
}

// ListByUser returns the newest detections of one user.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = domain.RecentDetectionsLimit
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, detected_text, confidence, alternatives, created_at
	FROM detections WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0, limit)
	for rows.Next() {
		var (
			record       domain.HistoryRecord
			alternatives string
			createdAt    int64
		)
		if err := rows.Scan(&record.ID, &record.UserID, &record.DetectedText, &record.Confidence, &alternatives, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to read detection: %w", err)
		}
		if err := json.Unmarshal([]byte(alternatives), &record.Alternatives); err != nil {
			return nil, fmt.Errorf("failed to decode alternatives of %s: %w", record.ID, err)
		}
		record.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	return records, nil
}

// Delete removes one detection.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete detection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete detection: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
