// Package history keeps a local sqlite ledger of analyses and dictations.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		file_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE TABLE IF NOT EXISTS transcriptions (
		session_id TEXT PRIMARY KEY,
		text TEXT,
		target TEXT,
		error_message TEXT,
		payload_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

type Analysis struct {
	ID         string
	FileCount  int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Target is where a dictation's text went.
type Target string

const (
	TargetSend    Target = "send"
	TargetCompose Target = "compose"
	TargetNone    Target = ""
)

type Transcription struct {
	SessionID    string
	Text         string
	Target       Target
	Error        string
	PayloadBytes int
	CreatedAt    time.Time
}

func (s *Store) AnalysisStarted(id string, fileCount int, at time.Time) error {
	if id == "" {
		return errors.New("analysis id is required")
	}
	_, err := s.db.Exec(
		`INSERT INTO analyses (id, file_count, status, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_count = excluded.file_count, started_at = excluded.started_at`,
		id, fileCount, "pending", formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *Store) AnalysisStatus(id, status string) error {
	if _, err := s.db.Exec(`UPDATE analyses SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	return nil
}

// AnalysisFinished records the terminal status; errMsg is stored only when non-empty.
func (s *Store) AnalysisFinished(id, status, errMsg string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE analyses SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, nullable(errMsg), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("finish analysis: %w", err)
	}
	return nil
}

func (s *Store) TranscriptionStarted(sessionID string, payloadBytes int, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO transcriptions (session_id, payload_bytes, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET payload_bytes = excluded.payload_bytes`,
		sessionID, payloadBytes, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

func (s *Store) TranscriptionFinished(sessionID, text string, target Target, errMsg string) error {
	_, err := s.db.Exec(`UPDATE transcriptions SET text = ?, target = ?, error_message = ? WHERE session_id = ?`,
		nullable(text), nullable(string(target)), nullable(errMsg), sessionID)
	if err != nil {
		return fmt.Errorf("finish transcription: %w", err)
	}
	return nil
}

func (s *Store) RecentAnalyses(limit int) ([]Analysis, error) {
	rows, err := s.db.Query(`SELECT id, file_count, status, error_message, started_at, finished_at
		FROM analyses ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var a Analysis
		var errMsg, finished sql.NullString
		var started string
		if err := rows.Scan(&a.ID, &a.FileCount, &a.Status, &errMsg, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		a.Error = errMsg.String
		a.StartedAt = parseTime(started)
		a.FinishedAt = parseTime(finished.String)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RecentTranscriptions(limit int) ([]Transcription, error) {
	rows, err := s.db.Query(`SELECT session_id, text, target, error_message, payload_bytes, created_at
		FROM transcriptions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	var out []Transcription
	for rows.Next() {
		var t Transcription
		var text, target, errMsg sql.NullString
		var created string
		if err := rows.Scan(&t.SessionID, &text, &target, &errMsg, &t.PayloadBytes, &created); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		t.Text = text.String
		t.Target = Target(target.String)
		t.Error = errMsg.String
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Counts returns the number of analyses and transcriptions recorded.
func (s *Store) Counts() (analyses, transcriptions int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&analyses); err != nil {
		return 0, 0, fmt.Errorf("count analyses: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM transcriptions`).Scan(&transcriptions); err != nil {
		return 0, 0, fmt.Errorf("count transcriptions: %w", err)
	}
	return analyses, transcriptions, nil
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
