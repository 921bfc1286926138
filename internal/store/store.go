package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examcoach/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		board TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		topics TEXT NOT NULL DEFAULT '[]',
		answers TEXT NOT NULL DEFAULT '{}',
		results TEXT NOT NULL DEFAULT '[]',
		total_awarded INTEGER NOT NULL DEFAULT 0,
		total_max INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS attempts_created_at ON attempts(created_at);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordAttempt stores a marked attempt and returns its id.
// A missing id or creation time is filled in.
func (s *Store) RecordAttempt(a model.Attempt) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()

	topics, err := json.Marshal(nonNil(a.Request.Topics))
	if err != nil {
		return "", fmt.Errorf("encode topics: %w", err)
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	results, err := json.Marshal(a.Result.Results)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO attempts (id, board, level, subject, topics, answers, results, total_awarded, total_max, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Request.Board, a.Request.Level, a.Request.Subject,
		string(topics), string(answers), string(results),
		a.Result.TotalAwarded, a.Result.TotalMax, a.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

const attemptColumns = `id, board, level, subject, topics, answers, results, total_awarded, total_max, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (model.Attempt, error) {
	var (
		a                        model.Attempt
		topics, answers, results string
	)
	err := row.Scan(&a.ID, &a.Request.Board, &a.Request.Level, &a.Request.Subject,
		&topics, &answers, &results, &a.Result.TotalAwarded, &a.Result.TotalMax, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(topics), &a.Request.Topics); err != nil {
		return a, fmt.Errorf("decode topics of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return a, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(results), &a.Result.Results); err != nil {
		return a, fmt.Errorf("decode results of attempt %s: %w", a.ID, err)
	}
	a.Result.AttemptID = a.ID
	return a, nil
}

// GetAttempt returns an attempt by id, or nil if it does not exist.
func (s *Store) GetAttempt(id string) (*model.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttempts returns attempts newest first. A limit of zero or less
// returns all of them.
func (s *Store) ListAttempts(limit int) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AttemptCount returns the number of recorded attempts.
func (s *Store) AttemptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&count)
	return count, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
