package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/examcoach/internal/model"
)

const paperFingerprintKey = "paper_fingerprint"

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Fingerprint returns a stable hash of a paper's content, marking data included.
func Fingerprint(p model.Paper) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode paper: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// CheckPaper records the fingerprint of the paper attempts are marked
// against. It reports whether a different paper was recorded before, in
// which case older attempts were marked under other rules.
func (s *Store) CheckPaper(p model.Paper) (changed bool, err error) {
	fp, err := Fingerprint(p)
	if err != nil {
		return false, err
	}
	stored, err := s.GetMetadata(paperFingerprintKey)
	if err != nil {
		return false, fmt.Errorf("read paper fingerprint: %w", err)
	}
	if stored == fp {
		return false, nil
	}
	if err := s.SetMetadata(paperFingerprintKey, fp); err != nil {
		return false, fmt.Errorf("record paper fingerprint: %w", err)
	}
	return stored != "", nil
}
