package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transcript is one finished dictation.
type Transcript struct {
	ID        string
	Language  string
	StartedAt time.Time
	EndedAt   time.Time
	Text      string
}

// History records finished dictations.
type History interface {
	Record(ctx context.Context, t Transcript) (string, error)
	Recent(ctx context.Context, limit int) ([]Transcript, error)
}

// Record stores t and returns its id, generating one when t.ID is empty.
func (s *SQLite) Record(ctx context.Context, t Transcript) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EndedAt.IsZero() {
		t.EndedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, language, started_at, ended_at, text)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Language, t.StartedAt.UnixMilli(), t.EndedAt.UnixMilli(), t.Text)
	if err != nil {
		return "", fmt.Errorf("insert transcript: %w", err)
	}
	return t.ID, nil
}

// Recent returns up to limit transcripts, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, language, started_at, ended_at, text
		FROM transcripts
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		var started, ended int64
		if err := rows.Scan(&t.ID, &t.Language, &started, &ended, &t.Text); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		t.StartedAt = time.UnixMilli(started)
		t.EndedAt = time.UnixMilli(ended)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (m *Memory) Record(_ context.Context, t Transcript) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EndedAt.IsZero() {
		t.EndedAt = time.Now()
	}
	m.mu.Lock()
	m.transcripts = append(m.transcripts, t)
	m.mu.Unlock()
	return t.ID, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transcript
	for i := len(m.transcripts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.transcripts[i])
	}
	return out, nil
}
