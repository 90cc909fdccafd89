package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PutResponse stores r, replacing any earlier response for the same path.
// A zero CreatedAt is set to now.
func (s *Store) PutResponse(r *Response) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO responses (path, payload, is_failure, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET payload = excluded.payload,
		   is_failure = excluded.is_failure, created_at = excluded.created_at`,
		r.Path, r.Payload, r.IsFailure, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

// Response returns the cached response for path, or nil when there is none.
func (s *Store) Response(path string) (*Response, error) {
	r := &Response{}
	err := s.db.QueryRow(
		"SELECT path, payload, is_failure, created_at FROM responses WHERE path = ?", path,
	).Scan(&r.Path, &r.Payload, &r.IsFailure, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("response by path: %w", err)
	}
	return r, nil
}

// ResponseCount returns how many paths have a cached response.
func (s *Store) ResponseCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM responses").Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}
