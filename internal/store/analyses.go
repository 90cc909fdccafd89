package store

import (
	"fmt"
	"time"
)

// RecordAnalysis inserts a, setting its ID. A zero AnalyzedAt is set to now.
func (s *Store) RecordAnalysis(a *Analysis) (int64, error) {
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO analyses (path, version, content_hash, duration_ms, export_count,
		   dependency_count, error_count, analyzed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Path, a.Version, a.ContentHash, a.Duration.Milliseconds(), a.ExportCount,
		a.DependencyCount, a.ErrorCount, a.AnalyzedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	return id, nil
}

// AnalysesByPath returns the passes recorded for path, oldest first.
func (s *Store) AnalysesByPath(path string) ([]*Analysis, error) {
	rows, err := s.db.Query(
		`SELECT id, path, version, content_hash, duration_ms, export_count,
		   dependency_count, error_count, analyzed_at
		 FROM analyses WHERE path = ? ORDER BY id`, path,
	)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a := &Analysis{}
		var ms int64
		if err := rows.Scan(&a.ID, &a.Path, &a.Version, &a.ContentHash, &ms, &a.ExportCount,
			&a.DependencyCount, &a.ErrorCount, &a.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
