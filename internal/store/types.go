package store

import "time"

// Response is a serialized analysis result cached for a path.
type Response struct {
	Path      string
	Payload   string
	IsFailure bool
	CreatedAt time.Time
}

// Analysis records one pass of the analysis pipeline over a file.
type Analysis struct {
	ID              int64
	Path            string
	Version         string
	ContentHash     string
	Duration        time.Duration
	ExportCount     int
	DependencyCount int
	ErrorCount      int
	AnalyzedAt      time.Time
}
