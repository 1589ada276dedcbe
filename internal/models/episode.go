package models

import "time"

// Candidate is an audio file discovered in the input directory.
type Candidate struct {
	Path          string
	Filename      string
	FilesizeBytes int64
	ModifiedAt    time.Time
}

// Metadata is what the extractor derives from a transcript.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Episode carries everything needed to build one feed item.
type Episode struct {
	GUID          string
	Filename      string
	Title         string
	Description   string
	Tags          []string
	Author        string
	FilesizeBytes int64
	PublishedAt   time.Time
	// DurationSeconds is nil when the probe could not decode the file.
	DurationSeconds *int64
}

// Status describes how a pass handled one candidate.
type Status string

const (
	StatusAdded   Status = "added"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// FileResult records the outcome for a single file in a pass.
type FileResult struct {
	Filename string
	Status   Status
	Title    string
	Err      error
}
