package model

import "time"

// ReportArtifact describes a scanner output file as currently seen on disk.
// It is derived from filesystem metadata on every read, never cached.
type ReportArtifact struct {
	Type         string     `json:"type"`
	Name         string     `json:"name"`
	File         string     `json:"file"`
	Exists       bool       `json:"exists"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Size         *int64     `json:"size,omitempty"`
}

// ReportDiff summarises how an artifact changed between the last two runs.
type ReportDiff struct {
	Type             string    `json:"type"`
	PreviousModified time.Time `json:"previousModified"`
	CurrentModified  time.Time `json:"currentModified"`
	Insertions       int       `json:"insertions"`
	Deletions        int       `json:"deletions"`
	Patch            string    `json:"patch,omitempty"`
}
