package model

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertAccepted AlertStatus = "accepted"
	AlertResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertOpen || s == AlertAccepted || s == AlertResolved
}

// rank orders statuses; transitions may only increase it.
func (s AlertStatus) rank() int {
	switch s {
	case AlertOpen:
		return 0
	case AlertAccepted:
		return 1
	case AlertResolved:
		return 2
	}
	return -1
}

// CanTransition reports whether an alert may move from s to next.
// Alerts only move forward; nothing returns to open.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Alert is a normalised security finding.
type Alert struct {
	ID          string      `json:"id" db:"id"`
	JobID       string      `json:"jobId,omitempty" db:"job_id"`
	OwnerID     string      `json:"ownerId" db:"owner_id"`
	Title       string      `json:"title" db:"title"`
	Severity    Severity    `json:"severity" db:"severity"`
	SourceTool  string      `json:"sourceTool" db:"source_tool"`
	Location    string      `json:"location" db:"location"`
	Description string      `json:"description" db:"description"`
	Remediation string      `json:"remediation,omitempty" db:"remediation"`
	Status      AlertStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"createdAt" db:"-"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"-"`
}
