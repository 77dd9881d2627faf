package server

import (
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
)

// ScanRequest is the payload for submitting a scan.
type ScanRequest struct {
	Type         model.JobType  `json:"type" example:"dast"`
	Target       string         `json:"target,omitempty" example:"https://app.example.com"`
	ScanType     model.ScanMode `json:"scanType,omitempty" example:"simple"`
	DelaySeconds int            `json:"delaySeconds,omitempty" example:"0"`
}

// ScanAcceptedResponse acknowledges a queued scan.
type ScanAcceptedResponse struct {
	JobID  string         `json:"jobId" example:"3f0c8e0a-6f5e-4d6b-9b53-0d5c1f8a2b11"`
	Status string         `json:"status" example:"queued"`
	State  model.JobState `json:"state" example:"waiting"`
}

// AlertStatusRequest moves an alert forward in its lifecycle.
type AlertStatusRequest struct {
	Status model.AlertStatus `json:"status" example:"accepted"`
}

// ResetResponse reports the connection state after a reset.
type ResetResponse struct {
	Available  bool            `json:"available" example:"true"`
	Connection queue.ConnState `json:"connection"`
	Error      string          `json:"error,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string      `json:"status" example:"ok"`
	Queue  queue.Phase `json:"queue" example:"connected"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}

// UnavailableResponse is returned when the queue backend is down.
type UnavailableResponse struct {
	Error     string `json:"error" example:"queue backend unavailable"`
	Available bool   `json:"available" example:"false"`
}
