package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
)

const maxAlertLimit = 500

// Scans

// handleSubmitScan godoc
// @Summary      Submit a scan
// @Description  Queues a static or dynamic scan for the caller. The job runs asynchronously; poll /scans/{jobID} or /status.
// @Tags         scans
// @Accept       json
// @Produce      json
// @Param        body  body      ScanRequest  true  "Scan to run"
// @Success      202   {object}  ScanAcceptedResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      503   {object}  UnavailableResponse
// @Router       /scans [post]
func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var body ScanRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.logger.Warn("decoding scan request", logging.Err(err))
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.DelaySeconds < 0 {
		writeError(w, r, http.StatusBadRequest, "delaySeconds: must not be negative")
		return
	}

	job, err := s.deps.Queue.Enqueue(r.Context(), queue.EnqueueRequest{
		Type:     body.Type,
		Target:   body.Target,
		ScanType: body.ScanType,
		OwnerID:  id.OwnerID,
		Delay:    time.Duration(body.DelaySeconds) * time.Second,
	})
	if err != nil {
		s.writeDomainError(w, r, "submitting scan", err)
		return
	}
	s.logger.Info("accepted scan", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "type", Value: job.Type})
	writeJSON(w, r, http.StatusAccepted, ScanAcceptedResponse{JobID: job.ID, Status: "queued", State: job.State})
}

// handleQueueStatus godoc
// @Summary  Queue status
// @Tags     scans
// @Produce  json
// @Success  200  {object}  queue.QueueStatus
// @Router   /scans/status [get]
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Queue.Status(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "reading queue status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleGetJob godoc
// @Summary  Get one job
// @Tags     scans
// @Produce  json
// @Param    jobID  path      string  true  "Job id"
// @Success  200    {object}  model.JobSummary
// @Failure  404    {object}  ErrorResponse
// @Failure  503    {object}  UnavailableResponse
// @Router   /scans/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	jobID := chi.URLParam(r, "jobID")

	job, err := s.deps.Queue.Job(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, r, "getting job", err)
		return
	}
	if job.OwnerID != id.OwnerID && !id.IsAdmin() {
		s.writeDomainError(w, r, "getting job", model.ErrJobNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, job.Summary())
}

// handleStatus godoc
// @Summary      Aggregated status
// @Description  Queue counts, in-flight jobs, history, metrics and report freshness in one snapshot.
// @Tags         status
// @Produce      json
// @Success      200  {object}  status.Snapshot
// @Router       /status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Status.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "building status snapshot", err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// Reports

// handleListReports godoc
// @Summary  List report artifacts
// @Tags     reports
// @Produce  json
// @Success  200  {array}  model.ReportArtifact
// @Router   /reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Reports.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "listing reports", err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// handleGetReport godoc
// @Summary  Download a report
// @Tags     reports
// @Produce  json,html
// @Param    type  path  string  true  "Report type"  Enums(sast, dast)
// @Success  200
// @Failure  404  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /reports/{type} [get]
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	reportType := chi.URLParam(r, "type")
	data, contentType, err := s.deps.Reports.Read(r.Context(), reportType)
	if err != nil {
		s.writeDomainError(w, r, "reading report", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleReportDiff godoc
// @Summary  Diff against the previous run
// @Tags     reports
// @Produce  json
// @Param    type  path      string  true  "Report type"  Enums(sast, dast)
// @Success  200   {object}  model.ReportDiff
// @Failure  404   {object}  ErrorResponse
// @Router   /reports/{type}/diff [get]
func (s *Server) handleReportDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.deps.Reports.Diff(chi.URLParam(r, "type"))
	if err != nil {
		s.writeDomainError(w, r, "diffing report", err)
		return
	}
	writeJSON(w, r, http.StatusOK, diff)
}

// Alerts

// handleListAlerts godoc
// @Summary      List alerts
// @Description  Alerts owned by the caller, newest first. Admins see every owner unless owner is given.
// @Tags         alerts
// @Produce      json
// @Param        status    query     string  false  "Filter by status"    Enums(open, accepted, resolved)
// @Param        severity  query     string  false  "Filter by severity"  Enums(low, medium, high)
// @Param        jobId     query     string  false  "Filter by job"
// @Param        owner     query     string  false  "Owner filter (admin only)"
// @Param        limit     query     int     false  "Maximum results"
// @Success      200       {array}   model.Alert
// @Failure      400       {object}  ErrorResponse
// @Router       /alerts [get]
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	q := r.URL.Query()

	f := alerts.Filter{
		OwnerID:  id.OwnerID,
		JobID:    q.Get("jobId"),
		Status:   model.AlertStatus(q.Get("status")),
		Severity: model.Severity(q.Get("severity")),
	}
	if id.IsAdmin() {
		f.OwnerID = q.Get("owner")
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "status: must be one of open, accepted, resolved")
		return
	}
	if f.Severity != "" && !f.Severity.Valid() {
		writeError(w, r, http.StatusBadRequest, "severity: must be one of low, medium, high")
		return
	}
	if ls := q.Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit: must be a positive integer")
			return
		}
		f.Limit = min(v, maxAlertLimit)
	}

	list, err := s.deps.Alerts.List(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, r, "listing alerts", err)
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

// handleUpdateAlert godoc
// @Summary      Update alert status
// @Description  Alerts only move forward: open, accepted, resolved.
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        alertID  path      string              true  "Alert id"
// @Param        body     body      AlertStatusRequest  true  "New status"
// @Success      200      {object}  model.Alert
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse
// @Router       /alerts/{alertID} [patch]
func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	alertID := chi.URLParam(r, "alertID")

	var body AlertStatusRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !body.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "status: must be one of open, accepted, resolved")
		return
	}

	owner := id.OwnerID
	if id.IsAdmin() {
		owner = ""
	}
	a, err := s.deps.Alerts.UpdateStatus(r.Context(), alertID, owner, body.Status)
	if err != nil {
		s.writeDomainError(w, r, "updating alert", err)
		return
	}
	s.logger.Info("updated alert", logging.Field{Key: "alert_id", Value: a.ID}, logging.Field{Key: "status", Value: a.Status})
	writeJSON(w, r, http.StatusOK, a)
}

// Admin

// handleQueueReset godoc
// @Summary      Reset the queue connection
// @Description  Drops the cached connection state and reconnects. Admin only.
// @Tags         admin
// @Produce      json
// @Success      200  {object}  ResetResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      503  {object}  ResetResponse
// @Router       /admin/queue/reset [post]
func (s *Server) handleQueueReset(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Queue.Reset(r.Context())
	resp := ResetResponse{Available: st.Available(), Connection: st}
	if err != nil {
		s.logger.Warn("queue reset did not restore the connection", logging.Err(err))
		resp.Error = err.Error()
		writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	s.logger.Info("queue connection reset", logging.Field{Key: "phase", Value: st.Phase})
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHealth godoc
// @Summary  Liveness
// @Tags     status
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Router   /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Queue: s.deps.Queue.State().Phase})
}
