package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"vericase/internal/util"
	"vericase/pkg/queue"
	"vericase/services/ingest/internal/app"
)

// JobService schedules and reports container runs.
type JobService interface {
	Enqueue(ctx context.Context, trigger queue.Trigger) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	Jobs          JobService
	InternalToken string
	Metrics       http.Handler
}

// Server exposes HTTP endpoints for the ingest worker.
type Server struct {
	jobs          JobService
	internalToken string
	metrics       http.Handler
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("job service required")
	}
	if strings.TrimSpace(cfg.InternalToken) == "" {
		return nil, errors.New("internal token required")
	}
	s := &Server{
		jobs:          cfg.Jobs,
		internalToken: cfg.InternalToken,
		metrics:       cfg.Metrics,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("ingest", s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
	s.mux.Handle("/ingest/jobs", s.withInternal(s.handleJobs))
	s.mux.Handle("/ingest/jobs/", s.withInternal(s.handleJobByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.internalToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.jobs.Enqueue(r.Context(), queue.Trigger{
		ContainerID: strings.TrimSpace(req.ContainerID),
		StorageKey:  strings.TrimSpace(req.StorageKey),
		CaseID:      strings.TrimSpace(req.CaseID),
		CompanyID:   strings.TrimSpace(req.CompanyID),
	})
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("enqueue rejected", "containerId", req.ContainerID, "err", err)
		writeError(w, enqueueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/ingest/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	job, ok, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("job lookup failed", "jobId", id, "err", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrContainerNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrContainerNotRunnable):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type ingestRequest struct {
	ContainerID string `json:"containerId"`
	StorageKey  string `json:"storageKey"`
	CaseID      string `json:"caseId"`
	CompanyID   string `json:"companyId"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
