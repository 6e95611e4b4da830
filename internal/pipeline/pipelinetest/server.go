// Package pipelinetest provides a scripted in-process stand-in for the
// analysis pipeline API and its object storage.
package pipelinetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"sales-coach-go/internal/types"
)

// APIPrefix is where the fake mounts the pipeline routes.
const APIPrefix = "/api/v1"

// Route names a fake endpoint for failure injection.
type Route string

const (
	RouteUpload   Route = "upload"
	RouteTransfer Route = "transfer"
	RouteStart    Route = "start"
)

// Step is one scripted GET /status answer. A non-zero HTTPStatus makes the
// read fail with that status.
type Step struct {
	Snapshot   types.Snapshot
	HTTPStatus int
	Delay      time.Duration
}

// Queued, Processing and Completed are shorthand step builders.
func Queued(progress int) Step {
	return Step{Snapshot: types.Snapshot{Job: types.Job{Status: types.JobStatusQueued, ProgressPercentage: progress}}}
}

func Processing(progress int) Step {
	return Step{Snapshot: types.Snapshot{Job: types.Job{Status: types.JobStatusProcessing, ProgressPercentage: progress}}}
}

func Completed(t *types.Transcript, r *types.Report) Step {
	return Step{Snapshot: types.Snapshot{
		Job:        types.Job{Status: types.JobStatusCompleted, ProgressPercentage: 100},
		Transcript: t,
		Report:     r,
	}}
}

func Failing(code int) Step {
	return Step{HTTPStatus: code}
}

type job struct {
	ext         string
	body        []byte
	contentType string
	uploaded    bool
	started     bool
	script      []Step
	cursor      int
	statusCalls int
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	jobs     map[string]*job
	defaults []Step
	failures map[Route]int
	calls    map[Route]int
}

func NewServer() *Server {
	s := &Server{
		jobs:     make(map[string]*job),
		failures: make(map[Route]int),
		calls:    make(map[Route]int),
	}

	r := mux.NewRouter()
	api := r.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/start/{job_id}", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/status/{job_id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/storage/{key}", s.handleTransfer).Methods(http.MethodPut)

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the API base a client should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

// SetDefaultScript sets the status script for jobs created after the call.
func (s *Server) SetDefaultScript(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = steps
}

// AddJob registers an already uploaded and started job.
func (s *Server) AddJob(jobID string, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = &job{ext: "mp3", uploaded: true, started: true, script: steps}
}

// Fail makes every call to route answer with code. Zero clears it.
func (s *Server) Fail(route Route, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = code
}

func (s *Server) Calls(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) StatusCalls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.statusCalls
	}
	return 0
}

// JobIDs lists every job the fake knows about.
func (s *Server) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	return out
}

// Upload returns what storage received for a job.
func (s *Server) Upload(jobID string) (body []byte, contentType string, ext string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, exists := s.jobs[jobID]
	if !exists || !j.uploaded {
		return nil, "", "", false
	}
	return append([]byte(nil), j.body...), j.contentType, j.ext, true
}

func (s *Server) Started(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	return ok && j.started
}

func (s *Server) failure(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	return s.failures[route]
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if code := s.failure(RouteUpload); code != 0 {
		http.Error(w, "upload slot unavailable", code)
		return
	}
	ext := r.URL.Query().Get("file_extension")
	if ext == "" {
		ext = "mp3"
	}
	jobID := uuid.NewString()

	s.mu.Lock()
	s.jobs[jobID] = &job{ext: ext, script: append([]Step(nil), s.defaults...)}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"job_id":     jobID,
		"upload_url": s.URL + "/storage/" + jobID + "." + ext + "?X-Amz-Signature=test",
		"status":     "pending",
		"message":    "Upload URL generated.",
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if code := s.failure(RouteTransfer); code != 0 {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", code)
		return
	}
	key := mux.Vars(r)["key"]
	jobID := key
	if i := strings.LastIndex(key, "."); i >= 0 {
		jobID = key[:i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		http.Error(w, "<Error><Code>NoSuchUpload</Code></Error>", http.StatusNotFound)
		return
	}
	j.body = body
	j.contentType = r.Header.Get("Content-Type")
	j.uploaded = true
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if code := s.failure(RouteStart); code != 0 {
		http.Error(w, `{"detail":"pipeline unavailable"}`, code)
		return
	}
	jobID := mux.Vars(r)["job_id"]

	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if ok {
		j.started = true
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	s.mu.Lock()
	j, ok := s.jobs[jobID]
	var step Step
	if ok {
		j.statusCalls++
		if len(j.script) > 0 {
			idx := j.cursor
			if idx >= len(j.script) {
				idx = len(j.script) - 1
			} else {
				j.cursor++
			}
			step = j.script[idx]
		} else {
			step = Queued(0)
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Job not found"})
		return
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if step.HTTPStatus != 0 {
		http.Error(w, "status backend error", step.HTTPStatus)
		return
	}
	snap := step.Snapshot
	snap.ID = jobID
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
