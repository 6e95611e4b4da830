// Package session binds the single tracked job to its poller, persists the
// job id and keeps the latest view of the job for presentation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/poller"
	"sales-coach-go/internal/store"
	"sales-coach-go/internal/types"
	"sales-coach-go/internal/upload"
)

// JobIDKey is where the tracked job id lives in the key-value store.
const JobIDKey = "jobId"

const (
	MsgUploadFailed      = "Upload failed."
	MsgStatusFetchFailed = "Failed to fetch job status."
)

var ErrNoJob = errors.New("session: no job to track")

// Initiator submits a recording and returns its job id. *upload.Coordinator
// implements it.
type Initiator interface {
	Initiate(ctx context.Context, f upload.File, onProgress func(pct int)) (string, error)
}

// View is what presentation shows for the tracked job.
type View struct {
	JobID       string            `json:"job_id,omitempty"`
	Status      types.JobStatus   `json:"status,omitempty"`
	Progress    int               `json:"progress_percentage"`
	CurrentStep string            `json:"current_step,omitempty"`
	Transcript  *types.Transcript `json:"transcript,omitempty"`
	Report      *types.Report     `json:"report,omitempty"`
	Loading     bool              `json:"loading"`
	Error       string            `json:"error,omitempty"`
	Polling     bool              `json:"polling"`
}

// Event is delivered to observers for every snapshot or failure of the
// current job. Exactly one of Snapshot and Err is set.
type Event struct {
	JobID    string
	Snapshot *types.Snapshot
	Err      error
}

// Observer is called synchronously with the session lock held, so it must
// not call back into the session.
type Observer func(Event)

type Options struct {
	Store        store.KeyValueStore
	Fetcher      poller.Fetcher
	PollInterval time.Duration
	PollMaxTicks int
	Logger       *logrus.Entry
}

type Session struct {
	store   store.KeyValueStore
	fetcher poller.Fetcher
	pollOpt poller.Options
	log     *logrus.Entry

	mu        sync.Mutex
	gen       uint64
	poller    *poller.Poller
	view      View
	observers map[int]Observer
	nextObs   int
}

func New(opts Options) *Session {
	log := logger.OrDiscard(opts.Logger).WithField("component", "session")
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	return &Session{
		store:   opts.Store,
		fetcher: opts.Fetcher,
		pollOpt: poller.Options{
			Interval: opts.PollInterval,
			MaxTicks: opts.PollMaxTicks,
			Logger:   log,
		},
		log:       log,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for future events and returns a function that
// removes it.
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Upload submits f and, once the pipeline has started, tracks the new job.
func (s *Session) Upload(ctx context.Context, initiator Initiator, f upload.File, onProgress func(int)) (string, error) {
	s.mu.Lock()
	s.view.Error = ""
	s.view.Loading = true
	s.mu.Unlock()

	jobID, err := initiator.Initiate(ctx, f, onProgress)
	if err != nil {
		s.mu.Lock()
		s.view.Error = MsgUploadFailed
		s.view.Loading = false
		s.notify(Event{JobID: s.view.JobID, Err: err})
		s.mu.Unlock()
		return "", err
	}

	if err := s.Attach(ctx, jobID); err != nil {
		return jobID, err
	}
	return jobID, nil
}

// Attach makes jobID the tracked job, persists it and starts polling it. Any
// previous job stops being tracked before Attach returns.
func (s *Session) Attach(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrNoJob
	}
	if err := s.store.Set(ctx, JobIDKey, jobID); err != nil {
		s.log.WithField("job_id", jobID).WithField("error", err.Error()).Warn("could not persist job id")
	}
	return s.track(ctx, jobID)
}

// Resume tracks the persisted job id, if any. It returns ErrNoJob when
// nothing was persisted.
func (s *Session) Resume(ctx context.Context) (string, error) {
	jobID, ok, err := s.store.Get(ctx, JobIDKey)
	if err != nil {
		return "", err
	}
	if !ok || jobID == "" {
		return "", ErrNoJob
	}
	s.log.WithField("job_id", jobID).Info("resuming job")
	return jobID, s.track(ctx, jobID)
}

// Wait blocks until the current poller stops or ctx ends, and returns the
// view at that point.
func (s *Session) Wait(ctx context.Context) (View, error) {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	if p == nil {
		return s.View(), ErrNoJob
	}

	select {
	case <-p.Done():
		return s.View(), nil
	case <-ctx.Done():
		return s.View(), ctx.Err()
	}
}

// Close stops tracking. Events already in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.poller != nil {
		s.poller.Stop()
	}
	s.view.Polling = false
}

// track swaps in a fresh poller for jobID. The generation bump under the lock
// makes late callbacks from the old poller no-ops.
func (s *Session) track(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	gen := s.gen
	if s.poller != nil {
		s.poller.Stop()
	}

	s.view = View{
		JobID:   jobID,
		Status:  types.JobStatusQueued,
		Loading: true,
		Polling: true,
	}

	p := poller.New(s.fetcher, s.pollOpt)
	s.poller = p
	log := s.log.WithField("job_id", jobID)

	onSnapshot := func(snap types.Snapshot) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.apply(snap)
		s.notify(Event{JobID: jobID, Snapshot: &snap})
	}
	onError := func(err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.view.Error = MsgStatusFetchFailed
		s.view.Loading = false
		s.view.Polling = false
		s.notify(Event{JobID: jobID, Err: err})
	}

	// Polling outlives the request that attached it; only Close or the next
	// Attach end it.
	if err := p.Start(context.WithoutCancel(ctx), jobID, onSnapshot, onError); err != nil {
		s.view.Polling = false
		s.view.Loading = false
		return err
	}
	log.Info("tracking job")
	return nil
}

func (s *Session) apply(snap types.Snapshot) {
	s.view.Status = snap.Status
	s.view.Progress = snap.ProgressPercentage
	s.view.CurrentStep = snap.CurrentStep
	if snap.Transcript != nil {
		s.view.Transcript = snap.Transcript
	}
	if snap.Report != nil {
		s.view.Report = snap.Report
	}
	if snap.Status.Terminal() {
		s.view.Loading = false
		s.view.Polling = false
		if snap.Status == types.JobStatusFailed && snap.ErrorMessage != "" {
			s.view.Error = snap.ErrorMessage
		}
	}
}

// notify must be called with s.mu held.
func (s *Session) notify(ev Event) {
	for _, fn := range s.observers {
		fn(ev)
	}
}
