package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/pipeline/pipelinetest"
	"sales-coach-go/internal/store"
	"sales-coach-go/internal/types"
	"sales-coach-go/internal/upload"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) countFor(jobID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.JobID == jobID {
			n++
		}
	}
	return n
}

func newSession(t *testing.T, srv *pipelinetest.Server, kv store.KeyValueStore) *Session {
	t.Helper()
	client := pipeline.NewClient(pipeline.ClientConfig{
		BaseURL:        srv.BaseURL(),
		SlotTimeout:    2 * time.Second,
		TriggerTimeout: 2 * time.Second,
		StatusTimeout:  2 * time.Second,
	})
	s := New(Options{Store: kv, Fetcher: client, PollInterval: 5 * time.Millisecond})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestAttachSupersedesPreviousJob(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.AddJob("job-a", pipelinetest.Processing(40))
	srv.AddJob("job-b", pipelinetest.Processing(10))

	s := newSession(t, srv, store.NewMemoryStore())
	log := &eventLog{}
	s.Subscribe(log.observe)

	ctx := context.Background()
	if err := s.Attach(ctx, "job-a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return log.countFor("job-a") >= 2 })

	if err := s.Attach(ctx, "job-b"); err != nil {
		t.Fatal(err)
	}
	seenA := log.countFor("job-a")
	waitFor(t, func() bool { return log.countFor("job-b") >= 3 })

	if got := log.countFor("job-a"); got != seenA {
		t.Fatalf("job-a delivered %d events after being superseded", got-seenA)
	}
	if v := s.View(); v.JobID != "job-b" || v.Progress != 10 {
		t.Fatalf("view = %+v, want job-b at 10%%", v)
	}
}

func TestCompletedJobRetainsTranscriptAndReport(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	transcript := &types.Transcript{
		Segments: []types.TranscriptSegment{{Speaker: types.SpeakerRep, Text: "hello there", StartTime: 0, EndTime: 2}},
		Duration: 2,
	}
	report := &types.Report{OverallScore: 7.5, Strengths: []string{"rapport"}}
	early := pipelinetest.Processing(60)
	early.Snapshot.Transcript = transcript
	srv.AddJob("job-1", pipelinetest.Queued(10), early, pipelinetest.Completed(nil, report))

	s := newSession(t, srv, store.NewMemoryStore())
	if err := s.Attach(context.Background(), "job-1"); err != nil {
		t.Fatal(err)
	}
	v, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if v.Status != types.JobStatusCompleted || v.Loading || v.Polling {
		t.Fatalf("view = %+v, want completed and idle", v)
	}
	if v.Transcript == nil || len(v.Transcript.Segments) != 1 {
		t.Fatal("transcript from an earlier snapshot was not kept")
	}
	if v.Report == nil || v.Report.OverallScore != 7.5 {
		t.Fatalf("report = %+v", v.Report)
	}
	if srv.StatusCalls("job-1") != 3 {
		t.Fatalf("status calls = %d, want 3", srv.StatusCalls("job-1"))
	}
}

func TestStatusFailureSetsError(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.AddJob("job-1", pipelinetest.Queued(0), pipelinetest.Failing(http.StatusInternalServerError))

	s := newSession(t, srv, store.NewMemoryStore())
	log := &eventLog{}
	s.Subscribe(log.observe)
	_ = s.Attach(context.Background(), "job-1")
	v, _ := s.Wait(context.Background())

	if v.Error != MsgStatusFetchFailed || v.Loading || v.Polling {
		t.Fatalf("view = %+v", v)
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	last := log.events[len(log.events)-1]
	if !pipeline.IsKind(last.Err, pipeline.KindStatusFetch) {
		t.Fatalf("last event err = %v, want status_fetch", last.Err)
	}
}

func TestUploadPersistsAndTracks(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.SetDefaultScript(pipelinetest.Processing(50), pipelinetest.Completed(nil, nil))

	kv := store.NewMemoryStore()
	s := newSession(t, srv, kv)
	client := pipeline.NewClient(pipeline.ClientConfig{BaseURL: srv.BaseURL()})
	coord := upload.NewCoordinator(client, nil)

	jobID, err := s.Upload(context.Background(), coord, upload.NewBlob("call.mp3", []byte("audio")), nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	stored, ok, _ := kv.Get(context.Background(), JobIDKey)
	if !ok || stored != jobID {
		t.Fatalf("persisted id = %q (%v), want %q", stored, ok, jobID)
	}
	v, _ := s.Wait(context.Background())
	if v.JobID != jobID || v.Status != types.JobStatusCompleted {
		t.Fatalf("view = %+v", v)
	}
}

func TestUploadFailureLeavesPreviousIDAlone(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.Fail(pipelinetest.RouteStart, http.StatusServiceUnavailable)

	kv := store.NewMemoryStore()
	_ = kv.Set(context.Background(), JobIDKey, "job-old")
	s := newSession(t, srv, kv)
	log := &eventLog{}
	s.Subscribe(log.observe)

	client := pipeline.NewClient(pipeline.ClientConfig{BaseURL: srv.BaseURL()})
	jobID, err := s.Upload(context.Background(), upload.NewCoordinator(client, nil), upload.NewBlob("a.wav", []byte("x")), nil)
	if jobID != "" || !pipeline.IsKind(err, pipeline.KindPipelineTrigger) {
		t.Fatalf("Upload() = %q, %v", jobID, err)
	}
	if v := s.View(); v.Error != MsgUploadFailed || v.Loading {
		t.Fatalf("view = %+v", v)
	}
	if stored, _, _ := kv.Get(context.Background(), JobIDKey); stored != "job-old" {
		t.Fatalf("persisted id = %q, want job-old", stored)
	}
	if log.countFor("") != 1 {
		t.Fatal("expected one failure event")
	}
}

type recordingStore struct {
	*store.MemoryStore
	sets int
}

func (r *recordingStore) Set(ctx context.Context, key, value string) error {
	r.sets++
	return r.MemoryStore.Set(ctx, key, value)
}

func TestResume(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.AddJob("job-9", pipelinetest.Completed(nil, nil))

	kv := &recordingStore{MemoryStore: store.NewMemoryStore()}
	s := newSession(t, srv, kv)
	if _, err := s.Resume(context.Background()); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Resume() on empty store = %v, want ErrNoJob", err)
	}

	_ = kv.MemoryStore.Set(context.Background(), JobIDKey, "job-9")
	jobID, err := s.Resume(context.Background())
	if err != nil || jobID != "job-9" {
		t.Fatalf("Resume() = %q, %v", jobID, err)
	}
	if kv.sets != 0 {
		t.Fatalf("Resume rewrote the store %d times", kv.sets)
	}
	v, _ := s.Wait(context.Background())
	if v.Status != types.JobStatusCompleted {
		t.Fatalf("status = %q", v.Status)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	srv := pipelinetest.NewServer()
	defer srv.Close()
	srv.AddJob("job-1", pipelinetest.Processing(5))

	s := newSession(t, srv, store.NewMemoryStore())
	log := &eventLog{}
	s.Subscribe(log.observe)
	_ = s.Attach(context.Background(), "job-1")
	waitFor(t, func() bool { return log.countFor("job-1") >= 1 })

	s.Close()
	seen := log.countFor("job-1")
	time.Sleep(40 * time.Millisecond)
	if log.countFor("job-1") != seen {
		t.Fatal("events delivered after Close")
	}
	if s.View().Polling {
		t.Fatal("view still polling after Close")
	}
}

func TestAttachRejectsEmptyID(t *testing.T) {
	s := New(Options{})
	if err := s.Attach(context.Background(), ""); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Attach(\"\") = %v, want ErrNoJob", err)
	}
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrNoJob) {
		t.Fatalf("Wait() without job = %v, want ErrNoJob", err)
	}
}
