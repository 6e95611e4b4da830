package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/pipeline/pipelinetest"
	"sales-coach-go/internal/types"
)

func newCoordinator(t *testing.T) (*Coordinator, *pipelinetest.Server) {
	t.Helper()
	srv := pipelinetest.NewServer()
	t.Cleanup(srv.Close)
	client := pipeline.NewClient(pipeline.ClientConfig{
		BaseURL:        srv.BaseURL(),
		SlotTimeout:    2 * time.Second,
		TriggerTimeout: 2 * time.Second,
	})
	return NewCoordinator(client, nil), srv
}

func TestInitiateSubmitsAndStarts(t *testing.T) {
	c, srv := newCoordinator(t)
	audio := bytes.Repeat([]byte("ID3"), 4096)

	var progress []int
	jobID, err := c.Initiate(context.Background(), NewBlob("Discovery Call.WAV", audio), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	body, contentType, ext, ok := srv.Upload(jobID)
	if !ok {
		t.Fatal("storage received nothing")
	}
	if !bytes.Equal(body, audio) {
		t.Fatalf("stored %d bytes, want %d", len(body), len(audio))
	}
	if contentType != "" {
		t.Fatalf("content type = %q, want none", contentType)
	}
	if ext != "wav" {
		t.Fatalf("extension = %q, want wav", ext)
	}
	if !srv.Started(jobID) {
		t.Fatal("pipeline was not started")
	}

	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v, want to end at 100", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("progress not strictly increasing: %v", progress)
		}
	}
}

func TestInitiateFromDisk(t *testing.T) {
	c, srv := newCoordinator(t)
	path := filepath.Join(t.TempDir(), "call.m4a")
	if err := os.WriteFile(path, []byte("ftypM4A "), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var last int
	jobID, err := c.Initiate(context.Background(), f, func(p int) { last = p })
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if _, _, ext, _ := srv.Upload(jobID); ext != "m4a" {
		t.Fatalf("extension = %q, want m4a", ext)
	}
	if last != 100 {
		t.Fatalf("last progress = %d, want 100", last)
	}
}

func TestInitiateFailuresYieldNoJobID(t *testing.T) {
	cases := []struct {
		name  string
		route pipelinetest.Route
		kind  pipeline.Kind
	}{
		{"slot", pipelinetest.RouteUpload, pipeline.KindUploadInit},
		{"transfer", pipelinetest.RouteTransfer, pipeline.KindUploadTransfer},
		{"trigger", pipelinetest.RouteStart, pipeline.KindPipelineTrigger},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, srv := newCoordinator(t)
			srv.Fail(tc.route, http.StatusForbidden)

			jobID, err := c.Initiate(context.Background(), NewBlob("a.mp3", []byte("abc")), nil)
			if jobID != "" {
				t.Fatalf("job id = %q, want none", jobID)
			}
			if !pipeline.IsKind(err, tc.kind) {
				t.Fatalf("kind = %q, want %q (err=%v)", pipeline.KindOf(err), tc.kind, err)
			}
		})
	}
}

func TestInitiateStopsAtFirstFailure(t *testing.T) {
	c, srv := newCoordinator(t)
	srv.Fail(pipelinetest.RouteUpload, http.StatusBadRequest)

	if _, err := c.Initiate(context.Background(), NewBlob("a.mp3", []byte("abc")), nil); err == nil {
		t.Fatal("expected an error")
	}
	if srv.Calls(pipelinetest.RouteTransfer) != 0 || srv.Calls(pipelinetest.RouteStart) != 0 {
		t.Fatalf("later steps ran: transfer=%d start=%d",
			srv.Calls(pipelinetest.RouteTransfer), srv.Calls(pipelinetest.RouteStart))
	}
}

type stubPipeline struct {
	steps    []string
	slotErr  error
	putErr   error
	startErr error
}

func (s *stubPipeline) RequestUploadSlot(_ context.Context, ext string) (types.UploadSlot, error) {
	s.steps = append(s.steps, "slot:"+ext)
	if s.slotErr != nil {
		return types.UploadSlot{}, s.slotErr
	}
	return types.UploadSlot{JobID: "job-1", UploadURL: "http://storage/put"}, nil
}

func (s *stubPipeline) Transfer(_ context.Context, _ string, body io.Reader, _ int64) error {
	s.steps = append(s.steps, "transfer")
	_, _ = io.Copy(io.Discard, body)
	return s.putErr
}

func (s *stubPipeline) StartJob(_ context.Context, jobID string) error {
	s.steps = append(s.steps, "start:"+jobID)
	return s.startErr
}

func TestInitiateOrdersSteps(t *testing.T) {
	stub := &stubPipeline{}
	jobID, err := NewCoordinator(stub, nil).Initiate(context.Background(), NewBlob("call", []byte("x")), nil)
	if err != nil || jobID != "job-1" {
		t.Fatalf("Initiate() = %q, %v", jobID, err)
	}
	want := []string{"slot:mp3", "transfer", "start:job-1"}
	if len(stub.steps) != len(want) {
		t.Fatalf("steps = %v, want %v", stub.steps, want)
	}
	for i := range want {
		if stub.steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", stub.steps, want)
		}
	}
}

func TestInitiateTagsUnclassifiedErrors(t *testing.T) {
	cause := errors.New("connection reset")
	stub := &stubPipeline{startErr: cause}

	jobID, err := NewCoordinator(stub, nil).Initiate(context.Background(), NewBlob("a.ogg", []byte("x")), nil)
	if jobID != "" {
		t.Fatalf("job id = %q, want none", jobID)
	}
	if !pipeline.IsKind(err, pipeline.KindPipelineTrigger) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want pipeline_trigger wrapping cause", err)
	}
}

func TestExtensionHint(t *testing.T) {
	cases := map[string]string{
		"call.mp3":             "mp3",
		"Call.WAV":             "wav",
		"archive.tar.gz":       "gz",
		"noext":                "mp3",
		"trailing.":            "mp3",
		"/tmp/v1.2/recording":  "mp3",
		"/tmp/v1.2/rec.webm":   "webm",
		"":                     "mp3",
	}
	for name, want := range cases {
		if got := ExtensionHint(name); got != want {
			t.Errorf("ExtensionHint(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestProgressSkippedWhenSizeUnknown(t *testing.T) {
	called := false
	r := newProgressReader(bytes.NewReader([]byte("abc")), -1, func(int) { called = true })
	_, _ = io.ReadAll(r)
	if called {
		t.Fatal("progress must not be reported for unknown size")
	}
}
