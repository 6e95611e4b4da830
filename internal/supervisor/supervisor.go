// Package supervisor contains panics raised by presentation code. The first
// panic latches a crashed state that only a process restart clears.
package supervisor

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/pipeline"
)

// Notice is what users see once the supervisor has latched.
const Notice = "The coach view crashed. Restart the process to continue."

type Supervisor struct {
	log *logrus.Entry

	mu      sync.Mutex
	failure error
}

func New(log *logrus.Entry) *Supervisor {
	return &Supervisor{log: logger.OrDiscard(log).WithField("component", "supervisor")}
}

// Run calls fn unless a crash is already latched. A panic in fn is
// recovered, logged and returned as an unexpected_failure error.
func (s *Supervisor) Run(name string, fn func() error) (err error) {
	if failure := s.Failure(); failure != nil {
		return failure
	}
	defer func() {
		if r := recover(); r != nil {
			err = s.latch(name, r)
		}
	}()
	return fn()
}

func (s *Supervisor) Crashed() bool {
	return s.Failure() != nil
}

// Failure is the latched crash, or nil.
func (s *Supervisor) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Middleware answers every request with Notice once crashed, and turns a
// panicking handler into that state.
func (s *Supervisor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Crashed() {
			writeNotice(w)
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.latch(r.Method+" "+r.URL.Path, rec)
				writeNotice(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Supervisor) latch(name string, rec any) error {
	err := &pipeline.Error{Kind: pipeline.KindUnexpectedFailure, Err: fmt.Errorf("%s: panic: %v", name, rec)}

	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	latched := s.failure
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"where": name,
		"panic": fmt.Sprint(rec),
		"stack": string(debug.Stack()),
	}).Error("presentation crashed")
	return latched
}

func writeNotice(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintln(w, Notice)
}
