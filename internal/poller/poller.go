// Package poller tracks one pipeline job by reading its status on a fixed
// interval until it reaches a terminal state, fails, or is stopped.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/types"
)

// DefaultInterval is the pause between the end of one read and the start of
// the next.
const DefaultInterval = 3 * time.Second

var (
	ErrNotIdle   = errors.New("poller: already started or stopped")
	ErrTickLimit = errors.New("poller: tick limit reached before a terminal status")
)

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher reads one status snapshot. *pipeline.Client implements it.
type Fetcher interface {
	Status(ctx context.Context, jobID string) (types.Snapshot, error)
}

type Options struct {
	Interval time.Duration
	// MaxTicks bounds the number of reads. Zero means unbounded.
	MaxTicks int
	Logger   *logrus.Entry
}

// Poller is single use: Idle -> Running -> Stopped.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	maxTicks int
	log      *logrus.Entry

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetcher Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		interval: opts.Interval,
		maxTicks: opts.MaxTicks,
		log:      logger.OrDiscard(opts.Logger).WithField("component", "poller"),
		done:     make(chan struct{}),
	}
}

// Start reads the status of jobID immediately and then once per interval.
// onSnapshot receives every successful read. onError is called at most once,
// after which the poller is stopped. Neither callback is invoked after the
// poller has observed a Stop.
func (p *Poller) Start(ctx context.Context, jobID string, onSnapshot func(types.Snapshot), onError func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Idle {
		return ErrNotIdle
	}
	ctx, cancel := context.WithCancel(ctx)
	p.state = Running
	p.cancel = cancel

	go p.loop(ctx, jobID, onSnapshot, onError)
	return nil
}

// Stop cancels any pending read or wait. It never blocks and may be called
// any number of times.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Stopped:
		return
	case Idle:
		close(p.done)
	case Running:
		p.cancel()
	}
	p.state = Stopped
}

// Done is closed once the poller has stopped and no callback is running.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context, jobID string, onSnapshot func(types.Snapshot), onError func(error)) {
	log := p.log.WithField("job_id", jobID)
	defer close(p.done)
	defer p.finish()

	schedule := p.schedule(ctx)
	for tick := 1; ; tick++ {
		snap, err := p.fetcher.Status(ctx, jobID)
		if ctx.Err() != nil {
			log.Debug("polling cancelled")
			return
		}
		if err != nil {
			log.WithField("error", err.Error()).WithField("tick", tick).Warn("status read failed")
			if onError != nil {
				onError(err)
			}
			return
		}

		log.WithFields(logrus.Fields{
			"tick":     tick,
			"status":   snap.Status,
			"progress": snap.ProgressPercentage,
		}).Debug("status read")
		if onSnapshot != nil {
			onSnapshot(snap)
		}
		if snap.Status.Terminal() {
			log.WithField("status", snap.Status).Info("job reached terminal status")
			return
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return
			}
			log.WithField("ticks", tick).Warn("polling gave up")
			if onError != nil {
				onError(&pipeline.Error{Kind: pipeline.KindStatusFetch, JobID: jobID, Err: ErrTickLimit})
			}
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug("polling cancelled")
			return
		case <-timer.C:
		}
	}
}

// schedule yields the wait after each read, Stop once MaxTicks reads are done.
func (p *Poller) schedule(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxTicks > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.maxTicks-1))
	}
	return backoff.WithContext(b, ctx)
}

func (p *Poller) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running {
		p.cancel()
		p.state = Stopped
	}
}
