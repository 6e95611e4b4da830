package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"sales-coach-go/internal/config"
	"sales-coach-go/internal/dashboard"
	"sales-coach-go/internal/export"
	"sales-coach-go/internal/logger"
	"sales-coach-go/internal/pipeline"
	"sales-coach-go/internal/render"
	"sales-coach-go/internal/session"
	"sales-coach-go/internal/store"
	"sales-coach-go/internal/supervisor"
	"sales-coach-go/internal/types"
	"sales-coach-go/internal/upload"
)

var (
	errUsage     = errors.New("usage")
	errJobFailed = errors.New("job failed")
)

type app struct {
	cfg    config.Config
	log    *logger.Logger
	coord  *upload.Coordinator
	sess   *session.Session
	sup    *supervisor.Supervisor
	closer io.Closer
	out    io.Writer
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	kv, closer, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	client := pipeline.NewClient(pipeline.ClientConfig{
		BaseURL:         cfg.APIBase,
		SlotTimeout:     cfg.SlotTimeout,
		TriggerTimeout:  cfg.TriggerTimeout,
		StatusTimeout:   cfg.StatusTimeout,
		TransferTimeout: cfg.TransferTimeout,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		Logger:          log.Entry,
	})
	sess := session.New(session.Options{
		Store:        kv,
		Fetcher:      client,
		PollInterval: cfg.PollInterval,
		PollMaxTicks: cfg.PollMaxTicks,
		Logger:       log.Entry,
	})

	log.WithFields(logrus.Fields{
		"api_base":      cfg.APIBase,
		"state_backend": cfg.StateBackend,
		"poll_interval": cfg.PollInterval.String(),
	}).Debug("client configured")

	return &app{
		cfg:    cfg,
		log:    log,
		coord:  upload.NewCoordinator(client, log.Entry),
		sess:   sess,
		sup:    supervisor.New(log.Entry),
		closer: closer,
		out:    os.Stdout,
	}, nil
}

func (a *app) Close() {
	a.sess.Close()
	if err := a.closer.Close(); err != nil {
		a.log.WithError(err).Warn("closing state store")
	}
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "follow the job until it finishes")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	jobID, err := a.sess.Upload(ctx, a.coord, f, func(pct int) {
		fmt.Fprintf(os.Stderr, "\ruploading %3d%%", pct)
		if pct == 100 {
			fmt.Fprintln(os.Stderr)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, jobID)

	if !*watch {
		return nil
	}
	return a.follow(ctx)
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil || fs.NArg() > 1 {
		return errUsage
	}
	if err := a.track(ctx, fs.Arg(0)); err != nil {
		return err
	}
	return a.follow(ctx)
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	jobID := fs.String("job", "", "job id (default: the persisted one)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	if err := a.track(ctx, *jobID); err != nil {
		return err
	}
	v, err := a.sess.Wait(ctx)
	if err != nil {
		return err
	}
	if err := export.Save(fs.Arg(0), v); err != nil {
		return err
	}
	a.log.WithField("path", fs.Arg(0)).WithField("job_id", v.JobID).Info("workbook written")
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.DashboardAddr, "listen address")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return errUsage
	}

	if jobID, err := a.sess.Resume(ctx); err == nil {
		a.log.WithField("job_id", jobID).Info("resumed persisted job")
	} else if !errors.Is(err, session.ErrNoJob) {
		a.log.WithError(err).Warn("could not resume persisted job")
	}

	h := dashboard.NewHandler(a.sess, a.coord, a.log)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      dashboard.New(h, a.sup, a.cfg.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", *addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// track attaches jobID, or resumes the persisted job when jobID is empty.
func (a *app) track(ctx context.Context, jobID string) error {
	if jobID != "" {
		return a.sess.Attach(ctx, jobID)
	}
	if _, err := a.sess.Resume(ctx); err != nil {
		if errors.Is(err, session.ErrNoJob) {
			return errors.New("no job id given and none persisted")
		}
		return err
	}
	return nil
}

// follow prints a status line per event until the job settles, then renders
// the final view.
func (a *app) follow(ctx context.Context) error {
	unsubscribe := a.sess.Subscribe(func(ev session.Event) {
		_ = a.sup.Run("status line", func() error {
			if ev.Err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", ev.JobID, ev.Err)
				return nil
			}
			fmt.Fprintf(os.Stderr, "[%s] %s %d%%\n", ev.JobID, ev.Snapshot.Status, ev.Snapshot.ProgressPercentage)
			return nil
		})
	})
	defer unsubscribe()

	v, err := a.sess.Wait(ctx)
	if err != nil {
		return err
	}
	if err := a.sup.Run("render", func() error { return render.View(a.out, v) }); err != nil {
		return err
	}
	if v.Error != "" {
		return errors.New(v.Error)
	}
	if v.Status == types.JobStatusFailed {
		return errJobFailed
	}
	return nil
}
