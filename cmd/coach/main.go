package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sales-coach-go/internal/config"
	"sales-coach-go/internal/logger"
)

const usage = `usage: coach <command> [flags] [args]

commands:
  upload [-watch] <file>     submit a recording and start analysis
  watch [job-id]             follow a job (default: the persisted one)
  serve                      run the local dashboard API
  export [-job id] <out>     write the job as an xlsx workbook
`

func main() {
	// .env.local first so it overrides .env; the process env beats both.
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load env files: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	log := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Output:      os.Stderr,
	})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "upload":
		err = a.upload(ctx, args)
	case "watch":
		err = a.watch(ctx, args)
	case "serve":
		err = a.serve(ctx, args)
	case "export":
		err = a.export(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Component("cli").WithField("command", cmd).WithField("error", err.Error()).Error("command failed")
		a.Close()
		os.Exit(1)
	}
}
