package main

import (
	"context"
	"log/slog"
)

type pollerRunner interface {
	Run(ctx context.Context) error
}

// RunTrackerWorker runs the refresh schedule and the admin HTTP server until
// ctx is done or one of them fails.
func RunTrackerWorker(ctx context.Context, log *slog.Logger, p pollerRunner, httpOpts workerHTTPOpts) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, log, httpOpts)
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- p.Run(ctx)
	}()

	select {
	case err := <-pollErr:
		cancel()
		<-httpErr
		return err
	case err := <-httpErr:
		cancel()
		<-pollErr
		return err
	}
}
