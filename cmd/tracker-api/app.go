package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/broker/kafka"
	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/notify"
)

type trackerAPIOpts struct {
	httpAddr string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// consumers feed the inbox; nil entries are skipped.
type consumers struct {
	notifications kafkaConsumer
	refreshes     kafkaConsumer
}

func runTrackerAPI(ctx context.Context, log *slog.Logger, opts trackerAPIOpts, handler http.Handler, inbox *notify.Inbox, cons consumers) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	if cons.notifications != nil {
		go func() {
			log.Info("kafka consumer started", "stream", "notifications")
			err := cons.notifications.Consume(ctx, kafka.JSONHandler(log, func(m messages.RefreshFailed) error {
				inbox.Add(m)
				return nil
			}))
			if err != nil && ctx.Err() == nil {
				log.Error("notifications consumer stopped", "error", err.Error())
			}
		}()
	}
	if cons.refreshes != nil {
		go func() {
			log.Info("kafka consumer started", "stream", "refreshes")
			err := cons.refreshes.Consume(ctx, kafka.JSONHandler(log, func(m messages.RefreshCompleted) error {
				inbox.SetLastRefresh(m)
				return nil
			}))
			if err != nil && ctx.Err() == nil {
				log.Error("refreshes consumer stopped", "error", err.Error())
			}
		}()
	}

	return serveHTTP(ctx, log, lis, handler)
}

func serveHTTP(ctx context.Context, log *slog.Logger, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
