package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrismessina/delivery-tracker/config"
	deliveriesapi "github.com/chrismessina/delivery-tracker/internal/api/deliveries_api"
	"github.com/chrismessina/delivery-tracker/internal/app"
	"github.com/chrismessina/delivery-tracker/internal/broker/kafka"
	"github.com/chrismessina/delivery-tracker/internal/platform/logger"
)

type trackerAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	opts    trackerAPIOpts
	app     *app.App
	handler http.Handler
	cons    consumers
	closers []func() error
}

func mustBootstrapTrackerAPI() *trackerAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log := logger.New(logger.Options{
		Env:          cfg.Log.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "tracker-api",
	})
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a, err := app.New(ctx, cfg, log, app.DefaultFactories())
	if err != nil {
		cancel()
		panic(err)
	}

	api := deliveriesapi.New(a.Service, a.Engine, a.Packages, a.Poller, a.Inbox).WithLogger(log)

	out := &trackerAPIApp{
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		opts:    trackerAPIOpts{httpAddr: cfg.Tracker.APIAddr},
		app:     a,
		handler: deliveriesapi.NewRouter(api, cfg.Tracker.SwaggerPath),
	}

	if cfg.Kafka.Enabled() {
		notes := kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.NotificationsTopic, cfg.Tracker.KafkaConsumerGroup)
		refreshes := kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.RefreshesTopic, cfg.Tracker.KafkaConsumerGroup)
		out.cons = consumers{notifications: notes, refreshes: refreshes}
		out.closers = append(out.closers, notes.Close, refreshes.Close)
	}
	return out
}

func (a *trackerAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		_ = c()
	}
	if a.app != nil {
		a.app.Close()
	}
	_ = logger.Close(a.log)
}

func (a *trackerAPIApp) Run() error {
	return runTrackerAPI(a.ctx, a.log, a.opts, a.handler, a.app.Inbox, a.cons)
}
