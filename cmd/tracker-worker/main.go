package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrismessina/delivery-tracker/config"
	"github.com/chrismessina/delivery-tracker/internal/app"
	"github.com/chrismessina/delivery-tracker/internal/platform/logger"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	log := logger.New(logger.Options{
		Env:          cfg.Log.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "tracker-worker",
	})
	defer func() { _ = logger.Close(log) }()
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log, app.DefaultFactories())
	if err != nil {
		panic(err)
	}
	defer a.Close()

	err = RunTrackerWorker(ctx, log, a.Poller, workerHTTPOpts{
		httpAddr:    cfg.Tracker.WorkerHTTPAddr,
		swaggerPath: os.Getenv("workerSwaggerPath"),
		poller:      a.Poller,
		ping:        a.Ping,
		cfg:         cfg,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
