// Package app wires config into stores, carriers, the refresher and the poller.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/chrismessina/delivery-tracker/config"
	"github.com/chrismessina/delivery-tracker/internal/broker/kafka"
	"github.com/chrismessina/delivery-tracker/internal/cache/rediscache"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/emulatorv1"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/fake"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/manual"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/track24http"
	"github.com/chrismessina/delivery-tracker/internal/notify"
	"github.com/chrismessina/delivery-tracker/internal/services/deliveries"
	"github.com/chrismessina/delivery-tracker/internal/services/poller"
	"github.com/chrismessina/delivery-tracker/internal/services/status"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
	"github.com/chrismessina/delivery-tracker/internal/storage/memstore"
	"github.com/chrismessina/delivery-tracker/internal/storage/pgdelivery"
)

const postgresWait = 60 * time.Second

type App struct {
	Config *config.Config
	Log    *slog.Logger

	Carriers  *carrier.Registry
	Engine    *status.Engine
	Packages  poller.PackageStore
	Service   *deliveries.Service
	Refresher *tracking.Refresher
	Poller    *poller.Poller
	Inbox     *notify.Inbox

	// nil when kafka is not configured
	Producer *kafka.Producer

	postgres *pgdelivery.Storage
	redis    *redis.Client
	closers  []func()
}

// Factories open external resources; tests replace them.
type Factories struct {
	OpenPostgres func(ctx context.Context, connString string) (*pgdelivery.Storage, error)
	NewRedis     func(cfg config.RedisConfig) *redis.Client
	NewProducer  func(cfg config.KafkaConfig) *kafka.Producer
}

func DefaultFactories() Factories {
	return Factories{
		OpenPostgres: func(ctx context.Context, connString string) (*pgdelivery.Storage, error) {
			return openPostgresWithRetry(ctx, connString, postgresWait)
		},
		NewRedis: func(cfg config.RedisConfig) *redis.Client {
			return rediscache.NewClient(cfg.Addr(), cfg.Password, cfg.DB)
		},
		NewProducer: func(cfg config.KafkaConfig) *kafka.Producer {
			return kafka.NewProducer(cfg.Brokers())
		},
	}
}

// New builds the application graph. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, f Factories) (a *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Carriers, err = NewRegistry(cfg.Carriers)
	if err != nil {
		return nil, err
	}
	log.Info("carriers registered", "keys", a.Carriers.Keys())

	a.Engine = status.NewEngine(a.Carriers)

	if cfg.Tracker.Storage == config.BackendPostgres || cfg.Tracker.PackageStore == config.BackendPostgres {
		a.postgres, err = f.OpenPostgres(ctx, cfg.Database.ConnString())
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		a.closers = append(a.closers, a.postgres.Close)
	}
	if cfg.Redis.Enabled() {
		a.redis = f.NewRedis(cfg.Redis)
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
	}

	var repo deliveries.Repository
	switch cfg.Tracker.Storage {
	case config.BackendPostgres:
		repo = a.postgres
	default:
		repo = memstore.NewDeliveries()
	}

	switch cfg.Tracker.PackageStore {
	case config.BackendPostgres:
		a.Packages = a.postgres.Packages()
	case config.BackendRedis:
		a.Packages = rediscache.NewPackageStore(a.redis, cfg.Redis.PackagesKey)
	default:
		a.Packages = memstore.NewPackages(nil)
	}
	log.Info("storage ready", "deliveries", cfg.Tracker.Storage, "packages", cfg.Tracker.PackageStore)

	a.Service = deliveries.New(repo, a.Packages, a.Carriers, a.Engine)
	a.Inbox = notify.NewInbox(cfg.Tracker.InboxSize)

	// With kafka the inbox is filled by the consumer, otherwise directly.
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Kafka.Enabled() {
		a.Producer = f.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, func() { _ = a.Producer.Close() })
		notifiers = append(notifiers, notify.NewBrokerNotifier(a.Producer, cfg.Kafka.NotificationsTopic))
	} else {
		notifiers = append(notifiers, a.Inbox)
	}

	a.Refresher = tracking.NewRefresher(a.Carriers, notifiers).WithLogger(log)
	if a.redis != nil {
		a.Refresher.WithRateLimiter(rediscache.NewRateLimiter(a.redis), cfg.Tracker.RateLimitPerMinute, carrierLimits(cfg.Carriers))
	}

	a.Poller = poller.New(a.Service, a.Packages, a.Refresher).
		WithSchedule(cfg.Tracker.RefreshSchedule).
		WithLogger(log)
	if a.Producer != nil {
		a.Poller.WithEvents(a.Producer, cfg.Kafka.RefreshesTopic)
	}

	return a, nil
}

// Ping checks external dependencies, used by readiness probes.
func (a *App) Ping(ctx context.Context) error {
	if a.postgres != nil {
		if err := a.postgres.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
	}
	return nil
}

// Close releases resources in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewRegistry builds carriers from config. Without any configured carrier a
// single deterministic "fake" carrier is registered for local runs.
func NewRegistry(cfgs []config.CarrierConfig) (*carrier.Registry, error) {
	if len(cfgs) == 0 {
		return carrier.NewRegistry(map[string]carrier.Carrier{"fake": fake.New("fake")}), nil
	}

	m := make(map[string]carrier.Carrier, len(cfgs))
	for _, cc := range cfgs {
		switch cc.Mode {
		case config.ModeFake:
			m[cc.Key] = fake.New(cc.Key)
		case config.ModeEmulator:
			m[cc.Key] = emulatorv1.New(cc.Key, cc.BaseURL, cc.APIKey, cc.TrackingURL)
		case config.ModeTrack24:
			m[cc.Key] = track24http.New(cc.BaseURL, cc.APIKey, cc.Domain)
		case config.ModeManual:
			m[cc.Key] = manual.New(cc.TrackingURL)
		default:
			return nil, fmt.Errorf("carrier %s: unknown mode %q", cc.Key, cc.Mode)
		}
	}
	return carrier.NewRegistry(m), nil
}

func carrierLimits(cfgs []config.CarrierConfig) map[string]int64 {
	out := make(map[string]int64)
	for _, cc := range cfgs {
		if cc.RateLimitPerMinute > 0 {
			out[cc.Key] = cc.RateLimitPerMinute
		}
	}
	return out
}

func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgdelivery.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdelivery.New(ctx, connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}
