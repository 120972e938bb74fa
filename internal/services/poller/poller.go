package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/metrics"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
)

const DefaultSchedule = "@every 5m"

// ErrBusy is returned by RunNow while another refresh is in progress.
var ErrBusy = errors.New("refresh already running")

type DeliverySource interface {
	All(ctx context.Context) ([]models.Delivery, error)
}

type PackageStore interface {
	tracking.PackageUpdater
	Snapshot(ctx context.Context) (models.PackageMap, error)
}

type Refresher interface {
	Refresh(ctx context.Context, force bool, deliveries []models.Delivery, packages models.PackageMap,
		store tracking.PackageUpdater, setLoading func(bool)) tracking.Report
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// Poller runs refreshes on a cron schedule and on demand. Runs never overlap.
type Poller struct {
	deliveries DeliverySource
	packages   PackageStore
	refresher  Refresher

	events Publisher
	topic  string

	schedule string
	log      *slog.Logger

	running   sync.Mutex
	loading   atomic.Bool
	triggerCh chan bool

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRuns           atomic.Int64
	totalRefreshed      atomic.Int64
	totalSkipped        atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(deliveries DeliverySource, packages PackageStore, refresher Refresher) *Poller {
	return &Poller{
		deliveries:        deliveries,
		packages:          packages,
		refresher:         refresher,
		schedule:          DefaultSchedule,
		log:               slog.Default(),
		triggerCh:         make(chan bool, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSchedule(spec string) *Poller {
	if spec != "" {
		p.schedule = spec
	}
	return p
}

func (p *Poller) WithLogger(l *slog.Logger) *Poller {
	if l != nil {
		p.log = l
	}
	return p
}

// WithEvents publishes a messages.RefreshCompleted after every run.
func (p *Poller) WithEvents(pub Publisher, topic string) *Poller {
	p.events = pub
	p.topic = topic
	return p
}

// Trigger asks Run for an immediate refresh (best-effort, non-blocking).
// A pending forced trigger is not downgraded.
func (p *Poller) Trigger(force bool) {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- force:
	default:
		if force {
			select {
			case <-p.triggerCh:
			default:
			}
			select {
			case p.triggerCh <- true:
			default:
			}
		}
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	Loading        bool       `json:"loading"`
	TotalRuns      int64      `json:"totalRuns"`
	TotalRefreshed int64      `json:"totalRefreshed"`
	TotalSkipped   int64      `json:"totalSkipped"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		Loading:        p.loading.Load(),
		TotalRuns:      p.totalRuns.Load(),
		TotalRefreshed: p.totalRefreshed.Load(),
		TotalSkipped:   p.totalSkipped.Load(),
		TotalErrors:    p.totalErrors.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run blocks until ctx is done, refreshing on schedule and on Trigger.
func (p *Poller) Run(ctx context.Context) error {
	cl := cronLogger{logger: p.log.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(p.schedule, func() { p.runLogged(ctx, false) }); err != nil {
		return errors.Wrapf(err, "parse schedule %q", p.schedule)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case force := <-p.triggerCh:
			p.runTriggered(ctx, force)
		}
	}
}

// RunNow refreshes synchronously. It returns ErrBusy instead of waiting when
// a run is already in progress.
func (p *Poller) RunNow(ctx context.Context, force bool) (tracking.Report, error) {
	if !p.running.TryLock() {
		return tracking.Report{}, ErrBusy
	}
	defer p.running.Unlock()
	return p.runOnce(ctx, force)
}

func (p *Poller) runLogged(ctx context.Context, force bool) {
	if _, err := p.RunNow(ctx, force); err != nil {
		if errors.Is(err, ErrBusy) {
			p.log.Debug("refresh skipped, previous still running")
			return
		}
		p.log.Error("refresh", "error", err.Error())
	}
}

// runTriggered waits for a run in progress instead of dropping the trigger:
// the caller has already been told the refresh is coming.
func (p *Poller) runTriggered(ctx context.Context, force bool) {
	p.running.Lock()
	defer p.running.Unlock()
	if ctx.Err() != nil {
		return
	}
	if _, err := p.runOnce(ctx, force); err != nil {
		p.log.Error("refresh", "error", err.Error())
	}
}

func (p *Poller) runOnce(ctx context.Context, force bool) (tracking.Report, error) {
	started := time.Now().UTC()
	p.lastCycleUnixNano.Store(started.UnixNano())
	p.totalRuns.Add(1)

	ds, err := p.deliveries.All(ctx)
	if err != nil {
		p.setLastError(err)
		return tracking.Report{}, errors.Wrap(err, "list deliveries")
	}
	pm, err := p.packages.Snapshot(ctx)
	if err != nil {
		p.setLastError(err)
		return tracking.Report{}, errors.Wrap(err, "snapshot packages")
	}
	if ds == nil {
		ds = []models.Delivery{}
	}
	metrics.ActiveDeliveries.Set(float64(countActive(ds)))

	rep := p.refresher.Refresh(ctx, force, ds, pm, p.packages, p.loading.Store)

	p.totalRefreshed.Add(int64(rep.Refreshed))
	p.totalSkipped.Add(int64(rep.Skipped))
	p.totalErrors.Add(int64(len(rep.Errors)))
	if rep.Notification != nil {
		p.setLastError(errors.New(rep.Notification.Message))
	}

	p.log.Info("refresh done",
		"force", force,
		"refreshed", rep.Refreshed,
		"skipped", rep.Skipped,
		"failed", len(rep.Errors),
		"took", time.Since(started).String(),
	)
	p.publish(ctx, force, rep, started)
	return rep, nil
}

func (p *Poller) publish(ctx context.Context, force bool, rep tracking.Report, started time.Time) {
	if p.events == nil {
		return
	}
	msg := messages.RefreshCompleted{
		RunID:     uuid.NewString(),
		Force:     force,
		Refreshed: rep.Refreshed,
		Skipped:   rep.Skipped,
		Failed:    len(rep.Errors),
		StartedAt: started,
		Duration:  time.Since(started).Seconds(),
	}
	if err := p.events.PublishJSON(ctx, p.topic, msg.RunID, msg); err != nil {
		p.log.Warn("publish refresh completed", "error", err.Error())
	}
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func countActive(ds []models.Delivery) int {
	n := 0
	for _, d := range ds {
		if !d.Archived {
			n++
		}
	}
	return n
}

// cronLogger адаптер cron.Logger -> slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
