// Package tracking refreshes cached carrier data for deliveries.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/metrics"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

// StalenessWindow is how long a cached entry is considered fresh.
const StalenessWindow = 30 * time.Minute

// PackageUpdater applies a functional update to the shared package map.
// fn receives the latest map and returns the new one.
type PackageUpdater interface {
	Update(ctx context.Context, fn func(models.PackageMap) models.PackageMap) error
}

type CarrierLookup interface {
	Get(key string) (carrier.Carrier, bool)
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Notification is the single failure report of one refresh.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	Errors  []string  `json:"errors"`
	At      time.Time `json:"at"`
}

type Report struct {
	Refreshed    int                      `json:"refreshed"`
	Skipped      int                      `json:"skipped"`
	Errors       []*trackerr.TrackingError `json:"-"`
	Summary      trackerr.ErrorSummary    `json:"summary"`
	Notification *Notification            `json:"notification,omitempty"`
}

type Refresher struct {
	carriers CarrierLookup
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time

	rl           RateLimiter
	defaultLimit int64
	limits       map[string]int64
}

func NewRefresher(carriers CarrierLookup, notifier Notifier) *Refresher {
	return &Refresher{
		carriers: carriers,
		notifier: notifier,
		log:      slog.Default(),
		now:      time.Now,
	}
}

func (r *Refresher) WithLogger(l *slog.Logger) *Refresher {
	if l != nil {
		r.log = l
	}
	return r
}

func (r *Refresher) WithClock(now func() time.Time) *Refresher {
	r.now = now
	return r
}

// WithRateLimiter guards carrier calls with a per-minute limit. perCarrier
// overrides defaultPerMinute for individual carrier keys. Zero disables.
func (r *Refresher) WithRateLimiter(rl RateLimiter, defaultPerMinute int64, perCarrier map[string]int64) *Refresher {
	r.rl = rl
	r.defaultLimit = defaultPerMinute
	r.limits = perCarrier
	return r
}

// Refresh fetches tracking for every active delivery whose cache entry is
// missing or stale (all of them when force is set) and writes results through
// store. Failures never abort the loop; they are reported once at the end.
func (r *Refresher) Refresh(
	ctx context.Context,
	force bool,
	deliveries []models.Delivery,
	packages models.PackageMap,
	store PackageUpdater,
	setLoading func(bool),
) (rep Report) {
	if deliveries == nil {
		return Report{}
	}

	if setLoading != nil {
		setLoading(true)
		defer setLoading(false)
	}

	started := time.Now()
	defer func() { metrics.RefreshDuration.Observe(time.Since(started).Seconds()) }()

	now := r.now().UTC()
	var texts []string

	for _, d := range deliveries {
		switch {
		case d.Archived:
			r.skip(&rep, "archived")
			continue
		case d.Debug:
			r.skip(&rep, "debug")
			continue
		}

		c, ok := r.carriers.Get(d.Carrier)
		if !ok {
			r.log.Debug("carrier not registered, skipping", "delivery_id", d.ID, "carrier", d.Carrier)
			r.skip(&rep, "unknown_carrier")
			continue
		}

		if cur, ok := packages[d.ID]; ok && !force && now.Sub(cur.LastUpdated) <= StalenessWindow {
			r.skip(&rep, "fresh")
			continue
		}

		if err := r.refreshOne(ctx, c, d, now, store); err != nil {
			te := trackerr.Categorize(err, d.Name)
			rep.Errors = append(rep.Errors, te)
			texts = append(texts, fmt.Sprintf("%s: %s", d.Name, err.Error()))
			metrics.CarrierCallsTotal.WithLabelValues(d.Carrier, string(te.Category)).Inc()
			metrics.RefreshErrorsTotal.WithLabelValues(string(te.Category)).Inc()
			continue
		}
		metrics.CarrierCallsTotal.WithLabelValues(d.Carrier, "ok").Inc()
		rep.Refreshed++
	}

	if len(texts) == 0 {
		return rep
	}

	rep.Summary = trackerr.SummarizeErrors(rep.Errors)
	n := r.notification(texts, rep.Summary, now)
	rep.Notification = &n

	if len(texts) > 1 {
		r.log.Error("tracking update errors", "count", len(texts), "errors", texts)
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, n); err != nil {
			r.log.Warn("send refresh notification", "error", err.Error())
		}
	}
	return rep
}

func (r *Refresher) refreshOne(ctx context.Context, c carrier.Carrier, d models.Delivery, now time.Time, store PackageUpdater) error {
	if err := r.allow(ctx, d.Carrier); err != nil {
		return err
	}

	pkgs, err := c.UpdateTracking(ctx, d)
	if err != nil {
		return err
	}
	if pkgs == nil {
		pkgs = []models.Package{}
	}

	entry := models.TrackedPackages{Packages: pkgs, LastUpdated: now}
	return store.Update(ctx, func(latest models.PackageMap) models.PackageMap {
		next := latest.Clone()
		next[d.ID] = entry
		return next
	})
}

// allow charges the limiter bucket of the current minute, not of the minute
// the refresh started in.
func (r *Refresher) allow(ctx context.Context, carrierKey string) error {
	if r.rl == nil {
		return nil
	}
	limit := r.defaultLimit
	if l, ok := r.limits[carrierKey]; ok && l > 0 {
		limit = l
	}
	if limit <= 0 {
		return nil
	}

	now := r.now().UTC()
	minute := now.Truncate(time.Minute)
	key := fmt.Sprintf("rl:carrier:%s:%s", carrierKey, minute.Format("200601021504"))
	allowed, n, err := r.rl.Allow(ctx, key, limit, 70*time.Second)
	if err != nil {
		// Лимитер недоступен: не блокируем обновление.
		r.log.Warn("rate limiter", "carrier", carrierKey, "error", err.Error())
		return nil
	}
	if !allowed {
		r.log.Warn("rate limit exceeded", "carrier", carrierKey, "count", n)
		return trackerr.NewRateLimitError(
			fmt.Sprintf("%s: rate limit of %d calls per minute reached", carrierKey, limit),
			minute.Add(time.Minute).Sub(now),
		)
	}
	return nil
}

func (r *Refresher) skip(rep *Report, reason string) {
	rep.Skipped++
	metrics.RefreshSkippedTotal.WithLabelValues(reason).Inc()
}

func (r *Refresher) notification(texts []string, s trackerr.ErrorSummary, now time.Time) Notification {
	n := Notification{
		Title:  FailureTitle(len(texts)),
		Hint:   s.UserMessage,
		Errors: texts,
		At:     now,
	}
	if len(texts) == 1 {
		n.Message = texts[0]
	} else {
		n.Message = "Check logs for details"
	}
	return n
}

// FailureTitle is "Failed to Update 1 Delivery" or "Failed to Update N Deliveries".
func FailureTitle(n int) string {
	if n == 1 {
		return "Failed to Update 1 Delivery"
	}
	return fmt.Sprintf("Failed to Update %d Deliveries", n)
}
