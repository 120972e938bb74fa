package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/status"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking/mocks"
	"github.com/chrismessina/delivery-tracker/internal/storage/memstore"
	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

type scriptedCarrier struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	pkgs  []models.Package
}

func (c *scriptedCarrier) UpdateTracking(ctx context.Context, d models.Delivery) ([]models.Package, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, d.ID)
	if err, ok := c.errs[d.ID]; ok {
		return nil, err
	}
	return c.pkgs, nil
}

func (c *scriptedCarrier) AbleToTrackRemotely() bool                 { return true }
func (c *scriptedCarrier) URLToTrackingWebpage(models.Delivery) string { return "" }

type failingStore struct{}

func (failingStore) Update(context.Context, func(models.PackageMap) models.PackageMap) error {
	return errors.New("redis: connection refused")
}

type RefresherSuite struct {
	suite.Suite

	now      time.Time
	carrier  *scriptedCarrier
	notifier *mocks.MockNotifier
	store    *memstore.Packages
	r        *tracking.Refresher
}

func (s *RefresherSuite) SetupTest() {
	s.now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	s.carrier = &scriptedCarrier{
		errs: map[string]error{},
		pkgs: []models.Package{{TrackingNumber: "T", Events: []models.TrackingEvent{{Status: models.TrackingStatusInTransit}}}},
	}
	s.notifier = mocks.NewMockNotifier(s.T())
	s.store = memstore.NewPackages(nil)

	reg := carrier.NewRegistry(map[string]carrier.Carrier{"ups": s.carrier})
	s.r = tracking.NewRefresher(reg, s.notifier).WithClock(func() time.Time { return s.now })
}

func (s *RefresherSuite) snapshot() models.PackageMap {
	m, err := s.store.Snapshot(context.Background())
	s.Require().NoError(err)
	return m
}

func (s *RefresherSuite) TestNilDeliveries_NoOp() {
	var loading []bool
	rep := s.r.Refresh(context.Background(), true, nil, nil, s.store, func(v bool) { loading = append(loading, v) })

	s.Require().Zero(rep)
	s.Require().Empty(loading)
	s.Require().Empty(s.carrier.calls)
}

func (s *RefresherSuite) TestLoadingSignals() {
	var loading []bool
	ds := []models.Delivery{{ID: "1", Name: "A", Carrier: "ups"}}
	s.r.Refresh(context.Background(), false, ds, nil, s.store, func(v bool) { loading = append(loading, v) })
	s.Require().Equal([]bool{true, false}, loading)
}

func (s *RefresherSuite) TestLoadingEndsOnPanic() {
	var loading []bool
	ds := []models.Delivery{{ID: "1", Name: "A", Carrier: "ups"}}
	panicky := panicStore{}

	s.Require().Panics(func() {
		s.r.Refresh(context.Background(), false, ds, nil, panicky, func(v bool) { loading = append(loading, v) })
	})
	s.Require().Equal([]bool{true, false}, loading)
}

func (s *RefresherSuite) TestSkipsArchivedDebugAndUnknownCarrier() {
	ds := []models.Delivery{
		{ID: "1", Name: "archived", Carrier: "ups", Archived: true},
		{ID: "2", Name: "debug", Carrier: "ups", Debug: true},
		{ID: "3", Name: "nowhere", Carrier: "dhl"},
		{ID: "4", Name: "ok", Carrier: "ups"},
	}
	rep := s.r.Refresh(context.Background(), true, ds, nil, s.store, nil)

	s.Require().Equal([]string{"4"}, s.carrier.calls)
	s.Require().Equal(1, rep.Refreshed)
	s.Require().Equal(3, rep.Skipped)
	s.Require().Nil(rep.Notification)
	s.notifier.AssertNotCalled(s.T(), "Notify", mock.Anything, mock.Anything)
}

func (s *RefresherSuite) TestStaleness() {
	ds := []models.Delivery{
		{ID: "fresh", Name: "fresh", Carrier: "ups"},
		{ID: "stale", Name: "stale", Carrier: "ups"},
		{ID: "new", Name: "new", Carrier: "ups"},
	}
	pm := models.PackageMap{
		"fresh": {Packages: []models.Package{}, LastUpdated: s.now.Add(-29 * time.Minute)},
		"stale": {Packages: []models.Package{}, LastUpdated: s.now.Add(-31 * time.Minute)},
	}

	rep := s.r.Refresh(context.Background(), false, ds, pm, s.store, nil)
	s.Require().Equal([]string{"stale", "new"}, s.carrier.calls)
	s.Require().Equal(2, rep.Refreshed)
	s.Require().Equal(1, rep.Skipped)
}

func (s *RefresherSuite) TestForceIgnoresStaleness() {
	ds := []models.Delivery{{ID: "fresh", Name: "fresh", Carrier: "ups"}}
	pm := models.PackageMap{"fresh": {Packages: []models.Package{}, LastUpdated: s.now.Add(-time.Minute)}}

	rep := s.r.Refresh(context.Background(), true, ds, pm, s.store, nil)
	s.Require().Equal([]string{"fresh"}, s.carrier.calls)
	s.Require().Equal(1, rep.Refreshed)
	s.Require().Equal(s.now, s.snapshot()["fresh"].LastUpdated)
}

func (s *RefresherSuite) TestSuccessTouchesOnlyOwnKey() {
	other := models.TrackedPackages{Packages: []models.Package{{TrackingNumber: "OTHER"}}, LastUpdated: s.now.Add(-time.Hour)}
	s.Require().NoError(s.store.Update(context.Background(), func(m models.PackageMap) models.PackageMap {
		m["other"] = other
		return m
	}))

	ds := []models.Delivery{{ID: "1", Name: "A", Carrier: "ups"}}
	s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	snap := s.snapshot()
	s.Require().Equal(other, snap["other"])
	s.Require().Equal(s.carrier.pkgs, snap["1"].Packages)
	s.Require().Equal(s.now, snap["1"].LastUpdated)
}

func (s *RefresherSuite) TestPartialFailure_SingleNotification() {
	ds := []models.Delivery{
		{ID: "a", Name: "A", Carrier: "ups"},
		{ID: "b", Name: "B", Carrier: "ups"},
		{ID: "c", Name: "C", Carrier: "ups"},
	}
	s.carrier.errs["b"] = errors.New("HTTP 401 Unauthorized")

	s.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n tracking.Notification) bool {
		return n.Title == "Failed to Update 1 Delivery" && n.Message == "B: HTTP 401 Unauthorized"
	})).Return(nil).Once()

	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	s.Require().Equal([]string{"a", "b", "c"}, s.carrier.calls)
	s.Require().Equal(2, rep.Refreshed)
	s.Require().Len(rep.Errors, 1)
	s.Require().Equal(trackerr.CategoryAuthentication, rep.Errors[0].Category)
	s.Require().Equal("B", rep.Errors[0].DeliveryName)

	snap := s.snapshot()
	s.Require().Contains(snap, "a")
	s.Require().Contains(snap, "c")
	s.Require().NotContains(snap, "b")
}

func (s *RefresherSuite) TestManyFailures_GenericMessage() {
	ds := []models.Delivery{
		{ID: "a", Name: "A", Carrier: "ups"},
		{ID: "b", Name: "B", Carrier: "ups"},
	}
	s.carrier.errs["a"] = errors.New("429 Too Many Requests")
	s.carrier.errs["b"] = errors.New("ECONNREFUSED")

	var got tracking.Notification
	s.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(tracking.Notification) }).
		Return(nil).Once()

	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	s.Require().Equal("Failed to Update 2 Deliveries", got.Title)
	s.Require().Equal("Check logs for details", got.Message)
	s.Require().Equal([]string{"A: 429 Too Many Requests", "B: ECONNREFUSED"}, got.Errors)
	s.Require().Equal("Network issues detected. Check your connection and try again.", got.Hint)
	s.Require().Equal(2, rep.Summary.TotalErrors)
}

func (s *RefresherSuite) TestStoreFailureCountsAsFailure() {
	ds := []models.Delivery{{ID: "a", Name: "A", Carrier: "ups"}}
	s.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	rep := s.r.Refresh(context.Background(), false, ds, nil, failingStore{}, nil)
	s.Require().Zero(rep.Refreshed)
	s.Require().Len(rep.Errors, 1)
	s.Require().Equal(trackerr.CategoryNetwork, rep.Errors[0].Category)
}

func (s *RefresherSuite) TestNotifierErrorIsSwallowed() {
	ds := []models.Delivery{{ID: "a", Name: "A", Carrier: "ups"}}
	s.carrier.errs["a"] = errors.New("boom")
	s.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("kafka down")).Once()

	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)
	s.Require().NotNil(rep.Notification)
	s.Require().Equal(trackerr.CategoryUnknown, rep.Errors[0].Category)
}

func (s *RefresherSuite) TestRateLimiterDenies() {
	rl := mocks.NewMockRateLimiter(s.T())
	rl.On("Allow", mock.Anything, "rl:carrier:ups:202506101200", int64(5), 70*time.Second).
		Return(false, int64(6), nil).Once()
	s.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	s.r.WithRateLimiter(rl, 10, map[string]int64{"ups": 5})
	ds := []models.Delivery{{ID: "a", Name: "A", Carrier: "ups"}}
	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	s.Require().Empty(s.carrier.calls)
	s.Require().Len(rep.Errors, 1)
	s.Require().Equal(trackerr.CategoryRateLimit, rep.Errors[0].Category)
	s.Require().Equal(time.Minute, rep.Errors[0].RetryAfter)
}

func (s *RefresherSuite) TestRateLimiterUsesCurrentMinute() {
	started := time.Date(2025, 6, 10, 12, 0, 50, 0, time.UTC)
	ticks := []time.Time{started, started.Add(20 * time.Second)}
	s.r.WithClock(func() time.Time {
		t := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return t
	})

	rl := mocks.NewMockRateLimiter(s.T())
	rl.On("Allow", mock.Anything, "rl:carrier:ups:202506101201", int64(10), 70*time.Second).
		Return(true, int64(1), nil).Once()

	s.r.WithRateLimiter(rl, 10, nil)
	ds := []models.Delivery{{ID: "a", Name: "A", Carrier: "ups"}}
	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	s.Require().Equal(1, rep.Refreshed)
	s.Require().Equal(started, s.snapshot()["a"].LastUpdated)
}

func (s *RefresherSuite) TestEndToEnd_InTransit() {
	ds := []models.Delivery{{ID: "D1", Name: "Ноутбук", Carrier: "ups"}}

	rep := s.r.Refresh(context.Background(), false, ds, models.PackageMap{}, s.store, nil)
	s.Require().Equal(1, rep.Refreshed)
	s.Require().Nil(rep.Notification)

	entry, ok := s.snapshot()["D1"]
	s.Require().True(ok)
	s.Require().Equal(s.carrier.pkgs, entry.Packages)
	s.Require().Equal(s.now, entry.LastUpdated)

	got := status.Classify(entry.Packages, s.now)
	s.Require().Equal(status.InTransit, got.Status)
	s.Require().Equal("In transit", got.Label)
}

func (s *RefresherSuite) TestRateLimiterErrorFailsOpen() {
	rl := mocks.NewMockRateLimiter(s.T())
	rl.On("Allow", mock.Anything, mock.Anything, int64(10), mock.Anything).
		Return(false, int64(0), errors.New("redis down")).Once()

	s.r.WithRateLimiter(rl, 10, nil)
	ds := []models.Delivery{{ID: "a", Name: "A", Carrier: "ups"}}
	rep := s.r.Refresh(context.Background(), false, ds, nil, s.store, nil)

	s.Require().Equal(1, rep.Refreshed)
}

type panicStore struct{}

func (panicStore) Update(context.Context, func(models.PackageMap) models.PackageMap) error {
	panic("store exploded")
}

func TestRefresherSuite(t *testing.T) {
	suite.Run(t, new(RefresherSuite))
}
