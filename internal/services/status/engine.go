package status

import (
	"sort"
	"strings"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

// RemoteChecker reports whether a carrier fetches tracking itself.
type RemoteChecker interface {
	CanTrackRemotely(carrier string) bool
}

// Engine applies per-delivery overrides on top of Classify and does the
// grouping and ordering for presentation.
type Engine struct {
	carriers RemoteChecker
	now      func() time.Time
}

func NewEngine(carriers RemoteChecker) *Engine {
	return &Engine{carriers: carriers, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// DeliveryStatus classifies one delivery. Carriers that cannot track
// remotely rely on the manual flag only.
func (e *Engine) DeliveryStatus(d models.Delivery, packages models.PackageMap) Classification {
	return e.statusAt(d, packages, e.now())
}

func (e *Engine) statusAt(d models.Delivery, packages models.PackageMap, now time.Time) Classification {
	c := Classify(packages.PackagesOf(d.ID), now)
	if e.carriers == nil || e.carriers.CanTrackRemotely(d.Carrier) {
		return c
	}
	if d.ManualMarkedAsDelivered {
		return Classification{Status: Delivered, Label: labelDelivered}
	}
	if c.Status == Delivered {
		return Classification{Status: Unknown, Label: labelUnknown}
	}
	return c
}

type Groups struct {
	ArrivingToday []models.Delivery `json:"arriving_today"`
	InTransit     []models.Delivery `json:"in_transit"`
	Delivered     []models.Delivery `json:"delivered"`
	Unknown       []models.Delivery `json:"unknown"`
}

// GroupByStatus partitions deliveries into buckets keeping input order.
// All deliveries are classified against the same instant.
func (e *Engine) GroupByStatus(deliveries []models.Delivery, packages models.PackageMap) Groups {
	return e.groupAt(deliveries, packages, e.now())
}

func (e *Engine) groupAt(deliveries []models.Delivery, packages models.PackageMap, now time.Time) Groups {
	g := Groups{
		ArrivingToday: []models.Delivery{},
		InTransit:     []models.Delivery{},
		Delivered:     []models.Delivery{},
		Unknown:       []models.Delivery{},
	}
	for _, d := range deliveries {
		switch e.statusAt(d, packages, now).Status {
		case ArrivingToday:
			g.ArrivingToday = append(g.ArrivingToday, d)
		case InTransit:
			g.InTransit = append(g.InTransit, d)
		case Delivered:
			g.Delivered = append(g.Delivered, d)
		default:
			g.Unknown = append(g.Unknown, d)
		}
	}
	return g
}

var priority = map[Status]int{
	ArrivingToday: 0,
	InTransit:     1,
	Unknown:       2,
	Delivered:     3,
}

// SortTracking returns a new slice ordered by status priority, then by
// case-insensitive name. Ties keep input order.
func (e *Engine) SortTracking(deliveries []models.Delivery, packages models.PackageMap) []models.Delivery {
	type item struct {
		d    models.Delivery
		prio int
		name string
	}
	now := e.now()
	items := make([]item, len(deliveries))
	for i, d := range deliveries {
		items[i] = item{
			d:    d,
			prio: priority[e.statusAt(d, packages, now).Status],
			name: strings.ToLower(d.Name),
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].prio != items[j].prio {
			return items[i].prio < items[j].prio
		}
		return items[i].name < items[j].name
	})

	out := make([]models.Delivery, len(items))
	for i, it := range items {
		out[i] = it.d
	}
	return out
}

const (
	summaryInTransitLimit = 5
	summaryDeliveredLimit = 3
)

type SummaryItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Carrier string `json:"carrier"`
	Label   string `json:"label"`
}

// Summary is the compact view for a menu or a status line.
type Summary struct {
	Count         int           `json:"count"`
	ArrivingToday []SummaryItem `json:"arriving_today"`
	InTransit     []SummaryItem `json:"in_transit"`
	MoreInTransit int           `json:"more_in_transit"`
	Delivered     []SummaryItem `json:"delivered"`
}

func (e *Engine) Summarize(deliveries []models.Delivery, packages models.PackageMap) Summary {
	now := e.now()
	g := e.groupAt(deliveries, packages, now)

	s := Summary{
		Count:         len(g.ArrivingToday) + len(g.InTransit),
		ArrivingToday: e.items(g.ArrivingToday, packages, now, len(g.ArrivingToday)),
		InTransit:     e.items(g.InTransit, packages, now, summaryInTransitLimit),
		Delivered:     e.items(g.Delivered, packages, now, summaryDeliveredLimit),
	}
	if n := len(g.InTransit) - summaryInTransitLimit; n > 0 {
		s.MoreInTransit = n
	}
	return s
}

func (e *Engine) items(ds []models.Delivery, packages models.PackageMap, now time.Time, limit int) []SummaryItem {
	if len(ds) > limit {
		ds = ds[:limit]
	}
	out := make([]SummaryItem, 0, len(ds))
	for _, d := range ds {
		out = append(out, SummaryItem{
			ID:      d.ID,
			Name:    d.Name,
			Carrier: d.Carrier,
			Label:   e.statusAt(d, packages, now).Label,
		})
	}
	return out
}

// FullyDelivered reports whether every package of a delivery has been
// delivered. Manual carriers use the manual flag.
func (e *Engine) FullyDelivered(d models.Delivery, packages models.PackageMap) bool {
	if e.carriers != nil && !e.carriers.CanTrackRemotely(d.Carrier) {
		return d.ManualMarkedAsDelivered
	}
	pkgs := packages.PackagesOf(d.ID)
	if len(pkgs) == 0 {
		return false
	}
	for _, p := range pkgs {
		if !p.HasEvent(models.TrackingStatusDelivered) {
			return false
		}
	}
	return true
}
