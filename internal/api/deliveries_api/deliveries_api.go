// Package deliveries_api serves deliveries, refresh and notifications over
// HTTP+JSON.
package deliveries_api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/deliveries"
	"github.com/chrismessina/delivery-tracker/internal/services/poller"
	"github.com/chrismessina/delivery-tracker/internal/services/status"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
)

const maxBodyBytes = 1 << 20

type PackageSnapshotter interface {
	Snapshot(ctx context.Context) (models.PackageMap, error)
}

type Refresher interface {
	RunNow(ctx context.Context, force bool) (tracking.Report, error)
}

type Inbox interface {
	Latest(limit int) []messages.RefreshFailed
	LastRefresh() *messages.RefreshCompleted
}

type DeliveriesAPI struct {
	svc       *deliveries.Service
	engine    *status.Engine
	packages  PackageSnapshotter
	refresher Refresher
	inbox     Inbox
	log       *slog.Logger
}

func New(svc *deliveries.Service, engine *status.Engine, packages PackageSnapshotter, refresher Refresher, inbox Inbox) *DeliveriesAPI {
	return &DeliveriesAPI{
		svc:       svc,
		engine:    engine,
		packages:  packages,
		refresher: refresher,
		inbox:     inbox,
		log:       slog.Default(),
	}
}

func (a *DeliveriesAPI) WithLogger(l *slog.Logger) *DeliveriesAPI {
	if l != nil {
		a.log = l
	}
	return a
}

// Register mounts the /v1 routes on r.
func (a *DeliveriesAPI) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", a.listGrouped)
			r.Post("/", a.create)
			r.Delete("/", a.removeDelivered)
			r.Get("/sorted", a.listSorted)
			r.Get("/archived", a.listArchived)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.get)
				r.Patch("/", a.update)
				r.Delete("/", a.remove)
				r.Post("/archive", a.archive)
				r.Post("/unarchive", a.unarchive)
				r.Post("/toggle-delivered", a.toggleDelivered)
				r.Get("/tracking-url", a.trackingURL)
			})
		})

		r.Post("/refresh", a.refresh)
		r.Get("/summary", a.summary)
		r.Get("/notifications", a.notifications)
	})
}

// DeliveryView is a delivery together with its derived status and cached packages.
type DeliveryView struct {
	models.Delivery
	Status      status.Status    `json:"status"`
	Label       string           `json:"label"`
	Packages    []models.Package `json:"packages"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`
}

type GroupsView struct {
	ArrivingToday []DeliveryView `json:"arriving_today"`
	InTransit     []DeliveryView `json:"in_transit"`
	Delivered     []DeliveryView `json:"delivered"`
	Unknown       []DeliveryView `json:"unknown"`
}

type NotificationsView struct {
	Notifications []messages.RefreshFailed   `json:"notifications"`
	LastRefresh   *messages.RefreshCompleted `json:"last_refresh,omitempty"`
}

type removedView struct {
	Removed int `json:"removed"`
}

type trackingURLView struct {
	URL string `json:"url"`
}

func (a *DeliveriesAPI) listGrouped(w http.ResponseWriter, r *http.Request) {
	ds, pm, ok := a.active(w, r)
	if !ok {
		return
	}
	g := a.engine.GroupByStatus(ds, pm)
	writeJSON(w, http.StatusOK, GroupsView{
		ArrivingToday: a.views(g.ArrivingToday, pm),
		InTransit:     a.views(g.InTransit, pm),
		Delivered:     a.views(g.Delivered, pm),
		Unknown:       a.views(g.Unknown, pm),
	})
}

func (a *DeliveriesAPI) listSorted(w http.ResponseWriter, r *http.Request) {
	ds, pm, ok := a.active(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.views(a.engine.SortTracking(ds, pm), pm))
}

func (a *DeliveriesAPI) listArchived(w http.ResponseWriter, r *http.Request) {
	ds, err := a.svc.Archived(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	pm, err := a.packages.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	ds = deliveries.Filter(ds, r.URL.Query().Get("carrier"), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, a.views(ds, pm))
}

func (a *DeliveriesAPI) get(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeDelivery(w, r, http.StatusOK, d)
}

func (a *DeliveriesAPI) create(w http.ResponseWriter, r *http.Request) {
	var in models.DeliveryCreateInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, err)
		return
	}
	d, err := a.svc.Add(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeDelivery(w, r, http.StatusCreated, d)
}

func (a *DeliveriesAPI) update(w http.ResponseWriter, r *http.Request) {
	var p models.DeliveryPatch
	if err := decode(r, &p); err != nil {
		a.writeError(w, err)
		return
	}
	d, err := a.svc.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeDelivery(w, r, http.StatusOK, d)
}

func (a *DeliveriesAPI) remove(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeDelivered handles DELETE /v1/deliveries?delivered=true.
func (a *DeliveriesAPI) removeDelivered(w http.ResponseWriter, r *http.Request) {
	if delivered, _ := strconv.ParseBool(r.URL.Query().Get("delivered")); !delivered {
		a.writeError(w, errors.Wrap(deliveries.ErrValidation, "only delivered=true bulk removal is supported"))
		return
	}
	n, err := a.svc.RemoveDelivered(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removedView{Removed: n})
}

func (a *DeliveriesAPI) archive(w http.ResponseWriter, r *http.Request) {
	a.modify(w, r, a.svc.Archive)
}

func (a *DeliveriesAPI) unarchive(w http.ResponseWriter, r *http.Request) {
	a.modify(w, r, a.svc.Unarchive)
}

func (a *DeliveriesAPI) toggleDelivered(w http.ResponseWriter, r *http.Request) {
	a.modify(w, r, a.svc.ToggleDelivered)
}

func (a *DeliveriesAPI) modify(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (models.Delivery, error)) {
	d, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeDelivery(w, r, http.StatusOK, d)
}

func (a *DeliveriesAPI) trackingURL(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.TrackingURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingURLView{URL: u})
}

func (a *DeliveriesAPI) refresh(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	rep, err := a.refresher.RunNow(r.Context(), force)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *DeliveriesAPI) summary(w http.ResponseWriter, r *http.Request) {
	ds, pm, ok := a.active(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.engine.Summarize(ds, pm))
}

func (a *DeliveriesAPI) notifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out := NotificationsView{Notifications: []messages.RefreshFailed{}}
	if a.inbox != nil {
		out.Notifications = a.inbox.Latest(limit)
		out.LastRefresh = a.inbox.LastRefresh()
	}
	writeJSON(w, http.StatusOK, out)
}

// active loads active deliveries filtered by ?carrier= and ?q=, plus a package snapshot.
func (a *DeliveriesAPI) active(w http.ResponseWriter, r *http.Request) ([]models.Delivery, models.PackageMap, bool) {
	ds, err := a.svc.Active(r.Context())
	if err != nil {
		a.writeError(w, err)
		return nil, nil, false
	}
	pm, err := a.packages.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, err)
		return nil, nil, false
	}
	q := r.URL.Query()
	return deliveries.Filter(ds, q.Get("carrier"), q.Get("q")), pm, true
}

func (a *DeliveriesAPI) views(ds []models.Delivery, pm models.PackageMap) []DeliveryView {
	out := make([]DeliveryView, 0, len(ds))
	for _, d := range ds {
		out = append(out, a.view(d, pm))
	}
	return out
}

func (a *DeliveriesAPI) view(d models.Delivery, pm models.PackageMap) DeliveryView {
	c := a.engine.DeliveryStatus(d, pm)
	v := DeliveryView{Delivery: d, Status: c.Status, Label: c.Label, Packages: []models.Package{}}
	if e, ok := pm[d.ID]; ok {
		if e.Packages != nil {
			v.Packages = e.Packages
		}
		lu := e.LastUpdated
		v.LastUpdated = &lu
	}
	return v
}

func (a *DeliveriesAPI) writeDelivery(w http.ResponseWriter, r *http.Request, code int, d models.Delivery) {
	pm, err := a.packages.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, code, a.view(d, pm))
}

type errorView struct {
	Error string `json:"error"`
}

func (a *DeliveriesAPI) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, deliveries.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, deliveries.ErrValidation), errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, poller.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, context.Canceled):
		// клиент ушёл
		code = 499
	}
	if code == http.StatusInternalServerError {
		a.log.Error("api request failed", "error", err.Error())
	}
	writeJSON(w, code, errorView{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
