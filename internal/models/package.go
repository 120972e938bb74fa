package models

import "time"

// Нормализованные статусы событий перевозчика.
const (
	TrackingStatusUnknown   = "UNKNOWN"
	TrackingStatusInTransit = "IN_TRANSIT"
	TrackingStatusDelivered = "DELIVERED"
)

type TrackingEvent struct {
	Status    string    `json:"status"`
	StatusRaw string    `json:"status_raw"`
	Time      time.Time `json:"time"`
	Location  string    `json:"location,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Package is one parcel as reported by a carrier. A delivery may be split
// into several packages.
type Package struct {
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Events            []TrackingEvent `json:"events"`
}

func (p Package) HasEvent(status string) bool {
	for _, e := range p.Events {
		if e.Status == status {
			return true
		}
	}
	return false
}

// TrackedPackages is the cached carrier answer for one delivery.
// Packages and LastUpdated are always written together.
type TrackedPackages struct {
	Packages    []Package `json:"packages"`
	LastUpdated time.Time `json:"last_updated"`
}

// PackageMap maps delivery id to its cached packages. A missing key means the
// delivery was never fetched; an empty Packages slice means the carrier has
// nothing yet.
type PackageMap map[string]TrackedPackages

// Clone returns a shallow copy of the map; entries are values and are never
// mutated in place.
func (m PackageMap) Clone() PackageMap {
	out := make(PackageMap, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PackagesOf returns the cached packages of a delivery, nil when never fetched.
func (m PackageMap) PackagesOf(deliveryID string) []Package {
	if m == nil {
		return nil
	}
	e, ok := m[deliveryID]
	if !ok {
		return nil
	}
	return e.Packages
}
