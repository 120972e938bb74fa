// Package status classifies deliveries into display buckets and orders them.
package status

import (
	"fmt"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

type Status string

const (
	ArrivingToday Status = "arriving_today"
	InTransit     Status = "in_transit"
	Delivered     Status = "delivered"
	Unknown       Status = "unknown"
)

const (
	labelDelivered     = "Delivered"
	labelArrivingToday = "Arriving today!"
	labelInTransit     = "In transit"
	labelUnknown       = "Unknown delivery date"
)

type Classification struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
}

// Classify derives a status from carrier packages. Rules are checked in
// order, first match wins. Calendar days are taken in now's location.
func Classify(pkgs []models.Package, now time.Time) Classification {
	if len(pkgs) == 0 {
		return Classification{Status: Unknown, Label: labelUnknown}
	}

	for _, p := range pkgs {
		if p.HasEvent(models.TrackingStatusDelivered) {
			return Classification{Status: Delivered, Label: labelDelivered}
		}
	}

	for _, p := range pkgs {
		if p.EstimatedDelivery != nil && sameDay(*p.EstimatedDelivery, now) {
			return Classification{Status: ArrivingToday, Label: labelArrivingToday}
		}
	}

	for _, p := range pkgs {
		if p.HasEvent(models.TrackingStatusInTransit) {
			return Classification{Status: InTransit, Label: inTransitLabel(pkgs, now)}
		}
	}

	return Classification{Status: Unknown, Label: labelUnknown}
}

// "Arriving in N days" for the nearest future estimate, plain "In transit"
// otherwise.
func inTransitLabel(pkgs []models.Package, now time.Time) string {
	best := -1
	for _, p := range pkgs {
		if p.EstimatedDelivery == nil {
			continue
		}
		d := daysBetween(now, *p.EstimatedDelivery)
		if d > 0 && (best < 0 || d < best) {
			best = d
		}
	}
	switch {
	case best == 1:
		return "Arriving in 1 day"
	case best > 1:
		return fmt.Sprintf("Arriving in %d days", best)
	default:
		return labelInTransit
	}
}

func sameDay(t, now time.Time) bool {
	return daysBetween(now, t) == 0
}

// daysBetween counts calendar days from a to b in a's location.
func daysBetween(a, b time.Time) int {
	loc := a.Location()
	b = b.In(loc)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
