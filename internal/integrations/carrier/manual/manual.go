// Package manual is a carrier that cannot be tracked remotely. Deliveries
// on it are marked delivered by hand.
package manual

import (
	"context"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
)

type Carrier struct {
	trackingURL string
}

var _ carrier.Carrier = (*Carrier)(nil)

func New(trackingURL string) *Carrier {
	return &Carrier{trackingURL: trackingURL}
}

func (c *Carrier) UpdateTracking(context.Context, models.Delivery) ([]models.Package, error) {
	return []models.Package{}, nil
}

func (c *Carrier) AbleToTrackRemotely() bool { return false }

func (c *Carrier) URLToTrackingWebpage(models.Delivery) string { return c.trackingURL }
