package fake

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

// FailPrefix makes the fake carrier fail: "FAIL:429 Too Many Requests"
// yields a failure classified from the text after the prefix.
const FailPrefix = "FAIL:"

// Client это детерминированный "перевозчик" для локальной разработки.
// Статус зависит только от (code, tracking number).
type Client struct {
	code string
	now  func() time.Time
}

var _ carrier.Carrier = (*Client)(nil)

func New(code string) *Client {
	return &Client{code: code, now: time.Now}
}

// WithClock replaces the time source.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) UpdateTracking(ctx context.Context, d models.Delivery) ([]models.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg, ok := strings.CutPrefix(d.TrackingNumber, FailPrefix); ok {
		return nil, trackerr.Classify(trackerr.Failure{Message: msg}, d.Name)
	}

	now := c.now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(c.code))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(d.TrackingNumber))
	v := h.Sum32()

	pkg := models.Package{TrackingNumber: d.TrackingNumber}
	ev := models.TrackingEvent{
		Status:  models.TrackingStatusInTransit,
		Time:    now,
		Message: "fake carrier update",
	}

	// 20% доставлено, 20% приезжает сегодня, остальные в пути 1..4 дня
	switch v % 5 {
	case 0:
		ev.Status = models.TrackingStatusDelivered
	case 1:
		eta := now
		pkg.EstimatedDelivery = &eta
	default:
		eta := now.AddDate(0, 0, int(v%4)+1)
		pkg.EstimatedDelivery = &eta
	}
	ev.StatusRaw = ev.Status
	pkg.Events = []models.TrackingEvent{ev}

	return []models.Package{pkg}, nil
}

func (c *Client) AbleToTrackRemotely() bool { return true }

func (c *Client) URLToTrackingWebpage(d models.Delivery) string {
	return "https://example.com/track/" + c.code + "/" + d.TrackingNumber
}
