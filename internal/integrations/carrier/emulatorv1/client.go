package emulatorv1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
)

// Client talks to the carrier emulator's v1 JSON API.
type Client struct {
	code        string
	baseURL     string
	apiKey      string
	trackingURL string
	httpc       *http.Client
}

var _ carrier.Carrier = (*Client)(nil)

// New creates a client for one carrier code. trackingURL is a fmt pattern
// with a single %s for the tracking number.
func New(code, baseURL, apiKey, trackingURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		code:        code,
		baseURL:     baseURL,
		apiKey:      apiKey,
		trackingURL: trackingURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type respEvent struct {
	Status    string    `json:"status"`
	StatusRaw string    `json:"status_raw"`
	EventTime time.Time `json:"event_time"`
	Location  string    `json:"location,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type respBody struct {
	Carrier           string      `json:"carrier"`
	TrackNumber       string      `json:"track_number"`
	Status            string      `json:"status"`
	EstimatedDelivery *time.Time  `json:"estimated_delivery,omitempty"`
	Events            []respEvent `json:"events"`
}

func (c *Client) UpdateTracking(ctx context.Context, d models.Delivery) ([]models.Package, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/tracking/%s/%s", url.PathEscape(c.code), url.PathEscape(d.TrackingNumber))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, carrier.TransportError("carrier emulator", err)
	}
	defer resp.Body.Close()

	if err := carrier.ResponseError("carrier emulator", resp); err != nil {
		return nil, err
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	pkg := models.Package{
		TrackingNumber:    d.TrackingNumber,
		EstimatedDelivery: rb.EstimatedDelivery,
	}
	for _, e := range rb.Events {
		status := e.Status
		if status == "" {
			status = models.TrackingStatusUnknown
		}
		pkg.Events = append(pkg.Events, models.TrackingEvent{
			Status:    status,
			StatusRaw: e.StatusRaw,
			Time:      e.EventTime,
			Location:  e.Location,
			Message:   e.Message,
		})
	}

	// Статус без событий: считаем его отдельным событием, чтобы классификатор его увидел.
	if len(pkg.Events) == 0 && rb.Status != "" && rb.Status != models.TrackingStatusUnknown {
		pkg.Events = append(pkg.Events, models.TrackingEvent{
			Status:    rb.Status,
			StatusRaw: rb.Status,
			Time:      time.Now().UTC(),
		})
	}

	return []models.Package{pkg}, nil
}

func (c *Client) AbleToTrackRemotely() bool { return true }

func (c *Client) URLToTrackingWebpage(d models.Delivery) string {
	if c.trackingURL == "" {
		return ""
	}
	return fmt.Sprintf(c.trackingURL, url.QueryEscape(d.TrackingNumber))
}
