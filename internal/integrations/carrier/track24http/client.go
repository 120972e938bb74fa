package track24http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

// Client is a Track24-compatible aggregator. The carrier is detected by the
// service from the tracking number.
type Client struct {
	baseURL string
	apiKey  string
	domain  string
	httpc   *http.Client
}

var _ carrier.Carrier = (*Client)(nil)

func New(baseURL, apiKey, domain string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		domain:  domain,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type track24Resp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		DeliveredDateTime string `json:"deliveredDateTime"`
		Events            []struct {
			OperationDateTime  string `json:"operationDateTime"`
			OperationAttribute string `json:"operationAttribute"`
			OperationType      string `json:"operationType"`
			OperationPlaceName string `json:"operationPlaceName"`
		} `json:"events"`
	} `json:"data"`
}

// Track24 пример: "02.07.2014 19:16:00"
const track24TimeLayout = "02.01.2006 15:04:05"

func (c *Client) UpdateTracking(ctx context.Context, d models.Delivery) ([]models.Package, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/tracking.json.php"

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("domain", c.domain)
	q.Set("code", d.TrackingNumber)
	q.Set("pretty", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, carrier.TransportError("track24", err)
	}
	defer resp.Body.Close()

	if err := carrier.ResponseError("track24", resp); err != nil {
		return nil, err
	}

	var r track24Resp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if r.Status != "ok" {
		// Ошибки Track24 приходят текстом с HTTP 200, классифицируем по тексту.
		return nil, trackerr.Classify(trackerr.Failure{
			Message: fmt.Sprintf("track24 status=%s: %s", r.Status, r.Message),
		}, d.Name)
	}

	pkg := models.Package{TrackingNumber: d.TrackingNumber}
	for _, e := range r.Data.Events {
		ev := models.TrackingEvent{
			Status:    models.TrackingStatusInTransit,
			StatusRaw: e.OperationAttribute,
			Location:  e.OperationPlaceName,
			Message:   e.OperationAttribute,
		}
		if t, err := time.ParseInLocation(track24TimeLayout, e.OperationDateTime, time.UTC); err == nil {
			ev.Time = t.UTC()
		}
		if containsDeliveredHint(e.OperationAttribute) || containsDeliveredHint(e.OperationType) {
			ev.Status = models.TrackingStatusDelivered
		}
		pkg.Events = append(pkg.Events, ev)
	}

	return []models.Package{pkg}, nil
}

func (c *Client) AbleToTrackRemotely() bool { return true }

func (c *Client) URLToTrackingWebpage(d models.Delivery) string {
	return "https://track24.net/?code=" + url.QueryEscape(d.TrackingNumber)
}

func containsDeliveredHint(s string) bool {
	low := strings.ToLower(s)
	return strings.Contains(low, "вруч") || strings.Contains(low, "delivered")
}
