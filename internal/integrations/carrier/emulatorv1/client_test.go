package emulatorv1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

func TestClient_UpdateTracking_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tracking/ups/123", r.URL.Path)
		require.Equal(t, "k", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "carrier": "ups",
  "track_number": "123",
  "status": "IN_TRANSIT",
  "estimated_delivery": "2025-01-03T00:00:00Z",
  "events": [{"status":"IN_TRANSIT","status_raw":"raw","event_time":"2025-01-01T00:00:00Z","location":"Memphis"}]
}`))
	}))
	defer srv.Close()

	c := New("ups", srv.URL, "k", "")
	pkgs, err := c.UpdateTracking(context.Background(), models.Delivery{TrackingNumber: "123"})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	require.Equal(t, "123", pkgs[0].TrackingNumber)
	require.NotNil(t, pkgs[0].EstimatedDelivery)
	require.WithinDuration(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), *pkgs[0].EstimatedDelivery, time.Second)
	require.Len(t, pkgs[0].Events, 1)
	require.Equal(t, models.TrackingStatusInTransit, pkgs[0].Events[0].Status)
	require.Equal(t, "Memphis", pkgs[0].Events[0].Location)
}

func TestClient_UpdateTracking_StatusOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"DELIVERED","events":[]}`))
	}))
	defer srv.Close()

	pkgs, err := New("ups", srv.URL, "", "").UpdateTracking(context.Background(), models.Delivery{TrackingNumber: "1"})
	require.NoError(t, err)
	require.True(t, pkgs[0].HasEvent(models.TrackingStatusDelivered))
}

func TestClient_UpdateTracking_429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("ups", srv.URL, "k", "")
	_, err := c.UpdateTracking(context.Background(), models.Delivery{TrackingNumber: "123"})
	require.Error(t, err)
	require.ErrorIs(t, err, trackerr.ErrRateLimit)

	te := trackerr.Categorize(err, "Shoes")
	require.Equal(t, 2*time.Minute, te.RetryAfter)
}

func TestClient_UpdateTracking_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New("ups", addr, "", "").UpdateTracking(context.Background(), models.Delivery{TrackingNumber: "1"})
	require.ErrorIs(t, err, trackerr.ErrNetwork)
}

func TestClient_URLToTrackingWebpage(t *testing.T) {
	c := New("ups", "", "", "https://www.ups.com/track?tracknum=%s")
	require.Equal(t, "https://www.ups.com/track?tracknum=1Z+99", c.URLToTrackingWebpage(models.Delivery{TrackingNumber: "1Z 99"}))
	require.True(t, c.AbleToTrackRemotely())
	require.Empty(t, New("ups", "", "", "").URLToTrackingWebpage(models.Delivery{TrackingNumber: "1"}))
}
