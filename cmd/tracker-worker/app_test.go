package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/chrismessina/delivery-tracker/config"
	"github.com/chrismessina/delivery-tracker/internal/services/poller"
)

type stubPoller struct {
	mu       sync.Mutex
	stats    poller.Stats
	triggers []bool
	runErr   error
}

func (p *stubPoller) Stats() poller.Stats { return p.stats }
func (p *stubPoller) Trigger(force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers = append(p.triggers, force)
}

func (p *stubPoller) triggered() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.triggers...)
}

func (p *stubPoller) Run(ctx context.Context) error {
	if p.runErr != nil {
		return p.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWorkerRouter(t *testing.T) {
	p := &stubPoller{stats: poller.Stats{TotalRuns: 3, LastError: "boom"}}
	cfg := &config.Config{
		Tracker:  config.TrackerConfig{RefreshSchedule: "@every 5m", Storage: "memory"},
		Carriers: []config.CarrierConfig{{Key: "ups", Mode: "emulator", APIKey: "secret-key"}},
	}
	srv := httptest.NewServer(newWorkerRouter(workerHTTPOpts{poller: p, cfg: cfg}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var st poller.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.EqualValues(t, 3, st.TotalRuns)
	require.Equal(t, "boom", st.LastError)

	resp, err = http.Post(srv.URL+"/trigger?force=true", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, err = http.Post(srv.URL+"/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, []bool{true, false}, p.triggered())

	resp, err = http.Get(srv.URL + "/config")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Equal(t, "@every 5m", out["refreshSchedule"])
	b, _ := json.Marshal(out)
	require.NotContains(t, string(b), "secret-key")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWorkerRouter_Readyz(t *testing.T) {
	ready := true
	srv := httptest.NewServer(newWorkerRouter(workerHTTPOpts{ping: func(context.Context) error {
		if ready {
			return nil
		}
		return errors.New("redis down")
	}}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ready = false
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunTrackerWorker_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunTrackerWorker(ctx, slog.Default(), &stubPoller{}, workerHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
		})
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting worker to stop")
	}
}

func TestRunTrackerWorker_PollerError(t *testing.T) {
	err := RunTrackerWorker(context.Background(), slog.Default(), &stubPoller{runErr: errors.New("bad schedule")},
		workerHTTPOpts{httpAddr: "127.0.0.1:0"})
	require.EqualError(t, err, "bad schedule")
}
