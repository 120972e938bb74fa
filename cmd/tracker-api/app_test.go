package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/notify"
)

type fakeConsumer struct {
	msgs [][]byte
}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(nil, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRunTrackerAPI_ServesAndConsumes(t *testing.T) {
	inbox := notify.NewInbox(5)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cons := consumers{
		notifications: fakeConsumer{msgs: [][]byte{
			[]byte(`{broken`),
			mustJSON(t, messages.RefreshFailed{ID: "n1", Title: "Failed to refresh 1 delivery", At: at}),
		}},
		refreshes: fakeConsumer{msgs: [][]byte{
			mustJSON(t, messages.RefreshCompleted{RunID: "r1", Refreshed: 3}),
		}},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := trackerAPIOpts{
		httpAddr: "127.0.0.1:0",
		onListen: func(addr string) { addrCh <- addr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runTrackerAPI(ctx, slog.Default(), opts, handler, inbox, cons) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(inbox.Latest(0)) == 1 && inbox.LastRefresh() != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "n1", inbox.Latest(0)[0].ID)
	require.Equal(t, "r1", inbox.LastRefresh().RunID)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}

func TestRunTrackerAPI_ListenError(t *testing.T) {
	err := runTrackerAPI(context.Background(), slog.Default(), trackerAPIOpts{httpAddr: "bad-addr"},
		http.NotFoundHandler(), notify.NewInbox(1), consumers{})
	require.Error(t, err)
}
