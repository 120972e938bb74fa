package notify

import (
	"context"
	"sync"

	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/metrics"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
)

const DefaultInboxSize = 50

// Inbox keeps the latest notifications, newest first.
type Inbox struct {
	mu   sync.RWMutex
	buf  []messages.RefreshFailed
	next int
	full bool

	lastRefresh *messages.RefreshCompleted
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{buf: make([]messages.RefreshFailed, size)}
}

func (in *Inbox) Add(m messages.RefreshFailed) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.buf[in.next] = m
	in.next = (in.next + 1) % len(in.buf)
	if in.next == 0 {
		in.full = true
	}
	metrics.NotificationsTotal.WithLabelValues("inbox").Inc()
}

// Notify lets the inbox act as a local notifier.
func (in *Inbox) Notify(ctx context.Context, note tracking.Notification) error {
	in.Add(ToMessage(note))
	return nil
}

// Latest returns up to limit notifications, newest first. limit <= 0 means all.
func (in *Inbox) Latest(limit int) []messages.RefreshFailed {
	in.mu.RLock()
	defer in.mu.RUnlock()

	n := in.next
	if in.full {
		n = len(in.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]messages.RefreshFailed, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (in.next - i + len(in.buf)) % len(in.buf)
		out = append(out, in.buf[idx])
	}
	return out
}

func (in *Inbox) SetLastRefresh(m messages.RefreshCompleted) {
	in.mu.Lock()
	in.lastRefresh = &m
	in.mu.Unlock()
}

func (in *Inbox) LastRefresh() *messages.RefreshCompleted {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.lastRefresh == nil {
		return nil
	}
	cp := *in.lastRefresh
	return &cp
}
