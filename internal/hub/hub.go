// Package hub fans ledger notifications out asynchronously so that a slow
// ledger write never delays the response to the mutation that caused it.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"classboard/internal/logger"
	"classboard/pkg/interfaces"
)

const (
	defaultQueueSize = 1000
	recordTimeout    = 5 * time.Second
)

// Notification is one change to be recorded for every recipient.
type Notification struct {
	SessionID  string
	QuestionID string
	UpdateType string
	Recipients []string
}

// Hub owns the notification queue and the single goroutine draining it into
// the tracker.
type Hub struct {
	recorder      interfaces.UpdateRecorder
	notifications chan *Notification
	shutdown      chan struct{}
	done          chan struct{}

	running bool
	mu      sync.RWMutex

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewHub(recorder interfaces.UpdateRecorder, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		recorder:      recorder,
		notifications: make(chan *Notification, queueSize),
	}
}

// Start begins processing. The hub keeps draining after ctx is cancelled
// until Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	slog.InfoContext(ctx, "starting ledger hub", "queue_size", cap(h.notifications))
	go h.run(context.WithoutCancel(ctx), h.shutdown, h.done)
	return nil
}

// Stop rejects new notifications, records everything already queued and
// returns once the loop has exited.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	slog.Info("ledger hub stopped",
		"processed", h.processed.Load(),
		"dropped", h.dropped.Load(),
		"failed", h.failed.Load())
	return nil
}

// Dispatch queues n without blocking. A full queue drops the notification.
func (h *Hub) Dispatch(n *Notification) error {
	if n == nil || n.SessionID == "" || len(n.Recipients) == 0 {
		return ErrEmptyNotification
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.notifications <- n:
		return nil
	default:
		h.dropped.Add(1)
		slog.Warn("ledger notification dropped",
			"session_id", n.SessionID,
			"question_id", n.QuestionID,
			"update_type", n.UpdateType,
			"recipients", len(n.Recipients))
		return ErrQueueFull
	}
}

// RecordUpdate satisfies interfaces.UpdateRecorder by queueing. An empty
// recipient list is not an error.
func (h *Hub) RecordUpdate(ctx context.Context, sessionID, questionID, updateType string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}
	return h.Dispatch(&Notification{
		SessionID:  sessionID,
		QuestionID: questionID,
		UpdateType: updateType,
		Recipients: recipients,
	})
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case n := <-h.notifications:
			h.record(ctx, n)

		case <-shutdown:
			for {
				select {
				case n := <-h.notifications:
					h.record(ctx, n)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) record(ctx context.Context, n *Notification) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID:  n.SessionID,
		QuestionID: n.QuestionID,
		Component:  "hub",
	})
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	if err := h.recorder.RecordUpdate(ctx, n.SessionID, n.QuestionID, n.UpdateType, n.Recipients); err != nil {
		h.failed.Add(1)
		slog.ErrorContext(ctx, "failed to record ledger update",
			"update_type", n.UpdateType,
			"recipients", len(n.Recipients),
			"error", err)
		return
	}
	h.processed.Add(1)
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"queued":    len(h.notifications),
		"processed": h.processed.Load(),
		"dropped":   h.dropped.Load(),
		"failed":    h.failed.Load(),
	}
}
