package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"nexa/internal/websocket"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

const defaultQueueSize = 1000

var _ interfaces.Publisher = (*Hub)(nil)

// Rooms resolves the current members of a course room.
type Rooms interface {
	MembersOf(courseID string) []interfaces.Connection
}

// Hub fans committed chat messages out to room members. Messages are
// delivered in the order they were published, one at a time, by a single
// goroutine.
type Hub struct {
	queue chan *types.ChatMessage
	rooms Rooms

	logger *slog.Logger

	running  bool
	shutdown chan struct{}
	stopped  chan struct{}
	mu       sync.RWMutex

	published atomic.Int64
	delivered atomic.Int64
	evicted   atomic.Int64
}

// NewHub creates a hub delivering to the members rooms reports.
func NewHub(rooms Rooms, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queue:  make(chan *types.ChatMessage, defaultQueueSize),
		rooms:  rooms,
		logger: logger,
	}
}

// Start begins fan-out processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.stopped = make(chan struct{})

	h.logger.Info("starting message hub")
	go h.run(ctx, h.shutdown, h.stopped)

	return nil
}

// Stop delivers what is already queued and stops the hub.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	stopped := h.stopped
	h.mu.Unlock()

	<-stopped
	h.logger.Info("message hub stopped")
	return nil
}

// Publish queues a committed message for fan-out. It waits for queue space
// rather than drop a message, so a caller publishing in commit order gets
// delivery in commit order.
func (h *Hub) Publish(message *types.ChatMessage) error {
	if message == nil {
		return ErrNilMessage
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdown
	h.mu.RUnlock()

	select {
	case h.queue <- message:
		h.published.Add(1)
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	}
}

func (h *Hub) run(ctx context.Context, shutdown, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case message := <-h.queue:
			h.broadcast(message)

		case <-shutdown:
			h.drain()
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			h.drain()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case message := <-h.queue:
			h.broadcast(message)
		default:
			return
		}
	}
}

// broadcast sends message to everyone in its room right now, sender
// included. A member whose outbound buffer is full is closed and skipped.
func (h *Hub) broadcast(message *types.ChatMessage) {
	event := types.NewMessageBroadcast(message)

	for _, member := range h.rooms.MembersOf(message.CourseID) {
		err := member.Send(event)
		switch {
		case err == nil:
			h.delivered.Add(1)
		case errors.Is(err, websocket.ErrSendBufferFull):
			h.evicted.Add(1)
			h.logger.Warn("closing slow connection",
				"conn_id", member.ID(), "course_id", message.CourseID, "message_id", message.ID)
			_ = member.Close()
		default:
			// Closed between snapshot and send; its disconnect handles cleanup
			h.logger.Debug("skipping connection", "conn_id", member.ID(), "error", err)
		}
	}
}

// GetStats returns fan-out counters.
func (h *Hub) GetStats() map[string]int64 {
	return map[string]int64{
		"published": h.published.Load(),
		"delivered": h.delivered.Load(),
		"evicted":   h.evicted.Load(),
		"queued":    int64(len(h.queue)),
	}
}
