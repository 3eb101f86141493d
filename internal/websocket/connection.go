package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

var _ interfaces.Connection = (*Connection)(nil)

const (
	defaultBufferSize   = 100
	defaultWriteTimeout = 5 * time.Second
)

// outbound is one queued frame. A non-zero closeCode makes the writer send a
// close frame after everything queued before it, then tear down.
type outbound struct {
	data      []byte
	closeCode int
	closeText string
}

// Connection wraps a gorilla connection. All data frames are written by one
// goroutine; ping and close control frames may be written concurrently.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan outbound
	writeTimeout time.Duration
	identity     *types.Identity
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// NewConnection wraps conn and starts its writer. bufferSize and
// writeTimeout fall back to 100 frames and 5 seconds when not positive.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		writeCh:      make(chan outbound, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case msg := <-c.writeCh:
			if msg.closeCode != 0 {
				deadline := time.Now().Add(c.writeTimeout)
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(msg.closeCode, msg.closeText), deadline)
				_ = c.Close()
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				// A peer that cannot take writes is gone; the read side notices the close
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the process-unique connection id.
func (c *Connection) ID() string {
	return c.id
}

// Send queues v without blocking. A full buffer means the peer is not
// keeping up; the caller decides what to do with it.
func (c *Connection) Send(v interface{}) error {
	data, err := c.encode(v)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- outbound{data: data}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// WriteJSON queues v, waiting up to the write timeout for buffer space.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := c.encode(v)
	if err != nil {
		return err
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- outbound{data: data}:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

func (c *Connection) encode(v interface{}) ([]byte, error) {
	select {
	case <-c.ctx.Done():
		return nil, ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, ErrInvalidJSON
	}
	return data, nil
}

// CloseWithReason sends a close frame with code and reason once the frames
// already queued have been written, then closes. If the queue is full the
// connection is closed immediately.
func (c *Connection) CloseWithReason(code int, reason string) {
	select {
	case c.writeCh <- outbound{closeCode: code, closeText: reason}:
	case <-c.ctx.Done():
	default:
		_ = c.Close()
	}
}

// Close closes the connection. Queued frames are dropped.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetIdentity binds the authenticated principal. It can only be done once.
func (c *Connection) SetIdentity(identity *types.Identity) error {
	if identity == nil {
		return ErrNilIdentity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != nil {
		return ErrAlreadyAuthenticated
	}
	c.identity = identity
	return nil
}

// Identity returns the bound principal, or nil before authentication.
func (c *Connection) Identity() *types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// IsAuthenticated reports whether an identity has been bound.
func (c *Connection) IsAuthenticated() bool {
	return c.Identity() != nil
}
