package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// InboundMessage is a frame sent by the client.
type InboundMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

const (
	InboundSubscribe   = "subscribe"
	InboundUnsubscribe = "unsubscribe"
)

// Client is one live websocket connection of an authenticated user.
type Client struct {
	ID     string
	UserID string

	conn      *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient wraps conn. bufferSize <= 0 uses the default send buffer.
func NewClient(conn *websocket.Conn, userID string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = sendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

// enqueue never blocks; false means the client is closed or too slow.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// WritePump pumps queued frames to the connection and keeps it alive with
// pings. It owns all writes to conn.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadPump decodes client frames and hands them to handle until the
// connection fails. Undecodable frames are passed on with an empty Type.
func (c *Client) ReadPump(handle func(InboundMessage)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = InboundMessage{}
		}
		handle(msg)
	}
}
