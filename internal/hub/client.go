package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendBuffer = 256

// ButtonPusher presses and releases a controller button on behalf of a client.
type ButtonPusher interface {
	PushButton(ctx context.Context, button string, d time.Duration) error
}

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client attached to the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  hub.log,
	}
}

// enqueue queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("Error marshaling client reply")
		return
	}
	c.enqueue(data)
}

// WritePump sends messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ReadPump reads client commands until the connection drops. Push requests
// are ignored when pusher is nil.
func (c *Client) ReadPump(ctx context.Context, pusher ButtonPusher) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.log.Warn().Err(err).Msg("Error parsing client message")
			continue
		}

		switch clientMsg.Type {
		case "push_button":
			if pusher == nil {
				continue
			}
			d := time.Duration(clientMsg.DurationMs) * time.Millisecond
			err := pusher.PushButton(ctx, clientMsg.Button, d)
			if err != nil {
				c.log.Warn().Err(err).Str("button", clientMsg.Button).Msg("Client push failed")
			} else {
				c.log.Debug().Str("button", clientMsg.Button).Msg("Client pushed button")
			}
			c.sendJSON(NewPushResultMessage(clientMsg.Button, err))
		default:
			c.log.Debug().Str("type", clientMsg.Type).Msg("Ignoring unknown client message")
		}
	}
}
