package hub

import (
	"time"

	"github.com/soar/padrelay/internal/controller"
)

// WSMessage represents a WebSocket message sent from server to client.
type WSMessage struct {
	Type      string                   `json:"type"` // "full", "delta", "event" or "push_result"
	Seq       int64                    `json:"seq"`
	Timestamp int64                    `json:"timestamp"` // Unix milliseconds
	Event     string                   `json:"event,omitempty"`
	Data      *controller.Snapshot     `json:"data,omitempty"`
	Changes   *controller.DeltaChanges `json:"changes,omitempty"`
	Button    string                   `json:"button,omitempty"`
	OK        *bool                    `json:"ok,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// NewFullMessage creates a "full" type message containing the complete controller state.
func NewFullMessage(seq int64, state *controller.Snapshot) *WSMessage {
	return &WSMessage{
		Type:      "full",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      state,
	}
}

// NewDeltaMessage creates a "delta" type message containing only changed fields.
func NewDeltaMessage(seq int64, changes *controller.DeltaChanges) *WSMessage {
	return &WSMessage{
		Type:      "delta",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Changes:   changes,
	}
}

// NewEventMessage creates an "event" type message, used when the session closes.
func NewEventMessage(seq int64, event string, state *controller.Snapshot) *WSMessage {
	return &WSMessage{
		Type:      "event",
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Event:     event,
		Data:      state,
	}
}

// NewPushResultMessage answers a client's push_button request.
func NewPushResultMessage(button string, err error) *WSMessage {
	ok := err == nil
	msg := &WSMessage{
		Type:      "push_result",
		Timestamp: time.Now().UnixMilli(),
		Button:    button,
		OK:        &ok,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type       string `json:"type"`
	Button     string `json:"button,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}
