package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/soar/padrelay/internal/controller"
)

const (
	fullSyncInterval = 5 * time.Second
	deltaCountSync   = 100
)

// Broadcaster listens for controller state changes and broadcasts them to the hub.
type Broadcaster struct {
	hub     *Hub
	changes <-chan controller.Snapshot

	mu        sync.Mutex
	lastState controller.Snapshot
	seq       int64
}

// NewBroadcaster starts from initial, the state new clients see until the
// first change arrives.
func NewBroadcaster(h *Hub, changes <-chan controller.Snapshot, initial controller.Snapshot) *Broadcaster {
	return &Broadcaster{
		hub:       h,
		changes:   changes,
		lastState: initial,
	}
}

// Run forwards changes until ctx is cancelled or the change channel closes.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(fullSyncInterval)
	defer ticker.Stop()

	var deltaCount int

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-b.changes:
			if !ok {
				return
			}

			b.mu.Lock()
			delta := controller.ComputeDelta(b.lastState, state)
			b.lastState = state
			if delta.IsEmpty() {
				b.mu.Unlock()
				continue
			}
			b.seq++
			deltaCount++

			var msg *WSMessage
			switch {
			case state.Closed:
				msg = NewEventMessage(b.seq, "closed", &state)
			case deltaCount >= deltaCountSync:
				msg = NewFullMessage(b.seq, &state)
				deltaCount = 0
			default:
				msg = NewDeltaMessage(b.seq, delta)
			}
			b.send(msg)
			b.mu.Unlock()

		case <-ticker.C:
			b.mu.Lock()
			if !b.lastState.Connected {
				b.mu.Unlock()
				continue
			}
			b.seq++
			state := b.lastState
			b.send(NewFullMessage(b.seq, &state))
			b.mu.Unlock()
		}
	}
}

// Attach queues the current full state for a new client and registers it
// with the hub. Messages are broadcast under the same lock, so the full state
// is always the client's first message and no later change is missed.
func (b *Broadcaster) Attach(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	state := b.lastState
	c.sendJSON(NewFullMessage(b.seq, &state))
	b.hub.Register(c)
}

func (b *Broadcaster) send(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.hub.log.Error().Err(err).Str("type", msg.Type).Msg("Error marshaling message")
		return
	}
	b.hub.Broadcast(data)
}
