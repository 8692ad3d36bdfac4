// Package broadcast delivers push events to the connections subscribed to a
// room. Rooms are session ids or course rooms ("course:<name>").
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Relay forwards events to other instances. The local instance has already
// delivered the event when Forward is called.
type Relay interface {
	Forward(ctx context.Context, room string, event *types.Event) error
}

type Broadcaster struct {
	rooms map[string]map[interfaces.Connection]struct{}
	mu    sync.RWMutex

	// deliverMu serializes deliveries so every connection in a room sees
	// events in publish order.
	deliverMu sync.Mutex

	relay Relay
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		rooms: make(map[string]map[interfaces.Connection]struct{}),
	}
}

// SetRelay enables cross-instance fan-out. Call before serving traffic.
func (b *Broadcaster) SetRelay(r Relay) {
	b.relay = r
}

// Join subscribes conn to room. Joining twice is a no-op.
func (b *Broadcaster) Join(room string, conn interfaces.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[interfaces.Connection]struct{})
		b.rooms[room] = members
	}
	members[conn] = struct{}{}
}

func (b *Broadcaster) Leave(room string, conn interfaces.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(room, conn)
}

// LeaveAll removes conn from every room, typically on disconnect.
func (b *Broadcaster) LeaveAll(conn interfaces.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for room := range b.rooms {
		b.leaveLocked(room, conn)
	}
}

func (b *Broadcaster) leaveLocked(room string, conn interfaces.Connection) {
	members, ok := b.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(b.rooms, room)
	}
}

// Publish delivers event to local subscribers of room and, when a relay is
// set, to other instances. Delivery failures are logged, never returned to
// the mutation that triggered the event; only a relay failure is reported.
func (b *Broadcaster) Publish(ctx context.Context, room string, event *types.Event) error {
	if event.Room == "" {
		event.Room = room
	}

	b.Deliver(ctx, room, event)

	if b.relay != nil {
		if err := b.relay.Forward(ctx, room, event); err != nil {
			slog.WarnContext(ctx, "failed to relay event", "room", room, "event", event.Type, "error", err)
			return err
		}
	}
	return nil
}

// Deliver writes event to the local subscribers of room only.
func (b *Broadcaster) Deliver(ctx context.Context, room string, event *types.Event) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	for _, conn := range b.members(room) {
		if err := conn.WriteJSON(event); err != nil {
			slog.DebugContext(ctx, "dropping event for connection",
				"room", room,
				"event", event.Type,
				"user_id", conn.GetUserID(),
				"error", err)
		}
	}
}

func (b *Broadcaster) members(room string) []interfaces.Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := b.rooms[room]
	conns := make([]interfaces.Connection, 0, len(members))
	for conn := range members {
		conns = append(conns, conn)
	}
	return conns
}

// RoomSize returns the number of local connections in room.
func (b *Broadcaster) RoomSize(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

func (b *Broadcaster) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscriptions := 0
	for _, members := range b.rooms {
		subscriptions += len(members)
	}
	return map[string]interface{}{
		"rooms":         len(b.rooms),
		"subscriptions": subscriptions,
		"relay_enabled": b.relay != nil,
	}
}
