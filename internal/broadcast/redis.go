package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"classboard/pkg/types"
)

// envelope is the wire format on the Redis channel.
type envelope struct {
	Origin string       `json:"origin"`
	Room   string       `json:"room"`
	Event  *types.Event `json:"event"`
}

// RemoteObserver is told about every event that arrived from another
// instance, after local delivery.
type RemoteObserver interface {
	ObserveRemote(ctx context.Context, room string, event *types.Event)
}

// RedisRelay shares room events between instances over Redis Pub/Sub. Each
// room maps to the channel prefix+room.
type RedisRelay struct {
	client    *redis.Client
	prefix    string
	nodeID    string
	local     *Broadcaster
	observers []RemoteObserver
}

func NewRedisRelay(client *redis.Client, prefix, nodeID string, local *Broadcaster) *RedisRelay {
	return &RedisRelay{
		client: client,
		prefix: prefix,
		nodeID: nodeID,
		local:  local,
	}
}

// AddObserver registers o for foreign events. Call it before Run.
func (r *RedisRelay) AddObserver(o RemoteObserver) {
	r.observers = append(r.observers, o)
}

// Forward publishes the event for other instances.
func (r *RedisRelay) Forward(ctx context.Context, room string, event *types.Event) error {
	data, err := json.Marshal(envelope{Origin: r.nodeID, Room: room, Event: event})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.prefix+room, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Run subscribes to every room channel and delivers foreign events locally
// until ctx is cancelled. The subscription is confirmed before Run starts
// consuming so callers can rely on it once ready is closed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	slog.InfoContext(ctx, "redis relay subscribed", "pattern", r.prefix+"*", "node_id", r.nodeID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		slog.WarnContext(ctx, "discarding malformed relay message", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == r.nodeID || env.Event == nil {
		return
	}

	room := env.Room
	if room == "" {
		room = strings.TrimPrefix(msg.Channel, r.prefix)
	}
	r.local.Deliver(ctx, room, env.Event)
	for _, o := range r.observers {
		o.ObserveRemote(ctx, room, env.Event)
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
