package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"shifttrack/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventUsersListUpdate is the event name observers receive snapshots under.
const EventUsersListUpdate = "users_list_update"

// Broadcaster delivers a snapshot to observers. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, snap *model.PresenceSnapshot) error
}

// Fanout publishes to every broadcaster and joins their errors.
type Fanout []Broadcaster

func (f Fanout) Publish(ctx context.Context, snap *model.PresenceSnapshot) error {
	var errs []error
	for _, b := range f {
		if err := b.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type envelope struct {
	Origin   string                  `json:"origin"`
	Event    string                  `json:"event"`
	Snapshot *model.PresenceSnapshot `json:"snapshot"`
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisBroadcaster shares snapshots with other instances over a pub/sub channel.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel, origin: uuid.New().String()}
}

// Origin identifies this instance on the channel.
func (b *RedisBroadcaster) Origin() string {
	return b.origin
}

func (b *RedisBroadcaster) Publish(ctx context.Context, snap *model.PresenceSnapshot) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Event: EventUsersListUpdate, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// RelayToHub forwards snapshots published by other instances to local subscribers
// until ctx is done. Messages from skipOrigin are ignored.
func RelayToHub(ctx context.Context, client *redis.Client, channel, skipOrigin string, hub *Hub) {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	log.Printf("Relaying presence updates from Redis channel %s", channel)
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Dropping malformed presence message: %v", err)
				continue
			}
			if env.Origin == skipOrigin || env.Snapshot == nil {
				continue
			}
			_ = hub.Publish(ctx, env.Snapshot)
		}
	}
}
