package chathub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/models"
)

// DefaultRelayChannel is the Redis channel every instance publishes room events to.
const DefaultRelayChannel = "groupouting:room-events"

// relayEnvelope is the Redis payload: the target room plus the event in its wire shape.
type relayEnvelope struct {
	RoomID string          `json:"room_id"`
	Event  json.RawMessage `json:"event"`
}

// RedisRelay spreads room events across server instances. Publish goes to Redis only;
// each instance, this one included, receives the event back and broadcasts it to its
// own hub.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     logrus.FieldLogger
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, log logrus.FieldLogger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		log:     log.WithField("component", "relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, roomID string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type(), err)
	}
	payload, err := json.Marshal(relayEnvelope{RoomID: roomID, Event: data})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Start subscribes to the relay channel and returns once the subscription is confirmed.
// Events are delivered to the hub in the background until ctx is cancelled.
func (r *RedisRelay) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.deliver(msg.Payload)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) deliver(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.WithError(err).Warn("dropping undecodable relay payload")
		return
	}
	event, err := models.DecodeEvent(env.Event)
	if err != nil {
		r.log.WithError(err).WithField("room_id", env.RoomID).Warn("dropping unknown relay event")
		return
	}
	r.hub.Broadcast(env.RoomID, event)
}
