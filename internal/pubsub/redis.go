package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"collab-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

/*
LEARNING: REDIS PUB/SUB FOR MULTI-NODE FAN-OUT

Each session has a Redis channel ("collab:session:<id>"). Nodes publish the
events their registry produces, and every node pattern-subscribes to all
session channels and relays what it hears to its own websocket clients.

Pub/Sub is fire-and-forget: a node that is down misses messages. That is
acceptable here because a reconnecting client always starts from a fresh
snapshot and catches up with operations-since-version.
*/

// ChannelPrefix namespaces session channels in Redis
const ChannelPrefix = "collab:session:"

// Channel returns the Redis channel for a session
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}

	log.Printf("✓ Connected to Redis at %s", addr)
	return rdb, nil
}

// RedisPublisher publishes collaboration events to their session channel
type RedisPublisher struct {
	rdb redis.UniversalClient
}

// NewRedisPublisher creates a publisher on top of an existing client
func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish encodes event as JSON and publishes it
func (p *RedisPublisher) Publish(ctx context.Context, event *models.CollabEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	if err := p.rdb.Publish(ctx, Channel(event.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(event.SessionID), err)
	}
	return nil
}

// Deliverer receives events relayed from Redis
type Deliverer interface {
	Deliver(event *models.CollabEvent) error
}

// RedisSubscriber relays events from every session channel to a Deliverer
type RedisSubscriber struct {
	rdb    redis.UniversalClient
	target Deliverer

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisSubscriber creates a subscriber; Start begins relaying
func NewRedisSubscriber(rdb redis.UniversalClient, target Deliverer) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb, target: target}
}

// Start subscribes to all session channels
func (s *RedisSubscriber) Start(ctx context.Context) error {
	s.pubsub = s.rdb.PSubscribe(ctx, ChannelPrefix+"*")

	// Wait for the subscription to be confirmed so no early events are lost.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		return fmt.Errorf("subscribe to %s*: %w", ChannelPrefix, err)
	}

	s.wg.Add(1)
	go s.relay(s.pubsub.Channel())

	log.Printf("✓ Relaying Redis channels %s* to websocket clients", ChannelPrefix)
	return nil
}

func (s *RedisSubscriber) relay(messages <-chan *redis.Message) {
	defer s.wg.Done()

	for msg := range messages {
		event, err := decodeEvent(msg)
		if err != nil {
			log.Printf("⚠️  Dropping Redis message on %s: %v", msg.Channel, err)
			continue
		}
		if err := s.target.Deliver(event); err != nil {
			log.Printf("⚠️  Failed to deliver %s event for session %s: %v", event.Type, event.SessionID, err)
		}
	}
}

func decodeEvent(msg *redis.Message) (*models.CollabEvent, error) {
	var event models.CollabEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	sessionID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
	if event.SessionID != sessionID {
		return nil, fmt.Errorf("event for session %q published on %s", event.SessionID, msg.Channel)
	}
	return &event, nil
}

// Shutdown unsubscribes and waits for the relay goroutine to exit
func (s *RedisSubscriber) Shutdown() {
	log.Println("🛑 Shutting down Redis subscriber...")

	if s.pubsub != nil {
		s.pubsub.Close()
	}
	s.wg.Wait()

	log.Println("✓ Redis subscriber shutdown complete")
}
