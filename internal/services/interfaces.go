package services

import (
	"context"

	"collab-engine/internal/models"
)

/*
LEARNING: WHERE GO INTERFACES LIVE

"Accept interfaces, return structs" - Rob Pike

Interfaces are defined where they are USED, not where implemented.
The fan-out service only needs something that can publish an event; it
does not care whether that is the local websocket hub or Redis.

  // ✅ GOOD: Interface in services package (consumer)
  package services
  type Publisher interface { Publish(...) error }

  // collaboration.Hub and pubsub.RedisPublisher both satisfy it
  // without importing this package.
*/

// Publisher delivers a collaboration event to its session's subscribers
type Publisher interface {
	Publish(ctx context.Context, event *models.CollabEvent) error
}
