package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"collab-engine/internal/metrics"
	"collab-engine/internal/models"
)

/*
LEARNING: FAN-OUT WORKER POOL PATTERN

Applying an operation must not wait for every participant to receive it,
so the registry hands events to this pool and returns.

Key Concepts:
1. **Worker Pool**: Fixed number of workers publishing events from queues
2. **Sharded Queues**: Each session hashes to one worker, so a session's
   events are published in the order they were produced (clients rely on
   applied_version arriving in sequence)
3. **Backpressure**: Bounded queues block producers instead of growing
4. **Graceful Shutdown**: Queues are closed and drained before exit
*/

// ErrFanoutClosed is returned by Publish after Shutdown
var ErrFanoutClosed = errors.New("fan-out service is shut down")

const publishTimeout = 5 * time.Second

// FanoutServiceImpl publishes collaboration events with a worker pool
type FanoutServiceImpl struct {
	publisher Publisher

	// Worker pool components
	queues []chan *models.CollabEvent // one bounded queue per worker
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewFanoutService creates the pool; Start launches the workers.
// Returns concrete type - "Accept interfaces, return structs"
func NewFanoutService(publisher Publisher, numWorkers, queueSize int) *FanoutServiceImpl {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	queues := make([]chan *models.CollabEvent, numWorkers)
	for i := range queues {
		queues[i] = make(chan *models.CollabEvent, queueSize)
	}

	return &FanoutServiceImpl{
		publisher: publisher,
		queues:    queues,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start spawns one worker per queue
func (s *FanoutServiceImpl) Start() {
	log.Printf("🔧 Starting fan-out worker pool with %d workers", len(s.queues))

	for i := range s.queues {
		s.wg.Add(1)
		go s.worker(i)
	}

	log.Println("✓ Fan-out worker pool started")
}

// worker publishes events from its queue until the queue is closed
func (s *FanoutServiceImpl) worker(id int) {
	defer s.wg.Done()

	for event := range s.queues[id] {
		metrics.FanoutQueueDepth.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.publisher.Publish(ctx, event); err != nil {
			metrics.FanoutErrors.WithLabelValues("publish").Inc()
			log.Printf("  Worker %d failed to publish %s for session %s: %v",
				id, event.Type, event.SessionID, err)
		}
		cancel()
	}
}

// Publish queues event for delivery. It blocks while the session's queue is
// full, until ctx ends or the service shuts down.
func (s *FanoutServiceImpl) Publish(ctx context.Context, event *models.CollabEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.FanoutErrors.WithLabelValues("closed").Inc()
		return ErrFanoutClosed
	}

	select {
	case s.queues[s.shard(event.SessionID)] <- event:
		metrics.FanoutQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		metrics.FanoutErrors.WithLabelValues("dropped").Inc()
		return fmt.Errorf("queue %s event: %w", event.Type, ctx.Err())
	case <-s.ctx.Done():
		metrics.FanoutErrors.WithLabelValues("closed").Inc()
		return ErrFanoutClosed
	}
}

func (s *FanoutServiceImpl) shard(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(s.queues)))
}

// Shutdown stops accepting events, drains the queues and waits for workers
func (s *FanoutServiceImpl) Shutdown() {
	log.Println("🛑 Shutting down fan-out service...")

	// Unblock producers waiting on a full queue before taking the write lock.
	s.cancel()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, q := range s.queues {
			close(q)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	log.Println("✓ Fan-out service shutdown complete")
}

// GetQueueLength returns the number of events waiting across all workers
func (s *FanoutServiceImpl) GetQueueLength() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}
