package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-engine/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.CollabEvent
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.CollabEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) versions(sessionID string) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uint64
	for _, e := range p.events {
		if e.SessionID == sessionID {
			out = append(out, e.Version)
		}
	}
	return out
}

func TestFanoutKeepsPerSessionOrder(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewFanoutService(pub, 4, 16)
	svc.Start()

	ctx := context.Background()
	const perSession = 100
	for v := 1; v <= perSession; v++ {
		for s := 0; s < 3; s++ {
			require.NoError(t, svc.Publish(ctx, &models.CollabEvent{
				Type:      models.MessageTypeOperation,
				SessionID: fmt.Sprintf("s%d", s),
				Version:   uint64(v),
			}))
		}
	}

	// Shutdown drains every queue before returning.
	svc.Shutdown()

	for s := 0; s < 3; s++ {
		got := pub.versions(fmt.Sprintf("s%d", s))
		require.Len(t, got, perSession)
		for i, v := range got {
			assert.Equal(t, uint64(i+1), v)
		}
	}
}

func TestFanoutRejectsAfterShutdown(t *testing.T) {
	svc := NewFanoutService(&recordingPublisher{}, 1, 1)
	svc.Start()
	svc.Shutdown()

	err := svc.Publish(context.Background(), &models.CollabEvent{SessionID: "s"})
	assert.ErrorIs(t, err, ErrFanoutClosed)

	// A second shutdown is harmless.
	svc.Shutdown()
}

func TestFanoutPublishHonoursContext(t *testing.T) {
	// Not started, so the single slot stays full.
	svc := NewFanoutService(&recordingPublisher{}, 1, 1)
	require.NoError(t, svc.Publish(context.Background(), &models.CollabEvent{SessionID: "s"}))
	assert.Equal(t, 1, svc.GetQueueLength())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := svc.Publish(ctx, &models.CollabEvent{SessionID: "s"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFanoutSurvivesPublisherErrors(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	svc := NewFanoutService(pub, 2, 8)
	svc.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Publish(context.Background(), &models.CollabEvent{SessionID: "s"}))
	}
	svc.Shutdown()

	assert.Equal(t, 0, svc.GetQueueLength())
}
