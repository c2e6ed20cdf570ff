package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

// cutoffLog records the cutoff each query receives.
type cutoffLog struct {
	messagelog.Repository
	templatedCutoff time.Time
	inboundCutoff   time.Time
}

func (c *cutoffLog) TemplatedSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	c.templatedCutoff = since
	return map[string]struct{}{}, nil
}

func (c *cutoffLog) InboundSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	c.inboundCutoff = since
	return map[string]struct{}{}, nil
}

func TestWindowTracker_CutoffIsTrailing24h(t *testing.T) {
	log := &cutoffLog{}
	tracker := NewWindowTracker(log)
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	clientID := uuid.New()

	_, err := tracker.TemplatedWithin24h(context.Background(), clientID, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), log.templatedCutoff)

	_, err = tracker.InboundWithin24h(context.Background(), clientID, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), log.inboundCutoff)
}
