package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-jukebox/internal/database"
)

const (
	ShortWindow      = 2 * time.Minute
	ShortWindowLimit = 2
	LongWindow       = 10 * time.Minute
	LongWindowLimit  = 5
)

// StreamStore is the part of the repository StreamThrottle reads from.
type StreamStore interface {
	QueueCounter
	CountStreamsAddedSince(ctx context.Context, spaceId, addedBy string, since time.Time) (int, error)
	FindRecentStream(ctx context.Context, spaceId, extractedId string, since time.Time) (database.Stream, error)
}

// StreamThrottle limits the HTTP creation path using the durable stream
// records instead of cache markers.
type StreamThrottle struct {
	store StreamStore
	now   func() time.Time
}

func NewStreamThrottle(store StreamStore) *StreamThrottle {
	return &StreamThrottle{store: store, now: time.Now}
}

func (s *StreamThrottle) Check(ctx context.Context, spaceId, addedBy, extractedId string, isHost bool) error {
	now := s.now()

	if !isHost {
		_, err := s.store.FindRecentStream(ctx, spaceId, extractedId, now.Add(-LongWindow))
		switch {
		case err == nil:
			return deny("This song was already added in the last 10 minutes")
		case !errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("find recent stream: %w", err)
		}

		short, err := s.store.CountStreamsAddedSince(ctx, spaceId, addedBy, now.Add(-ShortWindow))
		if err != nil {
			return fmt.Errorf("count recent streams: %w", err)
		}
		if short >= ShortWindowLimit {
			return deny("Rate limit exceeded: You can only add 2 songs per 2 minutes")
		}

		long, err := s.store.CountStreamsAddedSince(ctx, spaceId, addedBy, now.Add(-LongWindow))
		if err != nil {
			return fmt.Errorf("count recent streams: %w", err)
		}
		if long >= LongWindowLimit {
			return deny("Rate limit exceeded: You can only add 5 songs per 10 minutes")
		}
	}

	active, err := s.store.CountActiveStreams(ctx, spaceId)
	if err != nil {
		return fmt.Errorf("count active streams: %w", err)
	}
	if active >= MaxQueueLength {
		return deny("Queue is full")
	}

	return nil
}
