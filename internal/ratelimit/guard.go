package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/npezzotti/go-jukebox/internal/kv"
)

const (
	VoteCooldown   = 20 * time.Minute
	AddCooldown    = 20 * time.Minute
	DuplicateBlock = 60 * time.Minute
	MaxQueueLength = 20
)

var ErrRateLimited = errors.New("rate limited")

// DeniedError is returned when a request is refused by a limit. Its message
// is meant for the end user.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrRateLimited
}

func deny(reason string) error {
	return &DeniedError{Reason: reason}
}

// QueueCounter reports the durable number of unplayed entries of a room.
type QueueCounter interface {
	CountActiveStreams(ctx context.Context, spaceId string) (int, error)
}

// Guard enforces the per-user cooldowns and the per-room queue cap on the
// realtime path. Hosts are exempt from every check.
type Guard struct {
	store   kv.Store
	counter QueueCounter
}

func NewGuard(store kv.Store, counter QueueCounter) *Guard {
	return &Guard{store: store, counter: counter}
}

func lastVotedKey(room, user string) string {
	return fmt.Sprintf("lastVoted-%s-%s", room, user)
}

func lastAddedKey(room, user string) string {
	return fmt.Sprintf("lastAdded-%s-%s", room, user)
}

func duplicateKey(room, url string) string {
	return fmt.Sprintf("%s-%s", room, url)
}

func queueLengthKey(room string) string {
	return fmt.Sprintf("queue-length-%s", room)
}

func (g *Guard) CanVote(ctx context.Context, room, user string, isHost bool) error {
	if isHost {
		return nil
	}

	voted, err := g.store.Exists(ctx, lastVotedKey(room, user))
	if err != nil {
		return fmt.Errorf("check vote marker: %w", err)
	}
	if voted {
		return deny("You can vote after 20 mins")
	}
	return nil
}

func (g *Guard) RecordVote(ctx context.Context, room, user string) error {
	return g.store.Set(ctx, lastVotedKey(room, user), "1", VoteCooldown)
}

// QueueLength returns the cached queue length of room, reseeding it from the
// durable count when the cache is missing or zero.
func (g *Guard) QueueLength(ctx context.Context, room string) (int, error) {
	n, _, err := kv.GetInt(ctx, g.store, queueLengthKey(room))
	if err != nil {
		return 0, fmt.Errorf("read queue length: %w", err)
	}
	if n > 0 {
		return n, nil
	}

	n, err = g.counter.CountActiveStreams(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("count active streams: %w", err)
	}
	return n, nil
}

// CanEnqueue checks whether user may add url to room.
func (g *Guard) CanEnqueue(ctx context.Context, room, user, url string, isHost bool) error {
	if isHost {
		return nil
	}

	added, err := g.store.Exists(ctx, lastAddedKey(room, user))
	if err != nil {
		return fmt.Errorf("check add marker: %w", err)
	}
	if added {
		return deny("You can add again after 20 min.")
	}

	dup, err := g.IsDuplicateRecently(ctx, room, url)
	if err != nil {
		return err
	}
	if dup {
		return deny("This song is blocked for 1 hour")
	}

	queueLen, err := g.QueueLength(ctx, room)
	if err != nil {
		return err
	}
	if queueLen >= MaxQueueLength {
		return deny("Queue limit reached")
	}

	return nil
}

func (g *Guard) IsDuplicateRecently(ctx context.Context, room, url string) (bool, error) {
	dup, err := g.store.Exists(ctx, duplicateKey(room, url))
	if err != nil {
		return false, fmt.Errorf("check duplicate marker: %w", err)
	}
	return dup, nil
}

// RecordEnqueue sets the duplicate and cooldown markers for an addition
// that has been stored and advances the cached queue length by one. A
// missing counter is reseeded from the durable count, which already includes
// the new entry.
func (g *Guard) RecordEnqueue(ctx context.Context, room, user, url string) error {
	if err := g.store.Set(ctx, duplicateKey(room, url), "1", DuplicateBlock); err != nil {
		return fmt.Errorf("set duplicate marker: %w", err)
	}
	if err := g.store.Set(ctx, lastAddedKey(room, user), "1", AddCooldown); err != nil {
		return fmt.Errorf("set add marker: %w", err)
	}

	_, ok, err := g.store.IncrExisting(ctx, queueLengthKey(room))
	if err != nil {
		return fmt.Errorf("increment queue length: %w", err)
	}
	if ok {
		return nil
	}

	n, err := g.counter.CountActiveStreams(ctx, room)
	if err != nil {
		return fmt.Errorf("count active streams: %w", err)
	}
	if err := g.store.Set(ctx, queueLengthKey(room), strconv.Itoa(n), 0); err != nil {
		return fmt.Errorf("set queue length: %w", err)
	}
	return nil
}

// NoteAdvance decrements the cached queue length after an entry is played.
func (g *Guard) NoteAdvance(ctx context.Context, room string) error {
	if _, err := g.store.DecrFloor(ctx, queueLengthKey(room)); err != nil {
		return fmt.Errorf("decrement queue length: %w", err)
	}
	return nil
}

// ResetQueue sets the cached queue length of room to zero.
func (g *Guard) ResetQueue(ctx context.Context, room string) error {
	return g.store.Set(ctx, queueLengthKey(room), "0", 0)
}
