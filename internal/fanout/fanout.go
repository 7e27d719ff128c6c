package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrClosed = errors.New("bus closed")

// Event is what travels between processes. Target, when set, restricts local
// delivery to the connections of that user.
type Event struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Target string          `json:"target,omitempty"`
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(typ string, data any) (Event, error) {
	ev := Event{Type: typ}
	if data == nil {
		return ev, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	ev.Data = b
	return ev, nil
}

type Handler func(channel string, ev Event)

// Bus delivers events published on a channel to every process subscribed to
// it. Delivery is best effort and at most once.
type Bus interface {
	Subscribe(ctx context.Context, channel string, h Handler) error
	Unsubscribe(ctx context.Context, channel string) error
	Publish(ctx context.Context, channel string, ev Event) error
	Close() error
}

type RedisBus struct {
	rdb    *redis.Client
	log    *log.Logger
	mu     sync.Mutex
	subs   map[string]*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

func NewRedisBus(rdb *redis.Client, logger *log.Logger) *RedisBus {
	return &RedisBus{
		rdb:  rdb,
		log:  logger,
		subs: make(map[string]*redis.PubSub),
	}
}

// Subscribe starts delivering events on channel to h. Subscribing to a
// channel this bus already listens on is a no-op.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, ok := b.subs[channel]; ok {
		return nil
	}

	ps := b.rdb.Subscribe(ctx, channel)
	// wait for the subscription to be confirmed so no publish after this
	// call returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribe %q: %w", channel, err)
	}

	b.subs[channel] = ps
	b.wg.Add(1)
	go b.dispatch(channel, ps.Channel(), h)

	return nil
}

func (b *RedisBus) dispatch(channel string, msgs <-chan *redis.Message, h Handler) {
	defer b.wg.Done()

	for msg := range msgs {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.log.Printf("discarding malformed event on %q: %v", channel, err)
			continue
		}
		h(msg.Channel, ev)
	}
}

func (b *RedisBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	ps, ok := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	return ps.Close()
}

func (b *RedisBus) Publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %q: %w", channel, err)
	}
	return nil
}

// Close drops every subscription and waits for the dispatch goroutines to
// return.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var errs []error
	for channel, ps := range b.subs {
		if err := ps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", channel, err))
		}
		delete(b.subs, channel)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return errors.Join(errs...)
}
