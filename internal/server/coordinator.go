package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/fanout"
	"github.com/npezzotti/go-jukebox/internal/jobs"
	"github.com/npezzotti/go-jukebox/internal/metadata"
	"github.com/npezzotti/go-jukebox/internal/ratelimit"
	"github.com/npezzotti/go-jukebox/internal/stats"
)

type MetadataResolver interface {
	Resolve(ctx context.Context, url string) (metadata.Descriptor, error)
}

type CoordinatorConfig struct {
	Repo     database.Repository
	Bus      fanout.Bus
	Guard    *ratelimit.Guard
	Resolver MetadataResolver
	Queue    jobs.Queue
	Stats    stats.StatsProvider
	Workers  int
	Policy   HostPolicy
	// IdleRoomTTL enables eviction of rooms that stayed empty this long.
	// Zero keeps rooms for the life of the process.
	IdleRoomTTL time.Duration
}

// Coordinator accepts intents from local connections, checks them, queues
// them as jobs and fans the applied results out to every process serving
// the room.
type Coordinator struct {
	log         *log.Logger
	registry    *Registry
	repo        database.Repository
	bus         fanout.Bus
	guard       *ratelimit.Guard
	resolver    MetadataResolver
	pipeline    *jobs.Pipeline
	stats       stats.StatsProvider
	idleRoomTTL time.Duration

	// serializes room creation against idle eviction so a bus
	// subscription is never dropped for a live room
	subMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCoordinator(logger *log.Logger, cfg CoordinatorConfig) *Coordinator {
	co := &Coordinator{
		log:         logger,
		registry:    NewRegistry(logger, cfg.Policy),
		repo:        cfg.Repo,
		bus:         cfg.Bus,
		guard:       cfg.Guard,
		resolver:    cfg.Resolver,
		pipeline:    jobs.NewPipeline(logger, cfg.Queue, cfg.Stats, cfg.Workers),
		stats:       cfg.Stats,
		idleRoomTTL: cfg.IdleRoomTTL,
	}

	co.pipeline.Handle(jobs.KindCastVote, co.applyCastVote)
	co.pipeline.Handle(jobs.KindAddToQueue, co.applyAddToQueue)
	co.pipeline.Handle(jobs.KindBoostSong, co.applyBoostSong)
	co.pipeline.Handle(jobs.KindPlayNext, co.applyPlayNext)
	co.pipeline.Handle(jobs.KindRemoveSong, co.applyRemoveSong)
	co.pipeline.Handle(jobs.KindEmptyQueue, co.applyEmptyQueue)
	co.pipeline.OnError = func(job jobs.Job, err error) {
		co.reject(job.UserId, err)
	}

	return co
}

func (co *Coordinator) Registry() *Registry {
	return co.registry
}

// Join registers a new connection in a room and makes sure this process
// listens on the room's bus channel.
func (co *Coordinator) Join(ctx context.Context, roomId, userId string, c *Client, token, hostHint string) error {
	co.subMu.Lock()
	defer co.subMu.Unlock()

	created := co.registry.Join(roomId, userId, c, token, hostHint)
	co.stats.Incr(stats.NumActiveClients)
	if created {
		co.log.Printf("created room %q", roomId)
		co.stats.Incr(stats.NumActiveRooms)
	}

	// no-op when already subscribed, retried on the next join if it fails
	if err := co.bus.Subscribe(ctx, roomId, co.onBusEvent); err != nil {
		co.log.Printf("subscribe room %q: %v", roomId, err)
		return err
	}

	return nil
}

func (co *Coordinator) Leave(c *Client) {
	roomId, dropped := co.registry.Leave(c)
	if roomId == "" {
		return
	}

	co.stats.Decr(stats.NumActiveClients)
	if dropped {
		co.log.Printf("user %q left, no connections remaining", c.userId)
	}
}

func (co *Coordinator) onBusEvent(roomId string, ev fanout.Event) {
	if ev.Target != "" {
		co.registry.BroadcastToUser(ev.Target, &ServerMessage{Type: ev.Type, Data: ev.Data})
		return
	}

	co.registry.Broadcast(roomId, &ServerMessage{Type: roomEventType(ev.Type, roomId), Data: ev.Data})
}

// HandleIntent runs the guard phase for msg and queues the mutation.
// Rejections are sent only to the requesting user.
func (co *Coordinator) HandleIntent(ctx context.Context, c *Client, msg *ClientMessage) {
	roomId, ok := co.registry.RoomOf(c)
	if !ok {
		c.queueMessage(ErrorMessage("Join a space first"))
		return
	}

	if err := co.submit(ctx, roomId, c.userId, msg); err != nil {
		co.reject(c.userId, err)
	}
}

func (co *Coordinator) submit(ctx context.Context, roomId, userId string, msg *ClientMessage) error {
	isHost := co.registry.IsHost(roomId, userId)
	kind := jobs.Kind(msg.Type)

	var payload any
	switch kind {
	case jobs.KindCastVote:
		var in CastVote
		if err := decode(msg.Data, &in); err != nil {
			return err
		}
		if in.StreamId == "" || (in.Vote != VoteUp && in.Vote != VoteDown) {
			return errInvalidInput("Invalid vote")
		}
		if err := co.guard.CanVote(ctx, roomId, userId, isHost); err != nil {
			return err
		}
		payload = in

	case jobs.KindAddToQueue:
		var in AddToQueue
		if err := decode(msg.Data, &in); err != nil {
			return err
		}
		if _, err := metadata.Parse(in.Url); err != nil {
			return errInvalidInput("Invalid YouTube URL")
		}
		if err := co.guard.CanEnqueue(ctx, roomId, userId, in.Url, isHost); err != nil {
			return err
		}
		payload = in

	case jobs.KindBoostSong:
		var in BoostSong
		if err := decode(msg.Data, &in); err != nil {
			return err
		}
		if in.StreamId == "" {
			return errInvalidInput("Invalid stream")
		}
		if in.Amount <= 0 {
			return errInvalidInput("Boost amount must be positive")
		}
		payload = in

	case jobs.KindRemoveSong:
		var in RemoveSong
		if err := decode(msg.Data, &in); err != nil {
			return err
		}
		if !isHost {
			return errUnauthorized(hostOnly[kind])
		}
		if in.StreamId == "" {
			return errInvalidInput("Invalid stream")
		}
		payload = in

	case jobs.KindPlayNext, jobs.KindEmptyQueue:
		if !isHost {
			return errUnauthorized(hostOnly[kind])
		}

	default:
		return errInvalidInput("Unknown message type")
	}

	if _, err := co.pipeline.Submit(ctx, kind, roomId, userId, payload); err != nil {
		co.log.Printf("submit %s for room %q: %v", kind, roomId, err)
		return newError(ErrStorageFailure, "Something went wrong, please try again", err)
	}
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errInvalidInput("Missing message data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newError(ErrInvalidInput, "Invalid message format", err)
	}
	return nil
}

// reject delivers err to every local connection of userId as an error event.
func (co *Coordinator) reject(userId string, err error) {
	e := toError(err)
	if e.Err != nil {
		co.log.Printf("rejecting request from %q: %v", userId, e)
	}
	co.registry.BroadcastToUser(userId, ErrorMessage(e.Message))
}

// Run applies queued jobs until ctx is cancelled or Shutdown is called.
func (co *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	co.runMu.Lock()
	co.cancel = cancel
	co.done = make(chan struct{})
	done := co.done
	co.runMu.Unlock()
	defer close(done)

	if co.idleRoomTTL > 0 {
		go co.sweepIdleRooms(ctx)
	}

	return co.pipeline.Run(ctx)
}

func (co *Coordinator) sweepIdleRooms(ctx context.Context) {
	ticker := time.NewTicker(co.idleRoomTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.evictIdleRooms(ctx)
		}
	}
}

func (co *Coordinator) evictIdleRooms(ctx context.Context) {
	co.subMu.Lock()
	defer co.subMu.Unlock()

	for _, roomId := range co.registry.SweepIdle(co.idleRoomTTL) {
		co.log.Printf("evicting idle room %q", roomId)
		co.stats.Decr(stats.NumActiveRooms)
		if err := co.bus.Unsubscribe(ctx, roomId); err != nil {
			co.log.Printf("unsubscribe room %q: %v", roomId, err)
		}
	}
}

// Shutdown closes every connection, stops the workers and waits for them
// until ctx expires.
func (co *Coordinator) Shutdown(ctx context.Context) error {
	co.log.Println("received shutdown signal")
	for _, c := range co.registry.Clients() {
		c.stopClient()
	}

	co.runMu.Lock()
	cancel, done := co.cancel, co.done
	co.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
