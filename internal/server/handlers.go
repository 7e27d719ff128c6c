package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/fanout"
	"github.com/npezzotti/go-jukebox/internal/jobs"
	"github.com/npezzotti/go-jukebox/internal/stats"
	"github.com/npezzotti/go-jukebox/internal/types"
)

func (co *Coordinator) applyCastVote(ctx context.Context, job jobs.Job) error {
	var in CastVote
	if err := job.Decode(&in); err != nil {
		return err
	}

	st, err := co.repo.GetStream(ctx, in.StreamId)
	if err != nil {
		return err
	}
	if st.SpaceId != job.RoomId {
		return errNotFound("Stream not found")
	}
	if st.Played {
		return errInvalidInput("Cannot vote on a song that has already been played")
	}

	delta := 0
	switch in.Vote {
	case VoteUp:
		err := co.repo.CreateUpvote(ctx, job.UserId, st.Id)
		switch {
		case err == nil:
			delta = 1
		case errors.Is(err, database.ErrConflict):
		default:
			return err
		}
	case VoteDown:
		deleted, err := co.repo.DeleteUpvote(ctx, job.UserId, st.Id)
		if err != nil {
			return err
		}
		if deleted {
			delta = -1
		}
	}

	if err := co.guard.RecordVote(ctx, job.RoomId, job.UserId); err != nil {
		co.log.Printf("record vote marker: %v", err)
	}

	ev := VoteEvent{
		Vote:     in.Vote,
		StreamId: st.Id,
		VotedBy:  job.UserId,
		SpaceId:  job.RoomId,
		Delta:    delta,
	}
	// the vote is stored at this point, so a failed recount still publishes
	if upvotes, err := co.repo.CountUpvotes(ctx, st.Id); err != nil {
		co.log.Printf("count upvotes of %q: %v", st.Id, err)
	} else {
		ev.Upvotes = &upvotes
	}

	co.publish(ctx, job.RoomId, EventNewVote, "", ev)
	return nil
}

func (co *Coordinator) applyAddToQueue(ctx context.Context, job jobs.Job) error {
	var in AddToQueue
	if err := job.Decode(&in); err != nil {
		return err
	}

	desc, err := co.resolver.Resolve(ctx, in.Url)
	if err != nil {
		return err
	}

	st, err := co.repo.CreateStream(ctx, database.CreateStreamParams{
		SpaceId:     job.RoomId,
		UserId:      job.UserId,
		AddedBy:     job.UserId,
		Url:         desc.Url,
		ExtractedId: desc.ExtractedId,
		Type:        desc.Type,
		Platform:    desc.Platform,
		Title:       desc.Title,
		SmallImg:    desc.SmallImg,
		BigImg:      desc.BigImg,
	})
	if err != nil {
		return err
	}

	if err := co.guard.RecordEnqueue(ctx, job.RoomId, job.UserId, in.Url); err != nil {
		co.log.Printf("record enqueue markers: %v", err)
	}

	co.publish(ctx, job.RoomId, EventNewStream, "", types.NewStream{Stream: types.FromStream(st)})
	return nil
}

func (co *Coordinator) applyBoostSong(ctx context.Context, job jobs.Job) error {
	var in BoostSong
	if err := job.Decode(&in); err != nil {
		return err
	}

	res, err := co.repo.BoostStream(ctx, database.BoostParams{
		SpaceId:  job.RoomId,
		StreamId: in.StreamId,
		UserId:   job.UserId,
		Amount:   in.Amount,
	})
	if err != nil {
		return err
	}

	co.publish(ctx, job.RoomId, EventBoostSong, "", BoostEvent{
		StreamId:   res.Stream.Id,
		Amount:     in.Amount,
		PaidAmount: res.Stream.PaidAmount,
	})
	co.publish(ctx, job.RoomId, EventTokenUpdate, job.UserId, TokenUpdate{Tokens: res.UserTokens})
	return nil
}

// requireHost re-checks host-only jobs at apply time; the host may have
// changed since the intent was accepted.
func (co *Coordinator) requireHost(job jobs.Job) error {
	if !co.registry.IsHost(job.RoomId, job.UserId) {
		return errUnauthorized(hostOnly[job.Kind])
	}
	return nil
}

func (co *Coordinator) applyPlayNext(ctx context.Context, job jobs.Job) error {
	if err := co.requireHost(job); err != nil {
		return err
	}

	st, err := co.repo.PlayNext(ctx, job.RoomId, job.UserId)
	if err != nil {
		return err
	}
	co.log.Printf("room %q now playing %q", job.RoomId, st.Id)

	if err := co.guard.NoteAdvance(ctx, job.RoomId); err != nil {
		co.log.Printf("note advance: %v", err)
	}

	co.publish(ctx, job.RoomId, EventPlayNext, "", nil)
	return nil
}

func (co *Coordinator) applyRemoveSong(ctx context.Context, job jobs.Job) error {
	if err := co.requireHost(job); err != nil {
		return err
	}

	var in RemoveSong
	if err := job.Decode(&in); err != nil {
		return err
	}

	res, err := co.repo.RemoveStream(ctx, job.RoomId, in.StreamId)
	if err != nil {
		return err
	}

	owner := res.Stream.AddedBy
	co.publish(ctx, job.RoomId, EventNotification, owner, MessageData{Message: removalNotice(res)})
	if res.Refunded > 0 {
		co.publish(ctx, job.RoomId, EventTokenUpdate, owner, TokenUpdate{Tokens: res.OwnerTokens})
	}
	co.publish(ctx, job.RoomId, EventRemoveSong, "", RemoveSongEvent{StreamId: res.Stream.Id, SpaceId: job.RoomId})
	return nil
}

func removalNotice(res database.RemoveResult) string {
	msg := fmt.Sprintf("Your song %q has been removed by the host", res.Stream.Title)
	if res.Refunded > 0 {
		msg += fmt.Sprintf(". %d tokens have been refunded to your account", res.Refunded)
	}
	return msg
}

func (co *Coordinator) applyEmptyQueue(ctx context.Context, job jobs.Job) error {
	if err := co.requireHost(job); err != nil {
		return err
	}

	n, err := co.repo.EmptyQueue(ctx, job.RoomId)
	if err != nil {
		return err
	}
	co.log.Printf("room %q cleared %d streams", job.RoomId, n)

	if err := co.guard.ResetQueue(ctx, job.RoomId); err != nil {
		co.log.Printf("reset queue length: %v", err)
	}

	co.publish(ctx, job.RoomId, EventEmptyQueue, "", nil)
	return nil
}

// publish sends an applied result to every process serving roomId. A
// failure here is logged only; the mutation is already durable and clients
// recover by refetching room state.
func (co *Coordinator) publish(ctx context.Context, roomId, typ, target string, data any) {
	ev, err := fanout.NewEvent(typ, data)
	if err != nil {
		co.log.Printf("build %s event: %v", typ, err)
		return
	}
	ev.Target = target

	if err := co.bus.Publish(ctx, roomId, ev); err != nil {
		co.log.Printf("publish %s to room %q: %v", typ, roomId, err)
		return
	}
	co.stats.Incr(stats.EventsPublished)
}

// PublishNewStream announces a stream created outside the job pipeline.
func (co *Coordinator) PublishNewStream(ctx context.Context, st database.Stream) {
	co.publish(ctx, st.SpaceId, EventNewStream, "", types.NewStream{Stream: types.FromStream(st)})
}
