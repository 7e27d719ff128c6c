package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrConflict            = errors.New("record already exists")
	ErrInsufficientBalance = errors.New("insufficient tokens")
	ErrNotOwner            = errors.New("only the song owner can boost it")
	ErrAlreadyPlayed       = errors.New("cannot boost a song that has already been played")
	ErrQueueEmpty          = errors.New("no unplayed streams in space")
)

// Repository is the durable store behind the room coordinator. Every method
// that touches more than one row runs inside a single transaction.
type Repository interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id string) (User, error)

	CreateSpace(ctx context.Context, params CreateSpaceParams) (Space, error)
	GetSpace(ctx context.Context, id string) (Space, error)

	CreateStream(ctx context.Context, params CreateStreamParams) (Stream, error)
	GetStream(ctx context.Context, id string) (Stream, error)
	ListActiveStreams(ctx context.Context, spaceId, viewerId string) ([]StreamWithVotes, error)
	CountActiveStreams(ctx context.Context, spaceId string) (int, error)
	CountStreamsAddedSince(ctx context.Context, spaceId, addedBy string, since time.Time) (int, error)
	FindRecentStream(ctx context.Context, spaceId, extractedId string, since time.Time) (Stream, error)

	CreateUpvote(ctx context.Context, userId, streamId string) error
	DeleteUpvote(ctx context.Context, userId, streamId string) (bool, error)
	CountUpvotes(ctx context.Context, streamId string) (int, error)

	PlayNext(ctx context.Context, spaceId, userId string) (Stream, error)
	GetCurrentStream(ctx context.Context, spaceId string) (CurrentStream, error)
	BoostStream(ctx context.Context, params BoostParams) (BoostResult, error)
	RemoveStream(ctx context.Context, spaceId, streamId string) (RemoveResult, error)
	EmptyQueue(ctx context.Context, spaceId string) (int, error)

	ListTransactions(ctx context.Context, userId string) ([]Transaction, error)
}
