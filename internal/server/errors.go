package server

import (
	"errors"

	"github.com/npezzotti/go-jukebox/internal/database"
	"github.com/npezzotti/go-jukebox/internal/metadata"
	"github.com/npezzotti/go-jukebox/internal/ratelimit"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderFailure     = errors.New("provider failure")
	ErrStorageFailure      = errors.New("storage failure")
)

// Error is a rejected mutation. Message is shown to the requesting user; Kind
// is one of the sentinel errors above and matches through errors.Is.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func errUnauthorized(msg string) *Error {
	return newError(ErrUnauthorized, msg, nil)
}

func errInvalidInput(msg string) *Error {
	return newError(ErrInvalidInput, msg, nil)
}

func errNotFound(msg string) *Error {
	return newError(ErrNotFound, msg, nil)
}

// toError maps errors from the guard, the resolver and the repository onto
// the rejection taxonomy.
func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var denied *ratelimit.DeniedError
	if errors.As(err, &denied) {
		return newError(ErrRateLimited, denied.Reason, nil)
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		return newError(ErrNotFound, "Stream not found", err)
	case errors.Is(err, database.ErrQueueEmpty):
		return newError(ErrNotFound, "Please add video in queue", err)
	case errors.Is(err, database.ErrInsufficientBalance):
		return newError(ErrInsufficientBalance, "Insufficient tokens", err)
	case errors.Is(err, database.ErrNotOwner):
		return newError(ErrUnauthorized, "Only the song owner can boost it", err)
	case errors.Is(err, database.ErrAlreadyPlayed):
		return newError(ErrInvalidInput, "Cannot boost a song that has already been played", err)
	case errors.Is(err, metadata.ErrInvalidURL):
		return newError(ErrInvalidInput, "Invalid URL", err)
	case errors.Is(err, metadata.ErrNotFound):
		return newError(ErrNotFound, "Video not found", err)
	case errors.Is(err, metadata.ErrProviderUnavailable):
		return newError(ErrProviderFailure, "Could not fetch song details, try again later", err)
	default:
		return newError(ErrStorageFailure, "Something went wrong, please try again", err)
	}
}
