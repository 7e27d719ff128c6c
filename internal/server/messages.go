package server

import (
	"encoding/json"
	"fmt"

	"github.com/npezzotti/go-jukebox/internal/jobs"
)

const (
	EventError        = "error"
	EventTokenUpdate  = "token-update"
	EventNotification = "notification"

	EventNewStream  = "new-stream"
	EventNewVote    = "new-vote"
	EventPlayNext   = "play-next"
	EventRemoveSong = "remove-song"
	EventEmptyQueue = "empty-queue"
	EventBoostSong  = "boost-song"
)

const (
	VoteUp   = "upvote"
	VoteDown = "downvote"
)

// ClientMessage is an intent sent by a client: {type, data}.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope of every event delivered to a client.
type ServerMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func roomEventType(event, roomId string) string {
	return fmt.Sprintf("%s/%s", event, roomId)
}

func newServerMessage(typ string, data any) *ServerMessage {
	msg := &ServerMessage{Type: typ}
	if data != nil {
		// payloads are plain structs and maps, marshalling cannot fail
		msg.Data, _ = json.Marshal(data)
	}
	return msg
}

func ErrorMessage(message string) *ServerMessage {
	return newServerMessage(EventError, MessageData{Message: message})
}

type MessageData struct {
	Message string `json:"message"`
}

type CastVote struct {
	StreamId string `json:"streamId"`
	Vote     string `json:"vote"`
}

type AddToQueue struct {
	Url string `json:"url"`
}

type BoostSong struct {
	StreamId string `json:"streamId"`
	Amount   int    `json:"amount"`
}

type RemoveSong struct {
	StreamId string `json:"streamId"`
}

type VoteEvent struct {
	Vote     string `json:"vote"`
	StreamId string `json:"streamId"`
	VotedBy  string `json:"votedBy"`
	SpaceId  string `json:"spaceId"`
	Delta    int    `json:"delta"`
	// Upvotes is the stream's total after the vote, omitted when it could
	// not be read back.
	Upvotes *int `json:"upvotes,omitempty"`
}

type BoostEvent struct {
	StreamId   string `json:"streamId"`
	Amount     int    `json:"amount"`
	PaidAmount int    `json:"paidAmount"`
}

type TokenUpdate struct {
	Tokens int `json:"tokens"`
}

type RemoveSongEvent struct {
	StreamId string `json:"streamId"`
	SpaceId  string `json:"spaceId"`
}

var hostOnly = map[jobs.Kind]string{
	jobs.KindPlayNext:   "You can't perform this action.",
	jobs.KindRemoveSong: "You can't remove the song. You are not the host",
	jobs.KindEmptyQueue: "You can't perform this action.",
}
