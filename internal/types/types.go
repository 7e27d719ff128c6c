package types

import (
	"time"

	"github.com/npezzotti/go-jukebox/internal/database"
)

type User struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Tokens int    `json:"tokens"`
}

type Space struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	HostId    string    `json:"hostId"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type Stream struct {
	Id          string     `json:"id"`
	SpaceId     string     `json:"spaceId"`
	UserId      string     `json:"userId"`
	AddedBy     string     `json:"addedBy"`
	Url         string     `json:"url"`
	ExtractedId string     `json:"extractedId"`
	Type        string     `json:"type"`
	Platform    string     `json:"platform"`
	Title       string     `json:"title"`
	SmallImg    string     `json:"smallImg"`
	BigImg      string     `json:"bigImg"`
	PaidAmount  int        `json:"paidAmount"`
	Played      bool       `json:"played"`
	PlayedTs    *time.Time `json:"playedTs"`
	CreatedAt   time.Time  `json:"createAt"`
}

// QueuedStream is a stream as listed in a room's queue, seen by one viewer.
type QueuedStream struct {
	Stream
	Upvotes     int  `json:"upvotes"`
	HaveUpvoted bool `json:"haveUpvoted"`
}

// NewStream is the payload of a new-stream event.
type NewStream struct {
	Stream
	Upvotes    int  `json:"upvotes"`
	HasUpvoted bool `json:"hasUpvoted"`
}

type CurrentStream struct {
	Id       string  `json:"id"`
	SpaceId  string  `json:"spaceId"`
	UserId   string  `json:"userId"`
	StreamId *string `json:"streamId"`
	Stream   *Stream `json:"stream"`
}

type SpaceState struct {
	Streams      []QueuedStream `json:"streams"`
	ActiveStream *CurrentStream `json:"activeStream"`
	HostId       string         `json:"hostId"`
	IsCreator    bool           `json:"isCreator"`
	SpaceName    string         `json:"spaceName"`
}

type Transaction struct {
	Id          string    `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FromSpace(sp database.Space) Space {
	return Space{
		Id:        sp.Id,
		Name:      sp.Name,
		HostId:    sp.HostId,
		IsActive:  sp.IsActive,
		CreatedAt: sp.CreatedAt,
	}
}

func FromStream(st database.Stream) Stream {
	return Stream{
		Id:          st.Id,
		SpaceId:     st.SpaceId,
		UserId:      st.UserId,
		AddedBy:     st.AddedBy,
		Url:         st.Url,
		ExtractedId: st.ExtractedId,
		Type:        string(st.Type),
		Platform:    string(st.Platform),
		Title:       st.Title,
		SmallImg:    st.SmallImg,
		BigImg:      st.BigImg,
		PaidAmount:  st.PaidAmount,
		Played:      st.Played,
		PlayedTs:    st.PlayedTs,
		CreatedAt:   st.CreatedAt,
	}
}

func FromCurrentStream(cur database.CurrentStream) *CurrentStream {
	res := &CurrentStream{
		Id:      cur.Id,
		SpaceId: cur.SpaceId,
		UserId:  cur.UserId,
	}
	if cur.StreamId != "" {
		id := cur.StreamId
		res.StreamId = &id
	}
	if cur.Stream != nil {
		st := FromStream(*cur.Stream)
		res.Stream = &st
	}
	return res
}

func FromTransaction(t database.Transaction) Transaction {
	return Transaction{
		Id:          t.Id,
		Amount:      t.Amount,
		Type:        string(t.Type),
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}
