package database

import "time"

type StreamType string

const (
	StreamTypeVideo StreamType = "VIDEO"
	StreamTypeAudio StreamType = "AUDIO"
)

type Platform string

const (
	PlatformYouTube Platform = "YOUTUBE"
	PlatformSpotify Platform = "SPOTIFY"
)

type TransactionType string

const (
	TransactionBoostDebit  TransactionType = "BOOST_DEBIT"
	TransactionBoostRefund TransactionType = "BOOST_REFUND"
)

type User struct {
	Id        string
	Email     string
	Name      string
	Tokens    int
	CreatedAt time.Time
}

type Space struct {
	Id        string
	Name      string
	HostId    string
	IsActive  bool
	CreatedAt time.Time
}

type Stream struct {
	Id          string
	SpaceId     string
	UserId      string
	AddedBy     string
	Url         string
	ExtractedId string
	Type        StreamType
	Platform    Platform
	Title       string
	SmallImg    string
	BigImg      string
	PaidAmount  int
	Played      bool
	PlayedTs    *time.Time
	CreatedAt   time.Time
}

// StreamWithVotes is a stream together with its live upvote count and
// whether the viewing user holds one of those upvotes.
type StreamWithVotes struct {
	Stream
	Upvotes     int
	HaveUpvoted bool
}

type Upvote struct {
	Id       string
	UserId   string
	StreamId string
}

type CurrentStream struct {
	Id       string
	SpaceId  string
	UserId   string
	StreamId string
	Stream   *Stream
}

type Transaction struct {
	Id          string
	UserId      string
	Amount      int
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

type CreateSpaceParams struct {
	Id     string
	Name   string
	HostId string
}

type CreateStreamParams struct {
	SpaceId     string
	UserId      string
	AddedBy     string
	Url         string
	ExtractedId string
	Type        StreamType
	Platform    Platform
	Title       string
	SmallImg    string
	BigImg      string
}

type BoostParams struct {
	SpaceId  string
	StreamId string
	UserId   string
	Amount   int
}

type BoostResult struct {
	Stream     Stream
	UserTokens int
}

// RemoveResult describes a deleted stream. Refunded is zero when the stream
// carried no paid amount, in which case OwnerTokens is not populated.
type RemoveResult struct {
	Stream      Stream
	Refunded    int
	OwnerTokens int
}
