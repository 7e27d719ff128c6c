package jobs

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindCastVote   Kind = "cast-vote"
	KindAddToQueue Kind = "add-to-queue"
	KindBoostSong  Kind = "boost-song"
	KindPlayNext   Kind = "play-next"
	KindRemoveSong Kind = "remove-song"
	KindEmptyQueue Kind = "empty-queue"
)

// Job is one validated room mutation waiting to be applied.
type Job struct {
	Id        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	RoomId    string          `json:"roomId"`
	UserId    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`

	raw string
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newJobId returns a ULID; ids from one process sort in creation order.
func newJobId() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

func NewJob(kind Kind, roomId, userId string, payload any) (Job, error) {
	job := Job{
		Id:        newJobId(),
		Kind:      kind,
		RoomId:    roomId,
		UserId:    userId,
		CreatedAt: time.Now().UTC(),
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Job{}, err
		}
		job.Payload = b
	}

	return job, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, v)
}
