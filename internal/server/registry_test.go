package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-jukebox/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, userId string) *Client {
	t.Helper()
	return &Client{
		userId: userId,
		log:    testutil.TestLogger(t),
		send:   make(chan *ServerMessage, 16),
		stop:   make(chan struct{}),
	}
}

func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestRegistry_Join(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), HostPolicy{AllowReassignment: true})

	c1 := newTestClient(t, "alice")
	c2 := newTestClient(t, "alice")

	assert.True(t, r.Join("space-1", "alice", c1, "tok", "alice"), "expected first join to create the room")
	assert.False(t, r.Join("space-1", "alice", c2, "tok", "alice"), "expected second join to reuse the room")

	assert.Equal(t, 1, r.MemberCount("space-1"))
	assert.Equal(t, 2, r.ConnCount("alice"))
	assert.Equal(t, 1, r.RoomCount())
	assert.True(t, r.IsMember("space-1", "alice"))
	assert.True(t, r.IsHost("space-1", "alice"))

	roomId, ok := r.RoomOf(c2)
	assert.True(t, ok)
	assert.Equal(t, "space-1", roomId)

	// joining again with the same connection does not duplicate it
	r.Join("space-1", "alice", c1, "", "")
	assert.Equal(t, 2, r.ConnCount("alice"))
	assert.Len(t, r.Clients(), 2)
}

func TestRegistry_HostPolicy(t *testing.T) {
	tcases := []struct {
		name     string
		policy   HostPolicy
		hints    []string
		expected string
	}{
		{
			name:     "reassignment allowed",
			policy:   HostPolicy{AllowReassignment: true},
			hints:    []string{"alice", "bob"},
			expected: "bob",
		},
		{
			name:     "first hint sticks",
			policy:   HostPolicy{AllowReassignment: false},
			hints:    []string{"alice", "bob"},
			expected: "alice",
		},
		{
			name:     "empty hint keeps host",
			policy:   HostPolicy{AllowReassignment: true},
			hints:    []string{"alice", ""},
			expected: "alice",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry(testutil.TestLogger(t), tc.policy)
			for i, hint := range tc.hints {
				user := []string{"u1", "u2", "u3"}[i]
				r.Join("space-1", user, newTestClient(t, user), "", hint)
			}

			host, ok := r.Host("space-1")
			assert.True(t, ok)
			assert.Equal(t, tc.expected, host)
		})
	}

	t.Run("no host", func(t *testing.T) {
		r := NewRegistry(testutil.TestLogger(t), HostPolicy{})
		r.Join("space-1", "u1", newTestClient(t, "u1"), "", "")

		_, ok := r.Host("space-1")
		assert.False(t, ok)
		assert.False(t, r.IsHost("space-1", "u1"))
	})
}

func TestRegistry_Leave(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), HostPolicy{})

	c1 := newTestClient(t, "alice")
	c2 := newTestClient(t, "alice")
	r.Join("space-1", "alice", c1, "", "")
	r.Join("space-1", "alice", c2, "", "")

	roomId, dropped := r.Leave(c1)
	assert.Equal(t, "space-1", roomId)
	assert.False(t, dropped, "expected member to stay while a connection remains")
	assert.True(t, r.IsMember("space-1", "alice"))
	assert.Equal(t, 1, r.ConnCount("alice"))

	roomId, dropped = r.Leave(c2)
	assert.Equal(t, "space-1", roomId)
	assert.True(t, dropped)
	assert.False(t, r.IsMember("space-1", "alice"))
	assert.Equal(t, 0, r.MemberCount("space-1"))

	roomId, dropped = r.Leave(c2)
	assert.Empty(t, roomId, "expected unknown connection to be ignored")
	assert.False(t, dropped)

	// the room itself outlives its members
	assert.Equal(t, 1, r.RoomCount())
}

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), HostPolicy{})

	alice1 := newTestClient(t, "alice")
	alice2 := newTestClient(t, "alice")
	bob := newTestClient(t, "bob")
	carol := newTestClient(t, "carol")

	r.Join("space-1", "alice", alice1, "", "")
	r.Join("space-1", "alice", alice2, "", "")
	r.Join("space-1", "bob", bob, "", "")
	r.Join("space-2", "carol", carol, "", "")

	n := r.Broadcast("space-1", ErrorMessage("hello"))
	assert.Equal(t, 3, n)
	assert.Len(t, drain(alice1), 1)
	assert.Len(t, drain(alice2), 1)
	assert.Len(t, drain(bob), 1)
	assert.Empty(t, drain(carol), "expected other rooms to be untouched")

	assert.Equal(t, 0, r.Broadcast("missing", ErrorMessage("hello")))

	n = r.BroadcastToUser("alice", ErrorMessage("only you"))
	assert.Equal(t, 2, n)
	assert.Len(t, drain(alice1), 1)
	assert.Len(t, drain(alice2), 1)
	assert.Empty(t, drain(bob))

	assert.Equal(t, 0, r.BroadcastToUser("nobody", ErrorMessage("x")))
}

func TestRegistry_SweepIdle(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), HostPolicy{})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	c := newTestClient(t, "alice")
	r.Join("empty", "alice", c, "", "")
	r.Leave(c)
	r.Join("busy", "bob", newTestClient(t, "bob"), "", "")

	assert.Empty(t, r.SweepIdle(time.Minute), "expected recently active rooms to be kept")

	now = now.Add(2 * time.Minute)
	removed := r.SweepIdle(time.Minute)
	assert.Equal(t, []string{"empty"}, removed)
	assert.Equal(t, 1, r.RoomCount())
}
