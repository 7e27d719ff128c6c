package server

import (
	"log"
	"slices"
	"sync"
	"time"
)

// HostPolicy decides how a room's host changes across joins.
type HostPolicy struct {
	// AllowReassignment lets every join that carries a host hint overwrite
	// the recorded host. When false the first non-empty hint sticks.
	AllowReassignment bool
}

// Room is a process-local view of a space: who is connected here and who
// the host is.
type Room struct {
	id         string
	hostId     string
	members    map[string]*Member
	lastActive time.Time
}

// Member is one user on this process. Its connections are shared by every
// room the user joined here.
type Member struct {
	userId string
	conns  []*Client
	token  string
}

type Registry struct {
	mu       sync.RWMutex
	log      *log.Logger
	policy   HostPolicy
	rooms    map[string]*Room
	members  map[string]*Member
	connRoom map[*Client]string
	now      func() time.Time
}

func NewRegistry(logger *log.Logger, policy HostPolicy) *Registry {
	return &Registry{
		log:      logger,
		policy:   policy,
		rooms:    make(map[string]*Room),
		members:  make(map[string]*Member),
		connRoom: make(map[*Client]string),
		now:      time.Now,
	}
}

// Join registers c for userId in roomId, creating the room on first use.
// It reports whether the room was created by this call.
func (r *Registry) Join(roomId, userId string, c *Client, token, hostHint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	created := !ok
	if created {
		room = &Room{id: roomId, members: make(map[string]*Member)}
		r.rooms[roomId] = room
	}

	member, ok := r.members[userId]
	if !ok {
		member = &Member{userId: userId, token: token}
		r.members[userId] = member
	} else if token != "" {
		member.token = token
	}

	if !slices.Contains(member.conns, c) {
		member.conns = append(member.conns, c)
	}

	r.connRoom[c] = roomId
	room.members[userId] = member
	room.lastActive = r.now()

	if hostHint != "" && (room.hostId == "" || r.policy.AllowReassignment) {
		if room.hostId != "" && room.hostId != hostHint {
			r.log.Printf("room %q host changed from %q to %q", roomId, room.hostId, hostHint)
		}
		room.hostId = hostHint
	}

	return created
}

// Leave removes exactly one connection. When it was the member's last one
// the member is dropped from the registry and from every room.
func (r *Registry) Leave(c *Client) (roomId string, dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.connRoom[c]
	if !ok {
		return "", false
	}
	delete(r.connRoom, c)

	if room, ok := r.rooms[roomId]; ok {
		room.lastActive = r.now()
	}

	member, ok := r.members[c.userId]
	if !ok {
		return roomId, false
	}

	member.conns = slices.DeleteFunc(member.conns, func(other *Client) bool { return other == c })
	if len(member.conns) > 0 {
		return roomId, false
	}

	delete(r.members, member.userId)
	for _, room := range r.rooms {
		if room.members[member.userId] == member {
			delete(room.members, member.userId)
		}
	}

	return roomId, true
}

// RoomOf returns the room c joined.
func (r *Registry) RoomOf(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomId, ok := r.connRoom[c]
	return roomId, ok
}

// Broadcast queues msg on every local connection of every member of roomId
// and returns how many connections accepted it.
func (r *Registry) Broadcast(roomId string, msg *ServerMessage) int {
	r.mu.RLock()
	room, ok := r.rooms[roomId]
	if !ok {
		r.mu.RUnlock()
		return 0
	}

	var targets []*Client
	for _, m := range room.members {
		targets = append(targets, m.conns...)
	}
	r.mu.RUnlock()

	return deliver(targets, msg)
}

func (r *Registry) BroadcastToUser(userId string, msg *ServerMessage) int {
	r.mu.RLock()
	member, ok := r.members[userId]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	targets := slices.Clone(member.conns)
	r.mu.RUnlock()

	return deliver(targets, msg)
}

func deliver(targets []*Client, msg *ServerMessage) int {
	n := 0
	for _, c := range targets {
		if c.queueMessage(msg) {
			n++
		}
	}
	return n
}

func (r *Registry) Host(roomId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomId]
	if !ok || room.hostId == "" {
		return "", false
	}
	return room.hostId, true
}

// IsHost reports whether userId is the recorded host of roomId.
func (r *Registry) IsHost(roomId, userId string) bool {
	host, ok := r.Host(roomId)
	return ok && host == userId
}

func (r *Registry) IsMember(roomId, userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomId]
	if !ok {
		return false
	}
	_, ok = room.members[userId]
	return ok
}

func (r *Registry) MemberCount(roomId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if room, ok := r.rooms[roomId]; ok {
		return len(room.members)
	}
	return 0
}

func (r *Registry) ConnCount(userId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.members[userId]; ok {
		return len(m.conns)
	}
	return 0
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Clients returns every registered connection.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.connRoom))
	for c := range r.connRoom {
		clients = append(clients, c)
	}
	return clients
}

// SweepIdle forgets rooms that have had no members for at least maxIdle and
// returns their ids. Rooms are otherwise kept for the life of the process.
func (r *Registry) SweepIdle(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var removed []string
	for id, room := range r.rooms {
		if len(room.members) > 0 || room.lastActive.After(cutoff) {
			continue
		}
		delete(r.rooms, id)
		removed = append(removed, id)
	}
	return removed
}
