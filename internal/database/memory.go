package database

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps every record in process memory. It backs the
// "memory" storage driver and the coordinator tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[string]*User
	spaces       map[string]*Space
	streams      map[string]*Stream
	order        []string // stream ids in insertion order
	upvotes      map[string]map[string]struct{}
	current      map[string]*CurrentStream
	transactions []Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:   make(map[string]*User),
		spaces:  make(map[string]*Space),
		streams: make(map[string]*Stream),
		upvotes: make(map[string]map[string]struct{}),
		current: make(map[string]*CurrentStream),
	}
}

// PutUser inserts or replaces a user record.
func (r *MemoryRepository) PutUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.Id] = &u
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (r *MemoryRepository) CreateSpace(ctx context.Context, params CreateSpaceParams) (Space, error) {
	if err := ctx.Err(); err != nil {
		return Space{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if params.Id == "" {
		params.Id = uuid.NewString()
	}
	if _, ok := r.spaces[params.Id]; ok {
		return Space{}, ErrConflict
	}

	sp := &Space{
		Id:        params.Id,
		Name:      params.Name,
		HostId:    params.HostId,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	r.spaces[sp.Id] = sp
	return *sp, nil
}

func (r *MemoryRepository) GetSpace(ctx context.Context, id string) (Space, error) {
	if err := ctx.Err(); err != nil {
		return Space{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sp, ok := r.spaces[id]
	if !ok {
		return Space{}, ErrNotFound
	}
	return *sp, nil
}

func (r *MemoryRepository) CreateStream(ctx context.Context, params CreateStreamParams) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st := &Stream{
		Id:          uuid.NewString(),
		SpaceId:     params.SpaceId,
		UserId:      params.UserId,
		AddedBy:     params.AddedBy,
		Url:         params.Url,
		ExtractedId: params.ExtractedId,
		Type:        params.Type,
		Platform:    params.Platform,
		Title:       params.Title,
		SmallImg:    params.SmallImg,
		BigImg:      params.BigImg,
		CreatedAt:   time.Now().UTC(),
	}
	r.streams[st.Id] = st
	r.order = append(r.order, st.Id)
	return *st, nil
}

func (r *MemoryRepository) GetStream(ctx context.Context, id string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.streams[id]
	if !ok {
		return Stream{}, ErrNotFound
	}
	return *st, nil
}

// activeLocked returns the unplayed streams of a space in queue order. The
// caller must hold r.mu.
func (r *MemoryRepository) activeLocked(spaceId string) []*Stream {
	active := make([]*Stream, 0)
	for _, id := range r.order {
		st, ok := r.streams[id]
		if !ok || st.SpaceId != spaceId || st.Played {
			continue
		}
		active = append(active, st)
	}

	// insertion order already encodes created asc
	slices.SortStableFunc(active, func(a, b *Stream) int {
		if c := cmp.Compare(len(r.upvotes[b.Id]), len(r.upvotes[a.Id])); c != 0 {
			return c
		}
		return cmp.Compare(b.PaidAmount, a.PaidAmount)
	})
	return active
}

func (r *MemoryRepository) ListActiveStreams(ctx context.Context, spaceId, viewerId string) ([]StreamWithVotes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	active := r.activeLocked(spaceId)
	streams := make([]StreamWithVotes, 0, len(active))
	for _, st := range active {
		_, voted := r.upvotes[st.Id][viewerId]
		streams = append(streams, StreamWithVotes{
			Stream:      *st,
			Upvotes:     len(r.upvotes[st.Id]),
			HaveUpvoted: voted,
		})
	}
	return streams, nil
}

func (r *MemoryRepository) CountActiveStreams(ctx context.Context, spaceId string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, st := range r.streams {
		if st.SpaceId == spaceId && !st.Played {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CountStreamsAddedSince(ctx context.Context, spaceId, addedBy string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, st := range r.streams {
		if st.SpaceId == spaceId && st.AddedBy == addedBy && !st.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) FindRecentStream(ctx context.Context, spaceId, extractedId string, since time.Time) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		st, ok := r.streams[r.order[i]]
		if !ok {
			continue
		}
		if st.SpaceId == spaceId && st.ExtractedId == extractedId && !st.CreatedAt.Before(since) {
			return *st, nil
		}
	}
	return Stream{}, ErrNotFound
}

func (r *MemoryRepository) CreateUpvote(ctx context.Context, userId, streamId string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[streamId]; !ok {
		return ErrNotFound
	}

	voters, ok := r.upvotes[streamId]
	if !ok {
		voters = make(map[string]struct{})
		r.upvotes[streamId] = voters
	}
	if _, ok := voters[userId]; ok {
		return ErrConflict
	}
	voters[userId] = struct{}{}
	return nil
}

func (r *MemoryRepository) DeleteUpvote(ctx context.Context, userId, streamId string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.upvotes[streamId][userId]; !ok {
		return false, nil
	}
	delete(r.upvotes[streamId], userId)
	return true, nil
}

func (r *MemoryRepository) CountUpvotes(ctx context.Context, streamId string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.upvotes[streamId]), nil
}

func (r *MemoryRepository) PlayNext(ctx context.Context, spaceId, userId string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.activeLocked(spaceId)
	if len(active) == 0 {
		return Stream{}, ErrQueueEmpty
	}

	next := active[0]
	now := time.Now().UTC()
	next.Played = true
	next.PlayedTs = &now

	cur, ok := r.current[spaceId]
	if !ok {
		cur = &CurrentStream{Id: uuid.NewString(), SpaceId: spaceId}
		r.current[spaceId] = cur
	}
	cur.UserId = userId
	cur.StreamId = next.Id

	return *next, nil
}

func (r *MemoryRepository) GetCurrentStream(ctx context.Context, spaceId string) (CurrentStream, error) {
	if err := ctx.Err(); err != nil {
		return CurrentStream{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.current[spaceId]
	if !ok {
		return CurrentStream{}, ErrNotFound
	}

	res := *cur
	if st, ok := r.streams[cur.StreamId]; ok {
		s := *st
		res.Stream = &s
	} else {
		res.StreamId = ""
	}
	return res, nil
}

func (r *MemoryRepository) BoostStream(ctx context.Context, params BoostParams) (BoostResult, error) {
	if err := ctx.Err(); err != nil {
		return BoostResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[params.StreamId]
	if !ok || st.SpaceId != params.SpaceId {
		return BoostResult{}, ErrNotFound
	}
	if st.AddedBy != params.UserId {
		return BoostResult{}, ErrNotOwner
	}
	if st.Played {
		return BoostResult{}, ErrAlreadyPlayed
	}

	u, ok := r.users[params.UserId]
	if !ok {
		return BoostResult{}, ErrNotFound
	}
	if u.Tokens < params.Amount {
		return BoostResult{}, ErrInsufficientBalance
	}

	u.Tokens -= params.Amount
	st.PaidAmount += params.Amount
	r.appendTransactionLocked(Transaction{
		UserId:      u.Id,
		Amount:      -params.Amount,
		Type:        TransactionBoostDebit,
		Description: fmt.Sprintf("Boosted song in queue (%s)", st.Id),
	})

	return BoostResult{Stream: *st, UserTokens: u.Tokens}, nil
}

func (r *MemoryRepository) RemoveStream(ctx context.Context, spaceId, streamId string) (RemoveResult, error) {
	if err := ctx.Err(); err != nil {
		return RemoveResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[streamId]
	if !ok || st.SpaceId != spaceId {
		return RemoveResult{}, ErrNotFound
	}

	// the owner is resolved before anything changes so a failure leaves the
	// store untouched
	var owner *User
	if st.PaidAmount > 0 {
		owner, ok = r.users[st.AddedBy]
		if !ok {
			return RemoveResult{}, ErrNotFound
		}
	}

	delete(r.streams, streamId)
	delete(r.upvotes, streamId)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == streamId })

	res := RemoveResult{Stream: *st}
	if owner == nil {
		return res, nil
	}

	owner.Tokens += st.PaidAmount
	r.appendTransactionLocked(Transaction{
		UserId:      owner.Id,
		Amount:      st.PaidAmount,
		Type:        TransactionBoostRefund,
		Description: fmt.Sprintf("Refund for removed song (%s)", streamId),
	})

	res.Refunded = st.PaidAmount
	res.OwnerTokens = owner.Tokens
	return res, nil
}

func (r *MemoryRepository) EmptyQueue(ctx context.Context, spaceId string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for _, st := range r.streams {
		if st.SpaceId != spaceId || st.Played {
			continue
		}
		st.Played = true
		st.PlayedTs = &now
		n++
	}
	return n, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userId string) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	txs := make([]Transaction, 0)
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if r.transactions[i].UserId == userId {
			txs = append(txs, r.transactions[i])
		}
	}
	return txs, nil
}

func (r *MemoryRepository) appendTransactionLocked(t Transaction) {
	t.Id = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	r.transactions = append(r.transactions, t)
}
