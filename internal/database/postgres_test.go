package database

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabaseEnv names a disposable postgres database. The tests below are
// skipped when it is unset.
const testDatabaseEnv = "JUKEBOX_TEST_DATABASE_URL"

func newTestPgRepository(t *testing.T) *PgRepository {
	t.Helper()

	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	db, err := NewPgRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func pgUser(t *testing.T, db *PgRepository, tokens int) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.conn.ExecContext(context.Background(),
		"INSERT INTO users (id, email, name, tokens) VALUES ($1, $2, $3, $4)",
		id, id+"@example.com", "user-"+id[:8], tokens,
	)
	require.NoError(t, err)
	return id
}

func pgSpace(t *testing.T, db *PgRepository, hostId string) Space {
	t.Helper()

	sp, err := db.CreateSpace(context.Background(), CreateSpaceParams{
		Id:     uuid.NewString(),
		Name:   "party",
		HostId: hostId,
	})
	require.NoError(t, err)
	return sp
}

func pgStream(t *testing.T, db *PgRepository, spaceId, userId, extractedId string) Stream {
	t.Helper()

	st, err := db.CreateStream(context.Background(), CreateStreamParams{
		SpaceId:     spaceId,
		UserId:      userId,
		AddedBy:     userId,
		Url:         "https://www.youtube.com/watch?v=" + extractedId,
		ExtractedId: extractedId,
		Type:        StreamTypeVideo,
		Platform:    PlatformYouTube,
		Title:       extractedId,
	})
	require.NoError(t, err)
	return st
}

func TestPgRepository_Spaces(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)

	sp := pgSpace(t, db, host)
	assert.True(t, sp.IsActive)

	got, err := db.GetSpace(ctx, sp.Id)
	require.NoError(t, err)
	assert.Equal(t, host, got.HostId)

	_, err = db.CreateSpace(ctx, CreateSpaceParams{Id: sp.Id, Name: "again", HostId: host})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = db.GetSpace(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgRepository_Upvotes(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 0)
	sp := pgSpace(t, db, host)
	st := pgStream(t, db, sp.Id, alice, "aaaaaaaaaaa")

	require.NoError(t, db.CreateUpvote(ctx, alice, st.Id))
	assert.ErrorIs(t, db.CreateUpvote(ctx, alice, st.Id), ErrConflict)

	n, err := db.CountUpvotes(ctx, st.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	streams, err := db.ListActiveStreams(ctx, sp.Id, alice)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, 1, streams[0].Upvotes)
	assert.True(t, streams[0].HaveUpvoted)

	deleted, err := db.DeleteUpvote(ctx, alice, st.Id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteUpvote(ctx, alice, st.Id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestPgRepository_PlayNext(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 10)
	bob := pgUser(t, db, 0)
	sp := pgSpace(t, db, host)

	_, err := db.PlayNext(ctx, sp.Id, host)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	_, err = db.GetCurrentStream(ctx, sp.Id)
	assert.ErrorIs(t, err, ErrNotFound)

	oldest := pgStream(t, db, sp.Id, bob, "aaaaaaaaaaa")
	time.Sleep(5 * time.Millisecond)
	paid := pgStream(t, db, sp.Id, alice, "bbbbbbbbbbb")
	time.Sleep(5 * time.Millisecond)
	voted := pgStream(t, db, sp.Id, bob, "ccccccccccc")

	_, err = db.BoostStream(ctx, BoostParams{SpaceId: sp.Id, StreamId: paid.Id, UserId: alice, Amount: 5})
	require.NoError(t, err)
	require.NoError(t, db.CreateUpvote(ctx, alice, voted.Id))

	for _, expected := range []Stream{voted, paid, oldest} {
		st, err := db.PlayNext(ctx, sp.Id, host)
		require.NoError(t, err)
		assert.Equal(t, expected.Id, st.Id)
		assert.True(t, st.Played)
		require.NotNil(t, st.PlayedTs)

		cur, err := db.GetCurrentStream(ctx, sp.Id)
		require.NoError(t, err)
		assert.Equal(t, expected.Id, cur.StreamId)
		require.NotNil(t, cur.Stream)
		assert.True(t, cur.Stream.Played)
	}

	_, err = db.PlayNext(ctx, sp.Id, host)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestPgRepository_BoostStream(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 10)
	bob := pgUser(t, db, 10)
	sp := pgSpace(t, db, host)
	st := pgStream(t, db, sp.Id, alice, "aaaaaaaaaaa")

	tcases := []struct {
		name   string
		params BoostParams
		expErr error
	}{
		{
			name:   "not the owner",
			params: BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: bob, Amount: 1},
			expErr: ErrNotOwner,
		},
		{
			name:   "insufficient balance",
			params: BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: alice, Amount: 11},
			expErr: ErrInsufficientBalance,
		},
		{
			name:   "stream of another space",
			params: BoostParams{SpaceId: uuid.NewString(), StreamId: st.Id, UserId: alice, Amount: 1},
			expErr: ErrNotFound,
		},
		{
			name:   "missing stream",
			params: BoostParams{SpaceId: sp.Id, StreamId: uuid.NewString(), UserId: alice, Amount: 1},
			expErr: ErrNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.BoostStream(ctx, tc.params)
			assert.ErrorIs(t, err, tc.expErr)

			u, err := db.GetUser(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, 10, u.Tokens, "expected balance untouched by a failed boost")
		})
	}

	res, err := db.BoostStream(ctx, BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: alice, Amount: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, res.UserTokens)
	assert.Equal(t, 4, res.Stream.PaidAmount)

	txs, err := db.ListTransactions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, -4, txs[0].Amount)
	assert.Equal(t, TransactionBoostDebit, txs[0].Type)

	_, err = db.PlayNext(ctx, sp.Id, host)
	require.NoError(t, err)

	_, err = db.BoostStream(ctx, BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: alice, Amount: 1})
	assert.ErrorIs(t, err, ErrAlreadyPlayed)
}

func TestPgRepository_ConcurrentBoostNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 10)
	sp := pgSpace(t, db, host)
	st := pgStream(t, db, sp.Id, alice, "aaaaaaaaaaa")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.BoostStream(ctx, BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: alice, Amount: 3})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrInsufficientBalance), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	u, err := db.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Tokens)

	got, err := db.GetStream(ctx, st.Id)
	require.NoError(t, err)
	assert.Equal(t, 9, got.PaidAmount)
}

func TestPgRepository_RemoveStream(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 10)
	sp := pgSpace(t, db, host)

	t.Run("refunds paid amount", func(t *testing.T) {
		st := pgStream(t, db, sp.Id, alice, "aaaaaaaaaaa")
		require.NoError(t, db.CreateUpvote(ctx, host, st.Id))
		_, err := db.BoostStream(ctx, BoostParams{SpaceId: sp.Id, StreamId: st.Id, UserId: alice, Amount: 7})
		require.NoError(t, err)

		res, err := db.RemoveStream(ctx, sp.Id, st.Id)
		require.NoError(t, err)
		assert.Equal(t, 7, res.Refunded)
		assert.Equal(t, 10, res.OwnerTokens)

		_, err = db.GetStream(ctx, st.Id)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := db.CountUpvotes(ctx, st.Id)
		require.NoError(t, err)
		assert.Zero(t, n, "expected upvotes to go with the stream")

		txs, err := db.ListTransactions(ctx, alice)
		require.NoError(t, err)
		require.NotEmpty(t, txs)
		assert.Equal(t, TransactionBoostRefund, txs[0].Type)
	})

	t.Run("stream of another space is kept", func(t *testing.T) {
		st := pgStream(t, db, sp.Id, alice, "bbbbbbbbbbb")

		_, err := db.RemoveStream(ctx, uuid.NewString(), st.Id)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = db.GetStream(ctx, st.Id)
		assert.NoError(t, err)
	})
}

func TestPgRepository_EmptyQueueAndRecentQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestPgRepository(t)
	host := pgUser(t, db, 0)
	alice := pgUser(t, db, 0)
	sp := pgSpace(t, db, host)
	since := time.Now().UTC().Add(-time.Minute)

	pgStream(t, db, sp.Id, alice, "aaaaaaaaaaa")
	pgStream(t, db, sp.Id, alice, "bbbbbbbbbbb")

	n, err := db.CountStreamsAddedSince(ctx, sp.Id, alice, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := db.FindRecentStream(ctx, sp.Id, "bbbbbbbbbbb", since)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbb", found.ExtractedId)

	_, err = db.FindRecentStream(ctx, sp.Id, "ccccccccccc", since)
	assert.ErrorIs(t, err, ErrNotFound)

	cleared, err := db.EmptyQueue(ctx, sp.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	active, err := db.CountActiveStreams(ctx, sp.Id)
	require.NoError(t, err)
	assert.Zero(t, active)
}
