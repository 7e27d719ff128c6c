package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const streamColumns = "s.id, s.space_id, s.user_id, s.added_by, s.url, s.extracted_id, s.type, s.platform, " +
	"s.title, s.small_img, s.big_img, s.paid_amount, s.played, s.played_ts, s.created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanStream(row scanner, extra ...any) (Stream, error) {
	var (
		st       Stream
		playedTs sql.NullTime
	)
	dest := []any{
		&st.Id,
		&st.SpaceId,
		&st.UserId,
		&st.AddedBy,
		&st.Url,
		&st.ExtractedId,
		&st.Type,
		&st.Platform,
		&st.Title,
		&st.SmallImg,
		&st.BigImg,
		&st.PaidAmount,
		&st.Played,
		&playedTs,
		&st.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Stream{}, err
	}
	if playedTs.Valid {
		t := playedTs.Time
		st.PlayedTs = &t
	}
	return st, nil
}

func (db *PgRepository) GetUser(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, email, name, tokens, created_at FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(&u.Id, &u.Email, &u.Name, &u.Tokens, &u.CreatedAt)
	return u, notFound(err)
}

func (db *PgRepository) CreateSpace(ctx context.Context, params CreateSpaceParams) (Space, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO spaces (id, name, host_id, is_active, created_at) VALUES ($1, $2, $3, TRUE, $4) "+
			"RETURNING id, name, host_id, is_active, created_at",
		params.Id,
		params.Name,
		params.HostId,
		time.Now().UTC(),
	)

	var sp Space
	if err := row.Scan(&sp.Id, &sp.Name, &sp.HostId, &sp.IsActive, &sp.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Space{}, ErrConflict
		}
		return Space{}, err
	}
	return sp, nil
}

func (db *PgRepository) GetSpace(ctx context.Context, id string) (Space, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, host_id, is_active, created_at FROM spaces WHERE id = $1 LIMIT 1",
		id,
	)

	var sp Space
	err := row.Scan(&sp.Id, &sp.Name, &sp.HostId, &sp.IsActive, &sp.CreatedAt)
	return sp, notFound(err)
}

func (db *PgRepository) CreateStream(ctx context.Context, params CreateStreamParams) (Stream, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO streams AS s (id, space_id, user_id, added_by, url, extracted_id, type, platform, "+
			"title, small_img, big_img, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) "+
			"RETURNING "+streamColumns,
		uuid.NewString(),
		params.SpaceId,
		params.UserId,
		params.AddedBy,
		params.Url,
		params.ExtractedId,
		params.Type,
		params.Platform,
		params.Title,
		params.SmallImg,
		params.BigImg,
		time.Now().UTC(),
	)

	return scanStream(row)
}

func (db *PgRepository) GetStream(ctx context.Context, id string) (Stream, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+streamColumns+" FROM streams s WHERE s.id = $1 LIMIT 1",
		id,
	)

	st, err := scanStream(row)
	return st, notFound(err)
}

func (db *PgRepository) ListActiveStreams(ctx context.Context, spaceId, viewerId string) ([]StreamWithVotes, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+streamColumns+", "+
			"(SELECT COUNT(*) FROM upvotes u WHERE u.stream_id = s.id) AS upvotes, "+
			"EXISTS (SELECT 1 FROM upvotes u WHERE u.stream_id = s.id AND u.user_id = $2) AS have_upvoted "+
			"FROM streams s WHERE s.space_id = $1 AND s.played = FALSE "+
			"ORDER BY upvotes DESC, s.paid_amount DESC, s.created_at ASC, s.id ASC",
		spaceId,
		viewerId,
	)
	if err != nil {
		return nil, fmt.Errorf("list active streams: %w", err)
	}
	defer rows.Close()

	streams := make([]StreamWithVotes, 0)
	for rows.Next() {
		var sv StreamWithVotes
		st, err := scanStream(rows, &sv.Upvotes, &sv.HaveUpvoted)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sv.Stream = st
		streams = append(streams, sv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return streams, nil
}

func (db *PgRepository) CountActiveStreams(ctx context.Context, spaceId string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM streams WHERE space_id = $1 AND played = FALSE",
		spaceId,
	).Scan(&n)
	return n, err
}

func (db *PgRepository) CountStreamsAddedSince(ctx context.Context, spaceId, addedBy string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM streams WHERE space_id = $1 AND added_by = $2 AND created_at >= $3",
		spaceId,
		addedBy,
		since,
	).Scan(&n)
	return n, err
}

func (db *PgRepository) FindRecentStream(ctx context.Context, spaceId, extractedId string, since time.Time) (Stream, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+streamColumns+" FROM streams s "+
			"WHERE s.space_id = $1 AND s.extracted_id = $2 AND s.created_at >= $3 "+
			"ORDER BY s.created_at DESC LIMIT 1",
		spaceId,
		extractedId,
		since,
	)

	st, err := scanStream(row)
	return st, notFound(err)
}

func (db *PgRepository) CreateUpvote(ctx context.Context, userId, streamId string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO upvotes (id, user_id, stream_id) VALUES ($1, $2, $3)",
		uuid.NewString(),
		userId,
		streamId,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (db *PgRepository) DeleteUpvote(ctx context.Context, userId, streamId string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM upvotes WHERE user_id = $1 AND stream_id = $2",
		userId,
		streamId,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgRepository) CountUpvotes(ctx context.Context, streamId string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM upvotes WHERE stream_id = $1",
		streamId,
	).Scan(&n)
	return n, err
}

// PlayNext marks the most upvoted unplayed stream of the space as played and
// points the space's current stream at it. Ties on upvotes go to the higher
// paid amount, then to the older stream.
func (db *PgRepository) PlayNext(ctx context.Context, spaceId, userId string) (Stream, error) {
	var next Stream
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+streamColumns+" FROM streams s "+
				"WHERE s.space_id = $1 AND s.played = FALSE "+
				"ORDER BY (SELECT COUNT(*) FROM upvotes u WHERE u.stream_id = s.id) DESC, "+
				"s.paid_amount DESC, s.created_at ASC, s.id ASC "+
				"LIMIT 1 FOR UPDATE OF s",
			spaceId,
		)

		st, err := scanStream(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrQueueEmpty
			}
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"UPDATE streams SET played = TRUE, played_ts = $2 WHERE id = $1",
			st.Id,
			now,
		); err != nil {
			return fmt.Errorf("mark played: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO current_streams (id, space_id, user_id, stream_id) VALUES ($1, $2, $3, $4) "+
				"ON CONFLICT (space_id) DO UPDATE SET user_id = EXCLUDED.user_id, stream_id = EXCLUDED.stream_id",
			uuid.NewString(),
			spaceId,
			userId,
			st.Id,
		); err != nil {
			return fmt.Errorf("upsert current stream: %w", err)
		}

		st.Played = true
		st.PlayedTs = &now
		next = st
		return nil
	})

	return next, err
}

func (db *PgRepository) GetCurrentStream(ctx context.Context, spaceId string) (CurrentStream, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT c.id, c.space_id, c.user_id, COALESCE(c.stream_id, '') FROM current_streams c "+
			"WHERE c.space_id = $1 LIMIT 1",
		spaceId,
	)

	var cur CurrentStream
	if err := row.Scan(&cur.Id, &cur.SpaceId, &cur.UserId, &cur.StreamId); err != nil {
		return CurrentStream{}, notFound(err)
	}

	if cur.StreamId != "" {
		st, err := db.GetStream(ctx, cur.StreamId)
		if err != nil && err != ErrNotFound {
			return CurrentStream{}, err
		}
		if err == nil {
			cur.Stream = &st
		}
	}

	return cur, nil
}

// BoostStream moves Amount tokens from the user's balance onto the stream's
// paid amount and appends a debit to the ledger. The stream and user rows are
// locked for the duration of the transaction.
func (db *PgRepository) BoostStream(ctx context.Context, params BoostParams) (BoostResult, error) {
	var res BoostResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			spaceId, addedBy string
			played           bool
		)
		err := tx.QueryRowContext(ctx,
			"SELECT space_id, added_by, played FROM streams WHERE id = $1 FOR UPDATE",
			params.StreamId,
		).Scan(&spaceId, &addedBy, &played)
		if err != nil {
			return notFound(err)
		}

		if spaceId != params.SpaceId {
			return ErrNotFound
		}
		if addedBy != params.UserId {
			return ErrNotOwner
		}
		if played {
			return ErrAlreadyPlayed
		}

		var tokens int
		err = tx.QueryRowContext(ctx,
			"SELECT tokens FROM users WHERE id = $1 FOR UPDATE",
			params.UserId,
		).Scan(&tokens)
		if err != nil {
			return notFound(err)
		}

		if tokens < params.Amount {
			return ErrInsufficientBalance
		}

		if err := tx.QueryRowContext(ctx,
			"UPDATE users SET tokens = tokens - $2 WHERE id = $1 RETURNING tokens",
			params.UserId,
			params.Amount,
		).Scan(&res.UserTokens); err != nil {
			return fmt.Errorf("debit tokens: %w", err)
		}

		if err := insertTransaction(ctx, tx, Transaction{
			UserId:      params.UserId,
			Amount:      -params.Amount,
			Type:        TransactionBoostDebit,
			Description: fmt.Sprintf("Boosted song in queue (%s)", params.StreamId),
		}); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx,
			"UPDATE streams AS s SET paid_amount = s.paid_amount + $2 WHERE s.id = $1 RETURNING "+streamColumns,
			params.StreamId,
			params.Amount,
		)
		st, err := scanStream(row)
		if err != nil {
			return fmt.Errorf("increment paid amount: %w", err)
		}

		res.Stream = st
		return nil
	})

	return res, err
}

// RemoveStream deletes a stream of the space and refunds its paid amount to
// the user who added it.
func (db *PgRepository) RemoveStream(ctx context.Context, spaceId, streamId string) (RemoveResult, error) {
	var res RemoveResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+streamColumns+" FROM streams s WHERE s.id = $1 FOR UPDATE",
			streamId,
		)
		st, err := scanStream(row)
		if err != nil {
			return notFound(err)
		}
		if st.SpaceId != spaceId {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM streams WHERE id = $1", streamId); err != nil {
			return fmt.Errorf("delete stream: %w", err)
		}

		res.Stream = st
		if st.PaidAmount <= 0 {
			return nil
		}

		if err := tx.QueryRowContext(ctx,
			"UPDATE users SET tokens = tokens + $2 WHERE id = $1 RETURNING tokens",
			st.AddedBy,
			st.PaidAmount,
		).Scan(&res.OwnerTokens); err != nil {
			return fmt.Errorf("refund tokens: %w", notFound(err))
		}

		if err := insertTransaction(ctx, tx, Transaction{
			UserId:      st.AddedBy,
			Amount:      st.PaidAmount,
			Type:        TransactionBoostRefund,
			Description: fmt.Sprintf("Refund for removed song (%s)", streamId),
		}); err != nil {
			return err
		}

		res.Refunded = st.PaidAmount
		return nil
	})

	return res, err
}

func (db *PgRepository) EmptyQueue(ctx context.Context, spaceId string) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE streams SET played = TRUE, played_ts = $2 WHERE space_id = $1 AND played = FALSE",
		spaceId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (db *PgRepository) ListTransactions(ctx context.Context, userId string) ([]Transaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, amount, type, description, created_at FROM transactions "+
			"WHERE user_id = $1 ORDER BY created_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.Id, &t.UserId, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (id, user_id, amount, type, description, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		uuid.NewString(),
		t.UserId,
		t.Amount,
		t.Type,
		t.Description,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
