package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/metrics"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// errStale marks an attempt that lost a race with another writer.
var errStale = errors.New("sqlite: document changed since it was read")

// RunInTransaction runs fn with optimistic concurrency control.
//
// HOW IT WORKS:
//  1. fn reads documents through tx.GetUser. Each read remembers the
//     document's version.
//  2. fn buffers its writes with tx.Update. Nothing touches the database yet.
//  3. When fn returns nil we open one SQL transaction, check that every
//     document we read still has the version we saw, and apply the buffered
//     writes, each guarded by "WHERE version = ?".
//  4. If any check fails, or SQLite reports the database busy, the SQL
//     transaction rolls back and fn runs again from step 1 with fresh reads.
//
// This is the same contract as Firestore or Spanner client transactions: fn
// can run more than once, so it must not have side effects outside tx.
// Errors returned by fn end the transaction immediately, without retry.
func (db *DB) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.UserTx) error) error {
	for attempt := 1; ; attempt++ {
		metrics.TxAttempts.Inc()

		err := db.runAttempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStale) {
			return err
		}

		metrics.TxConflicts.Inc()
		if attempt >= db.txAttempts {
			db.logger.Warn("transaction gave up after conflicts",
				slog.Int("attempts", attempt),
			)
			return apperror.Conflict("transaction", fmt.Sprintf("attempt %d", attempt))
		}

		db.logger.Debug("transaction conflict, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		wait := time.Duration(attempt) * db.txBackoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (db *DB) runAttempt(ctx context.Context, fn func(ctx context.Context, tx repository.UserTx) error) error {
	t := &userTx{
		db:     db,
		reads:  make(map[string]*storedUser),
		writes: make(map[string]repository.Fields),
	}

	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit(ctx)
}

// userTx implements repository.UserTx for one attempt.
type userTx struct {
	db     *DB
	reads  map[string]*storedUser
	writes map[string]repository.Fields
}

// GetUser reads a document, or returns the copy already read in this attempt.
func (t *userTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	s, ok := t.reads[id]
	if !ok {
		var err error
		s, err = t.db.getStored(ctx, t.db.conn, id)
		if err != nil {
			if isBusy(err) {
				return nil, fmt.Errorf("%w: %w", errStale, err)
			}
			return nil, err
		}
		t.reads[id] = s
	}
	return cloneUser(s.user), nil
}

// Update buffers fields for a document read in this attempt. Repeated
// updates of one document merge, later values winning.
func (t *userTx) Update(id string, fields repository.Fields) error {
	if _, ok := t.reads[id]; !ok {
		return fmt.Errorf("sqlite: update of user %s that was not read in this transaction", id)
	}
	if _, err := encodeFields(fields); err != nil {
		return err
	}

	pending, ok := t.writes[id]
	if !ok {
		pending = repository.Fields{}
		t.writes[id] = pending
	}
	maps.Copy(pending, fields)
	return nil
}

func (t *userTx) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}

	err := t.db.withTx(ctx, func(tx *sql.Tx) error {
		// Documents read but not written still have to be unchanged: the
		// writes were computed from them.
		for _, id := range slices.Sorted(maps.Keys(t.reads)) {
			if _, written := t.writes[id]; written {
				continue
			}
			var version int64
			err := sq.Select("version").From("users").
				Where(sq.Eq{"id": id}).
				RunWith(tx).
				QueryRowContext(ctx).
				Scan(&version)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return errStale
				}
				return err
			}
			if version != t.reads[id].version {
				return errStale
			}
		}

		// Sorted ids give every writer the same lock order.
		for _, id := range slices.Sorted(maps.Keys(t.writes)) {
			b, err := t.db.updateUser(id, t.writes[id], t.reads[id].version)
			if err != nil {
				return err
			}
			res, err := b.RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("updating user %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return errStale
			}
		}
		return nil
	})
	if err == nil || errors.Is(err, errStale) {
		return err
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %w", errStale, err)
	}
	return fmt.Errorf("sqlite: committing transaction: %w", err)
}

// cloneUser deep-copies the mutable parts of u so a transaction body can
// edit what it read without touching the cached snapshot.
func cloneUser(u *model.User) *model.User {
	c := *u
	c.Following = slices.Clone(u.Following)
	c.Followers = slices.Clone(u.Followers)
	c.FollowersDetails = maps.Clone(u.FollowersDetails)
	c.Interests = slices.Clone(u.Interests)
	c.Skills = slices.Clone(u.Skills)
	c.Tags = slices.Clone(u.Tags)
	c.Topics = slices.Clone(u.Topics)
	c.Extra = maps.Clone(u.Extra)
	if u.About != nil {
		about := *u.About
		c.About = &about
	}
	if c.Following == nil {
		c.Following = []string{}
	}
	if c.Followers == nil {
		c.Followers = []string{}
	}
	if c.FollowersDetails == nil {
		c.FollowersDetails = map[string]model.FollowerDetail{}
	}
	return &c
}
