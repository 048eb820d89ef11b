package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const (
	defaultScanLimit = 200
	maxScanLimit     = 1000
)

// storedUser is a decoded row plus the version it was read at.
type storedUser struct {
	user    *model.User
	version int64
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// userRow is one row of the users table before its document is decoded.
type userRow struct {
	id               string
	doc              string
	version          int64
	created, updated time.Time
}

func scanRow(row rowScanner) (*userRow, error) {
	var r userRow
	if err := row.Scan(&r.id, &r.doc, &r.version, &r.created, &r.updated); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *userRow) decode() (*storedUser, error) {
	u, err := decodeUser(r.id, []byte(r.doc))
	if err != nil {
		return nil, err
	}
	u.CreatedAt = r.created
	u.UpdatedAt = r.updated
	return &storedUser{user: u, version: r.version}, nil
}

func scanUser(row rowScanner) (*storedUser, error) {
	r, err := scanRow(row)
	if err != nil {
		return nil, err
	}
	return r.decode()
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getStored reads one document through q.
func (db *DB) getStored(ctx context.Context, q queryRower, id string) (*storedUser, error) {
	query, args, err := selectUsers().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building user query: %w", err)
	}

	row := q.QueryRowContext(ctx, query, args...)
	s, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return s, nil
}

// GetUser retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	s, err := db.getStored(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}
	return s.user, nil
}

// GetUsers loads every existing user among ids.
func (db *DB) GetUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := selectUsers().
		Where(sq.Eq{"id": ids}).
		RunWith(db.conn).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %d users: %w", len(ids), err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		s, err := r.decode()
		if err != nil {
			db.logger.Warn("skipping undecodable user document",
				slog.String("userID", r.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[s.user.ID] = s.user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return out, nil
}

// FindBySlug looks slug up in the slug index. When several users share a
// slug the lowest id wins.
func (db *DB) FindBySlug(ctx context.Context, slug string) (*model.User, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, apperror.NotFound("user", slug)
	}

	q, args, err := selectUsers().
		Where(sq.Eq{"slug": slug}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: building slug query: %w", err)
	}

	s, err := scanUser(db.conn.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", slug)
		}
		return nil, fmt.Errorf("sqlite: finding user by slug %q: %w", slug, err)
	}
	return s.user, nil
}

// ScanUsers returns one page of users in id order.
//
// CURSOR PAGINATION:
// We ask for Limit+1 rows. If the extra row comes back there is another
// page, and the last id we read becomes the cursor. Unlike OFFSET, this
// stays correct while other requests insert users mid-scan.
func (db *DB) ScanUsers(ctx context.Context, opts repository.ScanOptions) (*repository.Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if limit > maxScanLimit {
		limit = maxScanLimit
	}

	q := selectUsers()
	if opts.After != "" {
		q = q.Where(sq.Gt{"id": opts.After})
	}
	if opts.MissingSlug {
		q = q.Where(sq.Eq{"slug": ""})
	}
	q = q.OrderBy("id").Limit(uint64(limit + 1))

	rows, err := q.RunWith(db.conn).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning users: %w", err)
	}
	defer rows.Close()

	// Undecodable documents are logged and skipped, so one broken legacy
	// row cannot hide every other user from slug fallback and backfill.
	page := &repository.Page{Users: make([]model.User, 0, limit)}
	var (
		read   int
		lastID string
		more   bool
	)
	for rows.Next() {
		if read == limit {
			more = true
			break
		}
		read++

		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		lastID = r.id

		s, err := r.decode()
		if err != nil {
			db.logger.Warn("skipping undecodable user document",
				slog.String("userID", r.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		page.Users = append(page.Users, *s.user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	if more {
		page.Cursor = lastID
	}
	return page, nil
}

// updateUser builds the UPDATE that merges fields into one document.
// A positive version makes the update conditional on the stored version.
func (db *DB) updateUser(id string, fields repository.Fields, version int64) (sq.UpdateBuilder, error) {
	encoded, err := encodeFields(fields)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}

	// json_set(doc, '$.a', json(?), '$.b', json(?), ...)
	var expr strings.Builder
	args := make([]any, 0, 2*len(encoded))
	expr.WriteString("json_set(doc")
	for _, f := range encoded {
		expr.WriteString(", ?, json(?)")
		args = append(args, f.path, f.value)
	}
	expr.WriteString(")")

	b := sq.Update("users").
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", db.now().UTC()).
		Where(sq.Eq{"id": id})
	if len(encoded) > 0 {
		b = b.Set("doc", sq.Expr(expr.String(), args...))
	}
	if s, ok := slugColumn(fields); ok {
		b = b.Set("slug", s)
	}
	if version > 0 {
		b = b.Where(sq.Eq{"version": version})
	}
	return b, nil
}

// SetSlug writes slug to the user only while the stored slug is empty, so
// racing callers cannot overwrite each other.
func (db *DB) SetSlug(ctx context.Context, id, slug string) (bool, error) {
	if strings.TrimSpace(slug) == "" {
		return false, apperror.ValidationFailed(model.FieldSlug, "slug must not be empty")
	}

	b, err := db.updateUser(id, repository.Fields{model.FieldSlug: slug}, 0)
	if err != nil {
		return false, err
	}
	res, err := b.Where(sq.Eq{"slug": ""}).RunWith(db.conn).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlite: setting slug for user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: setting slug for user %s: %w", id, err)
	}
	return n > 0, nil
}

// SetSlugs applies a batch of slug assignments in one transaction. Users
// that gained a slug since the batch was built are skipped, not overwritten.
func (db *DB) SetSlugs(ctx context.Context, batch []repository.SlugAssignment) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	updated := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range batch {
			b, err := db.updateUser(a.ID, repository.Fields{model.FieldSlug: a.Slug}, 0)
			if err != nil {
				return err
			}
			res, err := b.Where(sq.Eq{"slug": ""}).RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("setting slug for user %s: %w", a.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: committing slug batch of %d: %w", len(batch), err)
	}
	return updated, nil
}

// MergeUser merges fields into the user's document, creating the user if
// it does not exist yet.
func (db *DB) MergeUser(ctx context.Context, id string, fields repository.Fields) (*model.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "user id is required")
	}

	b, err := db.updateUser(id, fields, 0)
	if err != nil {
		return nil, err
	}

	var stored *storedUser
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now().UTC()
		_, err := sq.Insert("users").
			Columns("id", "doc", "slug", "version", "created_at", "updated_at").
			Values(id, "{}", "", 1, now, now).
			Suffix("ON CONFLICT(id) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("inserting user %s: %w", id, err)
		}

		if _, err := b.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("updating user %s: %w", id, err)
		}

		stored, err = db.getStored(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: merging user %s: %w", id, err)
	}
	return stored.user, nil
}
