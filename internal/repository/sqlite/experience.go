package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

var _ repository.ExperienceRepository = (*DB)(nil)

var experienceColumns = []string{"id", "user_id", "doc", "created_at", "updated_at"}

// experienceDoc is what the doc column holds. Ids and timestamps live in
// their own columns.
type experienceDoc struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Current     bool     `json:"current"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

func scanExperience(row rowScanner) (*model.Experience, error) {
	var (
		e   model.Experience
		raw string
	)
	if err := row.Scan(&e.ID, &e.UserID, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	var d experienceDoc
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decoding experience %s: %w: %w", e.ID, errUndecodable, err)
	}
	e.Title = d.Title
	e.Company = d.Company
	e.Location = d.Location
	e.StartDate = d.StartDate
	e.EndDate = d.EndDate
	e.Current = d.Current
	e.Description = d.Description
	e.Skills = d.Skills
	return &e, nil
}

// ListExperiences returns a user's experience entries. Current positions
// come first, then the rest by start date, newest first.
func (db *DB) ListExperiences(ctx context.Context, userID string) ([]model.Experience, error) {
	rows, err := sq.Select(experienceColumns...).
		From("experiences").
		Where(sq.Eq{"user_id": userID}).
		OrderBy(
			"json_extract(doc, '$.current') DESC",
			"json_extract(doc, '$.startDate') DESC",
			"created_at DESC",
			"id",
		).
		RunWith(db.conn).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing experience of user %s: %w", userID, err)
	}
	defer rows.Close()

	out := make([]model.Experience, 0)
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			if errors.Is(err, errUndecodable) {
				db.logger.Warn("skipping undecodable experience document",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, fmt.Errorf("sqlite: scanning experience: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating experience: %w", err)
	}
	return out, nil
}

// SaveExperience inserts e, or replaces the stored entry with the same id.
// The upsert only touches rows of the same user, so zero affected rows
// means the id belongs to someone else.
func (db *DB) SaveExperience(ctx context.Context, e *model.Experience) (*model.Experience, error) {
	if strings.TrimSpace(e.ID) == "" {
		return nil, apperror.ValidationFailed("id", "experience id is required")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return nil, apperror.ValidationFailed("uid", "user id is required")
	}

	doc, err := json.Marshal(experienceDoc{
		Title:       e.Title,
		Company:     e.Company,
		Location:    e.Location,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		Current:     e.Current,
		Description: e.Description,
		Skills:      e.Skills,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding experience %s: %w", e.ID, err)
	}

	var saved *model.Experience
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now().UTC()
		res, err := sq.Insert("experiences").
			Columns(experienceColumns...).
			Values(e.ID, e.UserID, string(doc), now, now).
			Suffix(`ON CONFLICT(id) DO UPDATE
				SET doc = excluded.doc, updated_at = excluded.updated_at
				WHERE experiences.user_id = excluded.user_id`).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Forbidden("experience belongs to another user")
		}

		q, args, err := sq.Select(experienceColumns...).
			From("experiences").
			Where(sq.Eq{"id": e.ID}).
			ToSql()
		if err != nil {
			return err
		}
		saved, err = scanExperience(tx.QueryRowContext(ctx, q, args...))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: saving experience %s: %w", e.ID, err)
	}
	return saved, nil
}

// DeleteExperience removes one of the user's entries.
func (db *DB) DeleteExperience(ctx context.Context, userID, id string) (bool, error) {
	res, err := sq.Delete("experiences").
		Where(sq.Eq{"id": id, "user_id": userID}).
		RunWith(db.conn).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting experience %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting experience %s: %w", id, err)
	}
	return n > 0, nil
}
