// Package service contains the business rules of the profiles API.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads and writes documents
//
// Services take repository interfaces, never *sqlite.DB, so they are tested
// with plain function calls against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/metrics"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
	"github.com/DiegoCico/Neuro/internal/slug"
)

const (
	// DefaultScanLimit caps how many users a fallback slug scan may read.
	DefaultScanLimit = 5000
	// DefaultBackfillBatch is the number of slug writes committed together.
	DefaultBackfillBatch = 400
	// MaxBackfillBatch matches the largest batch a document store commit
	// accepts in one go.
	MaxBackfillBatch = 500

	scanPageSize = 200
)

// IdentityResolver maps slugs to users and keeps slugs filled in.
type IdentityResolver struct {
	users     repository.UserRepository
	scanLimit int
	logger    *slog.Logger
}

// NewIdentityResolver creates an IdentityResolver. A scanLimit of zero or
// less uses DefaultScanLimit.
func NewIdentityResolver(users repository.UserRepository, scanLimit int, logger *slog.Logger) *IdentityResolver {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &IdentityResolver{
		users:     users,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

// ResolveBySlug finds the user a slug refers to.
//
// TWO PATHS:
//  1. Index lookup on the stored slug column. This answers every user whose
//     slug has been written.
//  2. A bounded scan that recomputes each user's candidate slugs from their
//     name fields. This catches users imported before slugs existed and not
//     yet backfilled.
//
// Path 1 failing for any reason other than "not found" is logged and we
// carry on with path 2. The scan reads at most scanLimit users; past that
// the slug is reported as not found.
func (r *IdentityResolver) ResolveBySlug(ctx context.Context, s string) (*model.User, error) {
	target := strings.ToLower(strings.TrimSpace(s))
	if target == "" {
		metrics.SlugResolutions.WithLabelValues(metrics.PathNotFound).Inc()
		return nil, apperror.NotFound("user", s)
	}

	u, err := r.users.FindBySlug(ctx, target)
	switch {
	case err == nil:
		metrics.SlugResolutions.WithLabelValues(metrics.PathIndex).Inc()
		return u, nil
	case errors.Is(err, apperror.ErrNotFound):
	default:
		r.logger.Warn("slug index lookup failed, falling back to scan",
			slog.String("slug", target),
			slog.String("error", err.Error()),
		)
	}

	u, err = r.scanForSlug(ctx, target)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.SlugResolutions.WithLabelValues(metrics.PathNotFound).Inc()
		}
		return nil, err
	}
	metrics.SlugResolutions.WithLabelValues(metrics.PathScan).Inc()
	return u, nil
}

func (r *IdentityResolver) scanForSlug(ctx context.Context, target string) (*model.User, error) {
	opts := repository.ScanOptions{Limit: min(scanPageSize, r.scanLimit)}
	seen := 0

	for {
		page, err := r.users.ScanUsers(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("service/identity: scanning for slug %q: %w", target, err)
		}

		for i := range page.Users {
			u := &page.Users[i]
			if slug.Matches(namesOf(u), target) {
				return u, nil
			}
			seen++
			if seen >= r.scanLimit {
				r.logger.Warn("slug scan hit its limit",
					slog.String("slug", target),
					slog.Int("limit", r.scanLimit),
				)
				return nil, apperror.NotFound("user", target)
			}
		}

		if page.Cursor == "" {
			return nil, apperror.NotFound("user", target)
		}
		opts.After = page.Cursor
	}
}

// EnsureSlug gives u a slug if it has none and one can be derived from its
// names. The write only lands if the stored user still lacks a slug, so
// concurrent callers cannot overwrite each other. u is updated in place and
// returned. A user with a slug is returned untouched, without a write.
func (r *IdentityResolver) EnsureSlug(ctx context.Context, id string, u *model.User) (*model.User, error) {
	if u == nil {
		return nil, apperror.NotFound("user", id)
	}
	if strings.TrimSpace(u.Slug) != "" {
		return u, nil
	}

	derived := slug.Derive(u.FirstName, u.LastName, u.FullName)
	if derived == "" {
		return u, nil
	}

	wrote, err := r.users.SetSlug(ctx, id, derived)
	if err != nil {
		return nil, fmt.Errorf("service/identity: setting slug for user %s: %w", id, err)
	}
	if !wrote {
		// Someone else assigned a slug first. Theirs wins.
		stored, err := r.users.GetUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("service/identity: reloading user %s: %w", id, err)
		}
		u.Slug = stored.Slug
		return u, nil
	}

	metrics.SlugsAssigned.WithLabelValues(metrics.SourceEnsure).Inc()
	r.logger.Info("assigned slug",
		slog.String("userID", id),
		slog.String("slug", derived),
	)
	u.Slug = derived
	return u, nil
}

// BackfillSlugs assigns a slug to every user that lacks one and has names
// to derive it from. Writes are committed batchSize at a time; each batch
// commits on its own, so a failure leaves earlier batches in place and the
// returned count says how many users were updated before it.
func (r *IdentityResolver) BackfillSlugs(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatch
	}
	if batchSize > MaxBackfillBatch {
		batchSize = MaxBackfillBatch
	}

	updated := 0
	batch := make([]repository.SlugAssignment, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.users.SetSlugs(ctx, batch)
		if err != nil {
			return err
		}
		updated += n
		metrics.SlugsAssigned.WithLabelValues(metrics.SourceBackfill).Add(float64(n))
		r.logger.Info("backfill batch committed",
			slog.Int("batch", len(batch)),
			slog.Int("updated", n),
			slog.Int("total", updated),
		)
		batch = batch[:0]
		return nil
	}

	opts := repository.ScanOptions{MissingSlug: true, Limit: scanPageSize}
	for {
		page, err := r.users.ScanUsers(ctx, opts)
		if err != nil {
			return updated, fmt.Errorf("service/identity: scanning users without slug: %w", err)
		}

		for _, u := range page.Users {
			derived := slug.Derive(u.FirstName, u.LastName, u.FullName)
			if derived == "" {
				continue
			}
			batch = append(batch, repository.SlugAssignment{ID: u.ID, Slug: derived})
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return updated, fmt.Errorf("service/identity: committing backfill batch: %w", err)
				}
			}
		}

		if page.Cursor == "" {
			break
		}
		opts.After = page.Cursor
	}

	if err := flush(); err != nil {
		return updated, fmt.Errorf("service/identity: committing backfill batch: %w", err)
	}
	return updated, nil
}

func namesOf(u *model.User) slug.Names {
	return slug.Names{
		Slug:      u.Slug,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName,
	}
}
