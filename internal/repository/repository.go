// Package repository defines the storage ports the services depend on.
//
// The user store behaves like a document database: each user is one JSON
// document addressed by id, partial updates merge into it, and a transaction
// primitive gives read-modify-write atomicity across several documents.
// internal/repository/sqlite is the production implementation.
package repository

import (
	"context"

	"github.com/DiegoCico/Neuro/internal/model"
)

// Fields is a partial document update keyed by top-level field name
// (model.Field* constants). Values must be JSON-encodable. Fields not named
// are left untouched.
type Fields map[string]any

// ScanOptions controls one page of a collection scan.
type ScanOptions struct {
	// After is the cursor: only ids strictly greater than After are returned.
	After string
	// Limit is the page size. Zero means the store default.
	Limit int
	// MissingSlug restricts the scan to documents with no slug.
	MissingSlug bool
}

// Page is one page of a scan. Cursor is empty when there are no more pages.
type Page struct {
	Users  []model.User
	Cursor string
}

// SlugAssignment pairs a user id with the slug to give it.
type SlugAssignment struct {
	ID   string
	Slug string
}

// UserRepository stores user documents.
type UserRepository interface {
	// GetUser returns apperror.ErrNotFound when no document has this id.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUsers loads the documents that exist among ids. Missing ids are
	// absent from the map, not an error.
	GetUsers(ctx context.Context, ids []string) (map[string]*model.User, error)

	// FindBySlug is an equality lookup on the indexed slug, limited to one
	// result. Returns apperror.ErrNotFound when nothing is indexed under slug.
	FindBySlug(ctx context.Context, slug string) (*model.User, error)

	// ScanUsers returns documents in id order, one page at a time.
	ScanUsers(ctx context.Context, opts ScanOptions) (*Page, error)

	// SetSlug writes slug only if the stored document still has none.
	// It reports whether a write happened.
	SetSlug(ctx context.Context, id, slug string) (bool, error)

	// SetSlugs applies a batch of SetSlug writes in one transaction and
	// returns how many documents changed. The batch commits or fails whole.
	SetSlugs(ctx context.Context, batch []SlugAssignment) (int, error)

	// MergeUser merges fields into the document, creating it if needed.
	MergeUser(ctx context.Context, id string, fields Fields) (*model.User, error)

	// RunInTransaction runs fn with transactional reads and buffered writes.
	// When a concurrent writer invalidates one of fn's reads, the whole
	// attempt is discarded and fn runs again against fresh data, a bounded
	// number of times. After that the error is apperror.ErrConflict.
	// fn must not have side effects outside tx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx UserTx) error) error
}

// UserTx is the handle passed to a transaction body.
type UserTx interface {
	// GetUser reads a document and records its version for the commit check.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// Update buffers a merge of fields into a document read earlier in this
	// transaction. Nothing is written until the body returns nil.
	Update(id string, fields Fields) error
}

// ExperienceRepository stores work history entries. Each entry belongs to
// one user and is addressed by its own id.
type ExperienceRepository interface {
	// ListExperiences returns the user's entries, current ones first, then
	// by start date, newest first.
	ListExperiences(ctx context.Context, userID string) ([]model.Experience, error)

	// SaveExperience creates the entry or replaces it when e.ID exists.
	// An id owned by another user is apperror.ErrForbidden.
	SaveExperience(ctx context.Context, e *model.Experience) (*model.Experience, error)

	// DeleteExperience removes the user's entry and reports whether one
	// was there.
	DeleteExperience(ctx context.Context, userID, id string) (bool, error)
}
