package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// ProfileService serves profile reads and the admin upsert.
// Reads by id make sure the returned profile carries a slug.
type ProfileService struct {
	users    repository.UserRepository
	resolver *IdentityResolver
	follows  *FollowService
	logger   *slog.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(
	users repository.UserRepository,
	resolver *IdentityResolver,
	follows *FollowService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:    users,
		resolver: resolver,
		follows:  follows,
		logger:   logger,
	}
}

// Me returns the caller's own profile.
func (s *ProfileService) Me(ctx context.Context, uid string) (*model.User, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.ByUID(ctx, uid)
}

// ByUID returns a profile by account id.
func (s *ProfileService) ByUID(ctx context.Context, uid string) (*model.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperror.ValidationFailed("uid", "uid is required")
	}

	u, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service/profile: loading user %s: %w", uid, err)
	}
	return s.resolver.EnsureSlug(ctx, uid, u)
}

// BySlug returns the profile a slug resolves to. When viewerID is set the
// result says whether the viewer follows that profile.
func (s *ProfileService) BySlug(ctx context.Context, viewerID, slug string) (*model.Profile, error) {
	u, err := s.resolver.ResolveBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("service/profile: resolving %q: %w", slug, err)
	}
	return &model.Profile{
		User:        u,
		IsFollowing: s.follows.IsFollowing(ctx, viewerID, u.ID),
	}, nil
}

// Upsert merges fields into the user's document, creating it if needed,
// and makes sure the result has a slug. Graph fields cannot be written
// here; they belong to FollowService.
func (s *ProfileService) Upsert(ctx context.Context, uid string, fields repository.Fields) (*model.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperror.ValidationFailed("uid", "uid required")
	}
	for k := range fields {
		if slices.Contains(model.GraphFields, k) {
			return nil, apperror.ValidationFailed(k, fmt.Sprintf("%s is managed by follow operations", k))
		}
	}

	u, err := s.users.MergeUser(ctx, uid, fields)
	if err != nil {
		return nil, fmt.Errorf("service/profile: upserting user %s: %w", uid, err)
	}

	s.logger.Info("user upserted",
		slog.String("userID", uid),
		slog.Int("fields", len(fields)),
	)
	return s.resolver.EnsureSlug(ctx, uid, u)
}

// SetAbout replaces the caller's about section with the trimmed values.
func (s *ProfileService) SetAbout(ctx context.Context, uid string, about model.About) (*model.About, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	a := model.About{
		Title:        strings.TrimSpace(about.Title),
		Bio:          strings.TrimSpace(about.Bio),
		CurrentFocus: strings.TrimSpace(about.CurrentFocus),
		BeyondWork:   strings.TrimSpace(about.BeyondWork),
	}
	if _, err := s.users.MergeUser(ctx, uid, repository.Fields{model.FieldAbout: a}); err != nil {
		return nil, fmt.Errorf("service/profile: saving about for user %s: %w", uid, err)
	}
	s.logger.Info("about updated", slog.String("userID", uid))
	return &a, nil
}

// AboutBySlug returns the id of the user behind slug and their about
// section, which is nil when they never wrote one.
func (s *ProfileService) AboutBySlug(ctx context.Context, slug string) (string, *model.About, error) {
	u, err := s.resolver.ResolveBySlug(ctx, slug)
	if err != nil {
		return "", nil, fmt.Errorf("service/profile: resolving %q: %w", slug, err)
	}
	return u.ID, u.About, nil
}
