package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/metrics"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
	"github.com/DiegoCico/Neuro/internal/slug"
)

// followerPageSize bounds how many follower profiles one GetUsers call loads.
const followerPageSize = 100

// FollowService changes who follows whom.
//
// A follow touches two documents: the viewer's following set, and the
// target's followers set, follower count and follower details. All of it
// happens in one store transaction, reading both documents inside the
// transaction so a concurrent follow of the same target cannot be lost.
// Both operations are idempotent: following twice or unfollowing someone
// you do not follow changes nothing and reports the current count.
type FollowService struct {
	users    repository.UserRepository
	resolver *IdentityResolver
	logger   *slog.Logger
}

// NewFollowService creates a FollowService.
func NewFollowService(users repository.UserRepository, resolver *IdentityResolver, logger *slog.Logger) *FollowService {
	return &FollowService{
		users:    users,
		resolver: resolver,
		logger:   logger,
	}
}

// Follow makes viewerID follow the user behind targetSlug.
func (s *FollowService) Follow(ctx context.Context, viewerID, targetSlug string) (*model.FollowResult, error) {
	timer := prometheus.NewTimer(metrics.FollowDuration.WithLabelValues(metrics.OpFollow))
	defer timer.ObserveDuration()

	viewerID = strings.TrimSpace(viewerID)
	targetID, err := s.resolveTarget(ctx, viewerID, targetSlug, "cannot follow yourself")
	if err != nil {
		metrics.FollowOps.WithLabelValues(metrics.OpFollow, metrics.OutcomeError).Inc()
		return nil, err
	}

	var (
		result  model.FollowResult
		changed bool
	)
	err = s.users.RunInTransaction(ctx, func(ctx context.Context, tx repository.UserTx) error {
		changed = false

		viewer, err := tx.GetUser(ctx, viewerID)
		if err != nil {
			return err
		}
		target, err := tx.GetUser(ctx, targetID)
		if err != nil {
			return err
		}

		if viewer.IsFollowing(targetID) {
			result = model.FollowResult{IsFollowing: true, FollowersCount: target.FollowersCount}
			return nil
		}

		count := target.FollowersCount
		if !target.HasFollower(viewerID) {
			count++
		}
		followers := addID(target.Followers, viewerID)
		count = reconcileCount(count, followers)

		details := target.FollowersDetails
		if details == nil {
			details = make(map[string]model.FollowerDetail)
		}
		details[viewerID] = model.FollowerDetail{
			ID:       viewerID,
			FullName: BestFullName(viewer),
			Slug:     snapshotSlug(viewer),
		}
		pruneDetails(details, followers)

		if err := tx.Update(viewerID, repository.Fields{
			model.FieldFollowing: addID(viewer.Following, targetID),
		}); err != nil {
			return err
		}
		if err := tx.Update(targetID, repository.Fields{
			model.FieldFollowers:        followers,
			model.FieldFollowersCount:   count,
			model.FieldFollowersDetails: details,
		}); err != nil {
			return err
		}

		result = model.FollowResult{IsFollowing: true, FollowersCount: count}
		changed = true
		return nil
	})
	if err != nil {
		metrics.FollowOps.WithLabelValues(metrics.OpFollow, metrics.OutcomeError).Inc()
		return nil, s.txError("follow", viewerID, targetID, err)
	}

	s.recordOutcome(metrics.OpFollow, viewerID, targetID, changed)
	return &result, nil
}

// Unfollow makes viewerID stop following the user behind targetSlug.
func (s *FollowService) Unfollow(ctx context.Context, viewerID, targetSlug string) (*model.FollowResult, error) {
	timer := prometheus.NewTimer(metrics.FollowDuration.WithLabelValues(metrics.OpUnfollow))
	defer timer.ObserveDuration()

	viewerID = strings.TrimSpace(viewerID)
	targetID, err := s.resolveTarget(ctx, viewerID, targetSlug, "cannot unfollow yourself")
	if err != nil {
		metrics.FollowOps.WithLabelValues(metrics.OpUnfollow, metrics.OutcomeError).Inc()
		return nil, err
	}

	var (
		result  model.FollowResult
		changed bool
	)
	err = s.users.RunInTransaction(ctx, func(ctx context.Context, tx repository.UserTx) error {
		changed = false

		viewer, err := tx.GetUser(ctx, viewerID)
		if err != nil {
			return err
		}
		target, err := tx.GetUser(ctx, targetID)
		if err != nil {
			return err
		}

		if !viewer.IsFollowing(targetID) {
			result = model.FollowResult{IsFollowing: false, FollowersCount: target.FollowersCount}
			return nil
		}

		count := target.FollowersCount
		if target.HasFollower(viewerID) {
			count = max(count-1, 0)
		}
		followers := removeID(target.Followers, viewerID)
		count = reconcileCount(count, followers)

		details := target.FollowersDetails
		if details == nil {
			details = make(map[string]model.FollowerDetail)
		}
		delete(details, viewerID)
		pruneDetails(details, followers)

		if err := tx.Update(viewerID, repository.Fields{
			model.FieldFollowing: removeID(viewer.Following, targetID),
		}); err != nil {
			return err
		}
		if err := tx.Update(targetID, repository.Fields{
			model.FieldFollowers:        followers,
			model.FieldFollowersCount:   count,
			model.FieldFollowersDetails: details,
		}); err != nil {
			return err
		}

		result = model.FollowResult{IsFollowing: false, FollowersCount: count}
		changed = true
		return nil
	})
	if err != nil {
		metrics.FollowOps.WithLabelValues(metrics.OpUnfollow, metrics.OutcomeError).Inc()
		return nil, s.txError("unfollow", viewerID, targetID, err)
	}

	s.recordOutcome(metrics.OpUnfollow, viewerID, targetID, changed)
	return &result, nil
}

// resolveTarget checks the preconditions shared by Follow and Unfollow and
// returns the target's id. These run before the transaction starts.
func (s *FollowService) resolveTarget(ctx context.Context, viewerID, targetSlug, selfMessage string) (string, error) {
	if viewerID == "" {
		return "", apperror.Unauthorized("authentication required")
	}
	if strings.TrimSpace(targetSlug) == "" {
		return "", apperror.ValidationFailed("slug", "target slug is required")
	}

	target, err := s.resolver.ResolveBySlug(ctx, targetSlug)
	if err != nil {
		return "", fmt.Errorf("service/follow: resolving %q: %w", targetSlug, err)
	}
	if target.ID == viewerID {
		return "", apperror.ValidationFailed("slug", selfMessage)
	}
	return target.ID, nil
}

// txError classifies a failed transaction. Errors that already carry a
// category pass through; anything else becomes Internal.
func (s *FollowService) txError(op, viewerID, targetID string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return fmt.Errorf("service/follow: %s %s→%s: %w", op, viewerID, targetID, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	s.logger.Error("follow transaction failed",
		slog.String("op", op),
		slog.String("viewerID", viewerID),
		slog.String("targetID", targetID),
		slog.String("error", err.Error()),
	)
	return apperror.Internal(op, err)
}

func (s *FollowService) recordOutcome(op, viewerID, targetID string, changed bool) {
	outcome := metrics.OutcomeNoop
	if changed {
		outcome = metrics.OutcomeChanged
	}
	metrics.FollowOps.WithLabelValues(op, outcome).Inc()
	s.logger.Info("follow graph updated",
		slog.String("op", op),
		slog.String("viewerID", viewerID),
		slog.String("targetID", targetID),
		slog.Bool("changed", changed),
	)
}

// IsFollowing reports whether viewerID follows targetID. Lookup failures
// read as false.
func (s *FollowService) IsFollowing(ctx context.Context, viewerID, targetID string) bool {
	if viewerID == "" || targetID == "" {
		return false
	}
	viewer, err := s.users.GetUser(ctx, viewerID)
	if err != nil {
		return false
	}
	return viewer.IsFollowing(targetID)
}

// ListFollowers returns a card per follower of uid, ordered by follower id.
// Cards come from the followers' current profiles. A follower whose profile
// is gone is shown from the detail snapshot taken when they followed, or
// left out if there is none.
func (s *FollowService) ListFollowers(ctx context.Context, uid string) ([]model.FollowerCard, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	me, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service/follow: loading user %s: %w", uid, err)
	}

	ids := slices.Sorted(slices.Values(me.Followers))
	profiles := make(map[string]*model.User, len(ids))
	for chunk := range slices.Chunk(ids, followerPageSize) {
		got, err := s.users.GetUsers(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("service/follow: loading followers of %s: %w", uid, err)
		}
		for id, p := range got {
			profiles[id] = p
		}
	}

	cards := make([]model.FollowerCard, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			cards = append(cards, followerCard(p))
			continue
		}
		if d, ok := me.FollowersDetails[id]; ok {
			cards = append(cards, model.FollowerCard{
				UID:       id,
				FullName:  firstNonBlank(d.FullName, "User"),
				Slug:      d.Slug,
				Interests: []string{},
				Skills:    []string{},
				Tags:      []string{},
				Topics:    []string{},
			})
		}
	}
	return cards, nil
}

func followerCard(p *model.User) model.FollowerCard {
	full := strings.TrimSpace(p.FullName)
	if full == "" {
		full = strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	}
	return model.FollowerCard{
		UID:        p.ID,
		FullName:   firstNonBlank(full, "User"),
		Slug:       snapshotSlug(p),
		AvatarURL:  p.AvatarURL,
		Occupation: firstNonBlank(p.Occupation, p.Headline),
		Headline:   p.Headline,
		Bio:        p.Bio,
		Interests:  nonNil(p.Interests),
		Skills:     nonNil(p.Skills),
		Tags:       nonNil(p.Tags),
		Topics:     nonNil(p.Topics),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

// BestFullName picks the display name stored in follower snapshots:
// first and last name joined, else the full name, else the login, else the
// account id. It never returns "".
func BestFullName(u *model.User) string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	if full := strings.TrimSpace(u.FullName); full != "" {
		return full
	}
	if login := strings.TrimSpace(u.Login); login != "" {
		return login
	}
	return firstNonBlank(strings.TrimSpace(u.ID), "User")
}

// snapshotSlug is the user's slug, or the one their names would derive.
func snapshotSlug(u *model.User) string {
	if s := strings.TrimSpace(u.Slug); s != "" {
		return s
	}
	return slug.Derive(u.FirstName, u.LastName, u.FullName)
}

// firstNonBlank returns the first non-blank value.
func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func addID(set []string, id string) []string {
	if slices.Contains(set, id) {
		return slices.Clone(set)
	}
	return append(slices.Clone(set), id)
}

func removeID(set []string, id string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

// reconcileCount is the follower count to store next to followers. A count
// that fell behind the set is raised to the set size. A count ahead of the
// set is kept: legacy documents carry counters for followers whose ids were
// never recorded.
func reconcileCount(count int, followers []string) int {
	return max(count, len(followers))
}

// pruneDetails drops snapshot entries for users who no longer follow.
func pruneDetails(details map[string]model.FollowerDetail, followers []string) {
	for id := range details {
		if !slices.Contains(followers, id) {
			delete(details, id)
		}
	}
}
