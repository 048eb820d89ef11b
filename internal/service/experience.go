package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

const (
	// MaxExperienceSkills caps the skills kept on one entry.
	MaxExperienceSkills = 30

	maxExperienceLine = 200
	maxExperienceText = 5000
	maxExperienceID   = 64

	experienceDateLayout = "2006-01"
)

// ExperienceService manages users' work history.
type ExperienceService struct {
	experiences repository.ExperienceRepository
	resolver    *IdentityResolver
	logger      *slog.Logger
}

// NewExperienceService creates an ExperienceService.
func NewExperienceService(
	experiences repository.ExperienceRepository,
	resolver *IdentityResolver,
	logger *slog.Logger,
) *ExperienceService {
	return &ExperienceService{
		experiences: experiences,
		resolver:    resolver,
		logger:      logger,
	}
}

// ListBySlug returns the work history of the user behind slug. A slug that
// resolves to nobody has no history, so the list is empty.
func (s *ExperienceService) ListBySlug(ctx context.Context, slug string) ([]model.Experience, error) {
	u, err := s.resolver.ResolveBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.Experience{}, nil
		}
		return nil, fmt.Errorf("service/experience: resolving %q: %w", slug, err)
	}

	list, err := s.experiences.ListExperiences(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("service/experience: listing for user %s: %w", u.ID, err)
	}
	return list, nil
}

// Add creates a new entry for the caller under a fresh id.
func (s *ExperienceService) Add(ctx context.Context, uid string, in model.ExperienceInput) (*model.Experience, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.save(ctx, uid, xid.New().String(), in)
}

// Update replaces the caller's entry id, creating it when it does not
// exist yet. An id owned by another user is forbidden.
func (s *ExperienceService) Update(ctx context.Context, uid, id string, in model.ExperienceInput) (*model.Experience, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	if err := validateExperienceID(id); err != nil {
		return nil, err
	}
	return s.save(ctx, uid, id, in)
}

func (s *ExperienceService) save(ctx context.Context, uid, id string, in model.ExperienceInput) (*model.Experience, error) {
	e, err := canonicalExperience(in)
	if err != nil {
		return nil, err
	}
	e.ID = id
	e.UserID = uid

	saved, err := s.experiences.SaveExperience(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("service/experience: saving %s for user %s: %w", id, uid, err)
	}
	s.logger.Info("experience saved",
		slog.String("userID", uid),
		slog.String("experienceID", id),
	)
	return saved, nil
}

// Delete removes the caller's entry. Deleting an entry that is not there
// succeeds.
func (s *ExperienceService) Delete(ctx context.Context, uid, id string) error {
	if strings.TrimSpace(uid) == "" {
		return apperror.Unauthorized("authentication required")
	}
	if err := validateExperienceID(id); err != nil {
		return err
	}

	removed, err := s.experiences.DeleteExperience(ctx, uid, id)
	if err != nil {
		return fmt.Errorf("service/experience: deleting %s for user %s: %w", id, uid, err)
	}
	s.logger.Info("experience deleted",
		slog.String("userID", uid),
		slog.String("experienceID", id),
		slog.Bool("removed", removed),
	)
	return nil
}

func validateExperienceID(id string) error {
	if id == "" || len(id) > maxExperienceID {
		return apperror.ValidationFailed("id", "invalid experience id")
	}
	for _, r := range id {
		ok := r == '-' || r == '_' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
		if !ok {
			return apperror.ValidationFailed("id", "invalid experience id")
		}
	}
	return nil
}

// canonicalExperience validates an input and returns it in stored form:
// text trimmed, an end date only for past positions, skills cleaned, with
// technologies standing in when no skills were sent.
func canonicalExperience(in model.ExperienceInput) (*model.Experience, error) {
	e := &model.Experience{
		Title:       strings.TrimSpace(in.Title),
		Company:     strings.TrimSpace(in.Company),
		Location:    strings.TrimSpace(in.Location),
		StartDate:   strings.TrimSpace(in.StartDate),
		EndDate:     strings.TrimSpace(in.EndDate),
		Current:     in.Current,
		Description: strings.TrimSpace(in.Description),
	}

	if e.Title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	for _, f := range []struct{ name, value string }{
		{"title", e.Title},
		{"company", e.Company},
		{"location", e.Location},
	} {
		if utf8.RuneCountInString(f.value) > maxExperienceLine {
			return nil, apperror.ValidationFailed(f.name, fmt.Sprintf("%s must be at most %d characters", f.name, maxExperienceLine))
		}
	}
	if utf8.RuneCountInString(e.Description) > maxExperienceText {
		return nil, apperror.ValidationFailed("description", fmt.Sprintf("description must be at most %d characters", maxExperienceText))
	}

	if e.Current {
		e.EndDate = ""
	}
	for _, f := range []struct{ name, value string }{
		{"startDate", e.StartDate},
		{"endDate", e.EndDate},
	} {
		if f.value == "" {
			continue
		}
		if _, err := time.Parse(experienceDateLayout, f.value); err != nil {
			return nil, apperror.ValidationFailed(f.name, fmt.Sprintf("%s must look like YYYY-MM", f.name))
		}
	}
	// YYYY-MM sorts the same as a string and as a date.
	if e.StartDate != "" && e.EndDate != "" && e.EndDate < e.StartDate {
		return nil, apperror.ValidationFailed("endDate", "endDate must not be before startDate")
	}

	e.Skills = cleanSkills(in.Skills)
	if len(e.Skills) == 0 {
		e.Skills = cleanSkills(in.Technologies)
	}
	return e, nil
}

// cleanSkills trims entries, drops blanks and case-insensitive repeats,
// and keeps at most MaxExperienceSkills. The result is never nil.
func cleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == MaxExperienceSkills {
			break
		}
	}
	return out
}
