package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
	"github.com/DiegoCico/Neuro/internal/slug"
)

const (
	// DefaultSearchLimit is the number of hits returned when the caller
	// does not ask for a count.
	DefaultSearchLimit = 8
	// MaxSearchLimit caps the number of hits per query.
	MaxSearchLimit = 50
	// DefaultSearchScan caps how many users one query reads.
	DefaultSearchScan = 400

	minSearchQuery = 2
)

// SearchService finds users by display name.
type SearchService struct {
	users     repository.UserRepository
	scanLimit int
	logger    *slog.Logger
}

// NewSearchService creates a SearchService. A scanLimit of zero or less
// uses DefaultSearchScan.
func NewSearchService(users repository.UserRepository, scanLimit int, logger *slog.Logger) *SearchService {
	if scanLimit <= 0 {
		scanLimit = DefaultSearchScan
	}
	return &SearchService{users: users, scanLimit: scanLimit, logger: logger}
}

// Users returns up to limit users whose display name contains q, ignoring
// case. Names that start with q rank before names that only contain it;
// within each group users keep id order. Queries shorter than two
// characters match nothing. One query reads at most scanLimit users.
func (s *SearchService) Users(ctx context.Context, q string, limit int) ([]model.SearchCard, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if utf8.RuneCountInString(q) < minSearchQuery {
		return []model.SearchCard{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	var prefixed, contained []model.SearchCard
	opts := repository.ScanOptions{Limit: min(scanPageSize, s.scanLimit)}
	seen := 0

scan:
	for {
		page, err := s.users.ScanUsers(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("service/search: scanning for %q: %w", q, err)
		}

		for i := range page.Users {
			u := &page.Users[i]
			name := displayName(u)
			lower := strings.ToLower(name)
			switch {
			case strings.HasPrefix(lower, q):
				prefixed = append(prefixed, searchCard(u, name))
			case strings.Contains(lower, q):
				contained = append(contained, searchCard(u, name))
			}

			seen++
			if len(prefixed) >= limit || seen >= s.scanLimit {
				break scan
			}
		}

		if page.Cursor == "" {
			break
		}
		opts.After = page.Cursor
	}

	out := append(prefixed, contained...)
	if out == nil {
		out = []model.SearchCard{}
	}
	s.logger.Debug("user search",
		slog.String("query", q),
		slog.Int("scanned", seen),
		slog.Int("hits", len(out)),
	)
	return out[:min(limit, len(out))], nil
}

// displayName is the full name, or first and last name joined.
func displayName(u *model.User) string {
	if full := strings.TrimSpace(u.FullName); full != "" {
		return full
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

func searchCard(u *model.User, name string) model.SearchCard {
	c := model.SearchCard{ID: u.ID, FullName: name, Slug: u.Slug}
	if c.Slug == "" {
		c.Slug = slug.Derive(u.FirstName, u.LastName, u.FullName)
	}
	if u.AvatarURL != "" {
		avatar := u.AvatarURL
		c.AvatarURL = &avatar
	}
	return c
}
