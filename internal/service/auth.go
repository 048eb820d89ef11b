package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// GitHubUserID is the account id given to a GitHub identity.
func GitHubUserID(githubID int64) string {
	return "github|" + strconv.FormatInt(githubID, 10)
}

// AuthService signs users in. It is the flow that creates user documents:
// everything else assumes the user already exists.
type AuthService struct {
	users    repository.UserRepository
	resolver *IdentityResolver
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	resolver *IdentityResolver,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult is the outcome of a successful sign-in.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub upserts the user for a GitHub identity and issues
// a session token.
//
// Account fields (login, email, avatar) follow GitHub on every sign-in. The
// display name is only taken from GitHub the first time, so a name the user
// edited afterwards is kept.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	id := GitHubUserID(ghUser.ID)
	fields := repository.Fields{
		model.FieldGitHubID:  ghUser.ID,
		model.FieldLogin:     ghUser.Login,
		model.FieldEmail:     ghUser.Email,
		model.FieldAvatarURL: ghUser.AvatarURL,
	}

	existing, err := s.users.GetUser(ctx, id)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		if ghUser.Name != "" {
			fields[model.FieldFullName] = ghUser.Name
		}
	case err != nil:
		return nil, fmt.Errorf("service/auth: loading user %s: %w", id, err)
	case existing.FullName == "" && existing.FirstName == "" && existing.LastName == "" && ghUser.Name != "":
		fields[model.FieldFullName] = ghUser.Name
	}

	user, err := s.users.MergeUser(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", id, err)
	}
	if user, err = s.resolver.EnsureSlug(ctx, id, user); err != nil {
		return nil, fmt.Errorf("service/auth: ensuring slug for %s: %w", id, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:  user,
		Token: token,
	}, nil
}
