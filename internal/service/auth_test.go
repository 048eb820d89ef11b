package service

import (
	"context"
	"testing"
	"time"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/model"
)

func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, newTestResolver(repo, 0), ts, discardLogger()), ts
}

func TestGitHubUserID(t *testing.T) {
	if got := GitHubUserID(583231); got != "github|583231" {
		t.Errorf("GitHubUserID() = %q", got)
	}
}

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, ts := newTestAuthService(t, repo)

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:        42,
		Login:     "octocat",
		Name:      "Mona Octocat",
		Email:     "mona@github.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/42",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	u := res.User
	if u.ID != "github|42" || u.Login != "octocat" || u.GitHubID != 42 {
		t.Errorf("User = %+v", u)
	}
	if u.FullName != "Mona Octocat" {
		t.Errorf("FullName = %q, want Mona Octocat", u.FullName)
	}
	if u.Slug != "mona-octocat" {
		t.Errorf("Slug = %q, want mona-octocat", u.Slug)
	}

	sub, err := ts.Validate(res.Token)
	if err != nil {
		t.Fatalf("Validate(token) error = %v", err)
	}
	if sub != "github|42" {
		t.Errorf("token subject = %q, want github|42", sub)
	}
}

func TestLoginOrRegisterGitHub_KeepsEditedName(t *testing.T) {
	repo := newFakeUserRepo()
	repo.put(model.User{ID: "github|42", FirstName: "Mona", LastName: "Lisa", Slug: "mona-lisa", Login: "old"})
	svc, _ := newTestAuthService(t, repo)

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "octocat", Name: "Mona Octocat"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.FullName != "" || res.User.Slug != "mona-lisa" {
		t.Errorf("names changed: %+v", res.User)
	}
	if res.User.Login != "octocat" {
		t.Errorf("Login = %q, want refreshed octocat", res.User.Login)
	}
}

func TestLoginOrRegisterGitHub_FillsMissingName(t *testing.T) {
	repo := newFakeUserRepo()
	repo.put(model.User{ID: "github|42", Login: "octocat"})
	svc, _ := newTestAuthService(t, repo)

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "octocat", Name: "Mona Octocat"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.FullName != "Mona Octocat" || res.User.Slug != "mona-octocat" {
		t.Errorf("User = %+v", res.User)
	}
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub(nil) should return an error")
	}
}
