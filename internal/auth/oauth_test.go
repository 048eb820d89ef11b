package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newFakeGitHub serves /user and /user/emails with the given bodies.
func newFakeGitHub(t *testing.T, user, emails string) *GitHubProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			_, _ = w.Write([]byte(user))
		case "/user/emails":
			if emails == "" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(emails))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("id", "secret", "http://localhost/auth/github/callback")
	p.apiBase = srv.URL
	return p
}

func TestFetchUser(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		emails    string
		wantEmail string
		wantName  string
		wantErr   bool
	}{
		{
			name:      "public email",
			user:      `{"id":7,"login":"octo","name":" Octo Cat ","email":"octo@example.com"}`,
			wantEmail: "octo@example.com",
			wantName:  "Octo Cat",
		},
		{
			name:      "hidden email uses primary verified",
			user:      `{"id":7,"login":"octo","email":null}`,
			emails:    `[{"email":"old@example.com","verified":true},{"email":"main@example.com","primary":true,"verified":true}]`,
			wantEmail: "main@example.com",
		},
		{
			name:      "no primary falls back to first verified",
			user:      `{"id":7,"login":"octo"}`,
			emails:    `[{"email":"unverified@example.com"},{"email":"ok@example.com","verified":true}]`,
			wantEmail: "ok@example.com",
		},
		{
			name:      "emails endpoint failing leaves email empty",
			user:      `{"id":7,"login":"octo"}`,
			wantEmail: "",
		},
		{
			name:    "zero id",
			user:    `{"id":0,"login":"ghost"}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeGitHub(t, tc.user, tc.emails)

			got, err := p.fetchUser(context.Background(), http.DefaultClient)
			if tc.wantErr {
				if err == nil {
					t.Fatal("fetchUser() should return an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("fetchUser() error = %v", err)
			}
			if got.Email != tc.wantEmail {
				t.Errorf("Email = %q, want %q", got.Email, tc.wantEmail)
			}
			if got.Name != tc.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tc.wantName)
			}
		})
	}
}

func TestAuthURL_CarriesState(t *testing.T) {
	p := NewGitHubProvider("client-1", "secret", "http://localhost/auth/github/callback")

	u := p.AuthURL("state-xyz")
	for _, want := range []string{"github.com", "client_id=client-1", "state=state-xyz"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthURL() = %q, missing %q", u, want)
		}
	}
}
