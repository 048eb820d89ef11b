package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// echoUser writes the context user id, or "-" when there is none.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		id = "-"
	}
	_, _ = w.Write([]byte(id))
})

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	alice, _ := ts.Generate("alice")
	bob, _ := ts.Generate("bob")

	tests := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
		wantBody string
	}{
		{"bearer", "Bearer " + alice, "", http.StatusOK, "alice"},
		{"bearer lower-case scheme", "bearer " + alice, "", http.StatusOK, "alice"},
		{"cookie", "", bob, http.StatusOK, "bob"},
		{"bearer wins over cookie", "Bearer " + alice, bob, http.StatusOK, "alice"},
		{"malformed header does not fall back", "Token " + alice, bob, http.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", "", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"nothing", "", "", http.StatusUnauthorized, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			RequireAuth(ts)(echoUser).ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
			if tc.wantCode == http.StatusUnauthorized && rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	alice, _ := ts.Generate("alice")

	tests := []struct {
		name     string
		header   string
		wantBody string
	}{
		{"signed in", "Bearer " + alice, "alice"},
		{"anonymous", "", "-"},
		{"bad token is anonymous", "Bearer nope", "-"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			OptionalAuth(ts)(echoUser).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if rec.Body.String() != tc.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}
