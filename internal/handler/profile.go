package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/model"
)

// Profiles is the part of service.ProfileService the profile routes use.
type Profiles interface {
	Me(ctx context.Context, uid string) (*model.User, error)
	ByUID(ctx context.Context, uid string) (*model.User, error)
	BySlug(ctx context.Context, viewerID, slug string) (*model.Profile, error)
	SetAbout(ctx context.Context, uid string, about model.About) (*model.About, error)
	AboutBySlug(ctx context.Context, slug string) (string, *model.About, error)
}

// ProfileHandler serves profile reads.
type ProfileHandler struct {
	profiles Profiles
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles Profiles, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profileResponse struct {
	OK      bool `json:"ok"`
	Profile any  `json:"profile"`
}

// HandleUser returns the profile behind {slug}, with isFollowing set for a
// signed-in viewer.
//
// HTTP: GET /api/users/{slug}
// Auth: optional
func (h *ProfileHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	p, err := h.profiles.BySlug(r.Context(), viewerID, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleMe returns the caller's own profile.
//
// HTTP: GET /api/me
// Auth: required
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	u, err := h.profiles.Me(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleProfileMe is HandleMe in the {"ok":true,"profile":...} envelope.
//
// HTTP: GET /api/profile/me
// Auth: required
func (h *ProfileHandler) HandleProfileMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	u, err := h.profiles.Me(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: u})
}

// HandleProfileBySlug is HandleUser in the profile envelope.
//
// HTTP: GET /api/profile/by-slug/{slug}
func (h *ProfileHandler) HandleProfileBySlug(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	p, err := h.profiles.BySlug(r.Context(), viewerID, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: p})
}

// HandleProfileByUID returns a profile by account id.
//
// HTTP: GET /api/profile/by-uid/{uid}
func (h *ProfileHandler) HandleProfileByUID(w http.ResponseWriter, r *http.Request) {
	u, err := h.profiles.ByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: u})
}

type aboutResponse struct {
	OK    bool   `json:"ok"`
	About any    `json:"about"`
	UID   string `json:"uid,omitempty"`
}

// HandleSetAbout replaces the caller's about section.
//
// HTTP: POST /api/profile/about
// Auth: required
// Body: {"title": "...", "bio": "...", "currentFocus": "...", "beyondWork": "..."}
func (h *ProfileHandler) HandleSetAbout(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var in model.About
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	about, err := h.profiles.SetAbout(r.Context(), uid, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aboutResponse{OK: true, About: about})
}

// HandleAbout returns the about section of the user behind {slug}, or {}
// when they have none.
//
// HTTP: GET /api/profile/about/{slug}
func (h *ProfileHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	uid, about, err := h.profiles.AboutBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body any = struct{}{}
	if about != nil {
		body = about
	}
	writeJSON(w, http.StatusOK, aboutResponse{OK: true, About: body, UID: uid})
}
