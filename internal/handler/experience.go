package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/model"
)

// Experiences is the part of service.ExperienceService the experience
// routes use.
type Experiences interface {
	ListBySlug(ctx context.Context, slug string) ([]model.Experience, error)
	Add(ctx context.Context, uid string, in model.ExperienceInput) (*model.Experience, error)
	Update(ctx context.Context, uid, id string, in model.ExperienceInput) (*model.Experience, error)
	Delete(ctx context.Context, uid, id string) error
}

// ExperienceHandler serves users' work history.
type ExperienceHandler struct {
	experiences Experiences
	logger      *slog.Logger
}

// NewExperienceHandler creates an ExperienceHandler.
func NewExperienceHandler(experiences Experiences, logger *slog.Logger) *ExperienceHandler {
	return &ExperienceHandler{experiences: experiences, logger: logger}
}

type experienceListResponse struct {
	OK    bool               `json:"ok"`
	Items []model.Experience `json:"items"`
}

type experienceResponse struct {
	OK   bool              `json:"ok"`
	Item *model.Experience `json:"item"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// HandleList returns the work history of the user behind {slug}.
//
// HTTP: GET /api/users/{slug}/experience
func (h *ExperienceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.experiences.ListBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.Experience{}
	}
	writeJSON(w, http.StatusOK, experienceListResponse{OK: true, Items: items})
}

// HandleAdd creates an entry in the caller's work history.
//
// HTTP: POST /api/me/experience
// Auth: required
// Body: {"title": "...", "company": "...", "startDate": "2021-05", "skills": [...]}
func (h *ExperienceHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var in model.ExperienceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	e, err := h.experiences.Add(r.Context(), uid, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experienceResponse{OK: true, Item: e})
}

// HandleUpdate replaces the caller's entry {id}. PUT and PATCH both send
// the whole entry.
//
// HTTP: PUT|PATCH /api/me/experience/{id}
// Auth: required
func (h *ExperienceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var in model.ExperienceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	e, err := h.experiences.Update(r.Context(), uid, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experienceResponse{OK: true, Item: e})
}

// HandleDelete removes the caller's entry {id}.
//
// HTTP: DELETE /api/me/experience/{id}
// Auth: required
func (h *ExperienceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	if err := h.experiences.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
