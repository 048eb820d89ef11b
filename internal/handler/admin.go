package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DiegoCico/Neuro/internal/apperror"
	"github.com/DiegoCico/Neuro/internal/model"
	"github.com/DiegoCico/Neuro/internal/repository"
)

// SlugBackfiller is the part of service.IdentityResolver the admin routes use.
type SlugBackfiller interface {
	BackfillSlugs(ctx context.Context, batchSize int) (int, error)
}

// ProfileWriter is the part of service.ProfileService the admin routes use.
type ProfileWriter interface {
	Upsert(ctx context.Context, uid string, fields repository.Fields) (*model.User, error)
}

// AdminHandler serves operator routes. They sit behind auth.RequireAdminKey.
type AdminHandler struct {
	backfill SlugBackfiller
	profiles ProfileWriter
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(backfill SlugBackfiller, profiles ProfileWriter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{backfill: backfill, profiles: profiles, logger: logger}
}

type backfillResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}

// HandleBackfillSlugs gives every user without a slug one.
//
// HTTP: POST /api/admin/backfill-slugs?batchSize=400
func (h *AdminHandler) HandleBackfillSlugs(w http.ResponseWriter, r *http.Request) {
	batchSize := 0
	if v := r.URL.Query().Get("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperror.ValidationFailed("batchSize", "batchSize must be a positive integer"))
			return
		}
		batchSize = n
	}

	updated, err := h.backfill.BackfillSlugs(r.Context(), batchSize)
	if err != nil {
		h.logger.Error("slug backfill failed",
			slog.Int("updated", updated),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("slug backfill finished", slog.Int("updated", updated))
	writeJSON(w, http.StatusOK, backfillResponse{OK: true, Updated: updated})
}

// HandleUpsertUser merges profile fields into a user, creating it if needed.
// Every key of the body except uid is a field to write.
//
// HTTP: POST /api/admin/upsert-user
// Body: {"uid": "...", "firstName": "...", "skills": [...], ...}
func (h *AdminHandler) HandleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	uid, ok := body["uid"].(string)
	if !ok {
		writeError(w, apperror.ValidationFailed("uid", "uid required"))
		return
	}
	delete(body, "uid")

	u, err := h.profiles.Upsert(r.Context(), uid, repository.Fields(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{OK: true, Profile: u})
}
