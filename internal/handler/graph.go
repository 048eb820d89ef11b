package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/model"
)

// FollowGraph is the part of service.FollowService the graph routes use.
type FollowGraph interface {
	Follow(ctx context.Context, viewerID, targetSlug string) (*model.FollowResult, error)
	Unfollow(ctx context.Context, viewerID, targetSlug string) (*model.FollowResult, error)
	ListFollowers(ctx context.Context, uid string) ([]model.FollowerCard, error)
}

// GraphHandler serves follow, unfollow and the follower list.
type GraphHandler struct {
	graph  FollowGraph
	logger *slog.Logger
}

// NewGraphHandler creates a GraphHandler.
func NewGraphHandler(graph FollowGraph, logger *slog.Logger) *GraphHandler {
	return &GraphHandler{graph: graph, logger: logger}
}

// HandleFollow makes the caller follow the user behind {slug}.
//
// HTTP: POST /api/users/{slug}/follow
// Auth: required
func (h *GraphHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "follow", h.graph.Follow)
}

// HandleUnfollow makes the caller stop following the user behind {slug}.
//
// HTTP: POST /api/users/{slug}/unfollow
// Auth: required
func (h *GraphHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "unfollow", h.graph.Unfollow)
}

func (h *GraphHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, viewerID, targetSlug string) (*model.FollowResult, error),
) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	res, err := fn(r.Context(), viewerID, slug)
	if err != nil {
		h.logger.Warn(op+" failed",
			slog.String("viewerID", viewerID),
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type followersResponse struct {
	OK        bool                 `json:"ok"`
	Followers []model.FollowerCard `json:"followers"`
}

// HandleFollowers lists the caller's followers.
//
// HTTP: GET /api/network/followers
// Auth: required
func (h *GraphHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	cards, err := h.graph.ListFollowers(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []model.FollowerCard{}
	}
	writeJSON(w, http.StatusOK, followersResponse{OK: true, Followers: cards})
}
