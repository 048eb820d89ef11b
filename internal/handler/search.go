package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DiegoCico/Neuro/internal/model"
)

// UserSearch is the part of service.SearchService the search route uses.
type UserSearch interface {
	Users(ctx context.Context, q string, limit int) ([]model.SearchCard, error)
}

// SearchHandler serves user search.
type SearchHandler struct {
	search UserSearch
	logger *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(search UserSearch, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

type searchResponse struct {
	Items []model.SearchCard `json:"items"`
}

// HandleSearchUsers finds users by name. A limit that is not a number
// falls back to the default.
//
// HTTP: GET /api/search/users?q=ada&limit=8
func (h *SearchHandler) HandleSearchUsers(w http.ResponseWriter, r *http.Request) {
	// Atoi yields 0 on bad input, which the service reads as the default.
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.search.Users(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.logger.Error("user search failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.SearchCard{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items})
}
