// Package handler serves recorded verification outcomes to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ironclad/internal/verification"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/httputil"
	request "ironclad/pkg/platform/middleware/request"
)

type Lister interface {
	List(ctx context.Context, limit, offset int) ([]verification.Result, error)
}

type Handler struct {
	results Lister
	logger  *slog.Logger
}

func New(results Lister, logger *slog.Logger) *Handler {
	return &Handler{results: results, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/verifications", h.HandleList)
}

type ListResponse struct {
	Results []verification.Result `json:"results"`
	Count   int                   `json:"count"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.results.List(ctx, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list verification results",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "verification store unavailable"))
		return
	}
	if results == nil {
		results = []verification.Result{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Results: results, Count: len(results), Limit: limit, Offset: offset})
}
