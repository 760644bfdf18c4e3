// Package handler exposes token restoration to API key holders.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ironclad/internal/restoration"
	"ironclad/pkg/platform/httputil"
	request "ironclad/pkg/platform/middleware/request"
)

// APIKeyHeader carries the raw service key.
const APIKeyHeader = "X-API-Key"

type Service interface {
	Restore(ctx context.Context, redactedText, rawKey string) (*restoration.Result, error)
	RejectMalformed(ctx context.Context, rawKey string, cause error) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/restore", h.HandleRestore)
}

type RestoreRequest struct {
	RedactedText string `json:"redacted_text"`
}

type RestoreResponse struct {
	RequestID        string   `json:"request_id"`
	OriginalText     string   `json:"original_text"`
	TokensFound      int      `json:"tokens_found"`
	TokensRestored   int      `json:"tokens_restored"`
	TokensUnresolved []string `json:"tokens_unresolved"`
	Partial          bool     `json:"partial"`
	AuditID          string   `json:"audit_id"`
}

// HandleRestore hands every attempt to the service, unreadable bodies and
// missing keys included, so each one is audited. Empty text is left to the
// service and reported as no_tokens_found.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawKey := r.Header.Get(APIKeyHeader)

	req, err := httputil.DecodeJSON[RestoreRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to decode restore request",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, h.service.RejectMalformed(ctx, rawKey, err))
		return
	}
	res, err := h.service.Restore(ctx, req.RedactedText, rawKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	unresolved := res.Unresolved
	if unresolved == nil {
		unresolved = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, RestoreResponse{
		RequestID:        res.RequestID,
		OriginalText:     res.OriginalText,
		TokensFound:      res.TokensFound,
		TokensRestored:   res.TokensRestored,
		TokensUnresolved: unresolved,
		Partial:          res.Partial,
		AuditID:          res.AuditRecordID.String(),
	})
}
