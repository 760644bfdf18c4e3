// Package handler serves restoration audit records to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ironclad/internal/audit"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/httputil"
	request "ironclad/pkg/platform/middleware/request"
)

// Lister reads audit records.
type Lister interface {
	List(ctx context.Context, q audit.Query) ([]*audit.Record, error)
}

type Handler struct {
	records Lister
	logger  *slog.Logger
}

func New(records Lister, logger *slog.Logger) *Handler {
	return &Handler{records: records, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit-logs", h.HandleList)
}

type RecordResponse struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id"`
	APIKeyID       string    `json:"api_key_id,omitempty"`
	ServiceName    string    `json:"service_name"`
	Timestamp      time.Time `json:"timestamp"`
	RedactedText   string    `json:"redacted_text"`
	RestoredText   string    `json:"restored_text,omitempty"`
	TokenCount     int       `json:"token_count"`
	TokensRestored int       `json:"tokens_restored"`
	Success        bool      `json:"success"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ClientIP       string    `json:"client_ip"`
	ClientAgent    string    `json:"client_agent"`
}

type ListResponse struct {
	Records []RecordResponse `json:"records"`
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.records.List(ctx, audit.Query{
		ServiceName: strings.TrimSpace(r.URL.Query().Get("service_name")),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit records",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "audit store unavailable"))
		return
	}

	resp := ListResponse{Records: make([]RecordResponse, 0, len(records)), Limit: limit, Offset: offset}
	for _, rec := range records {
		item := RecordResponse{
			ID:             rec.ID.String(),
			RequestID:      rec.RequestID,
			ServiceName:    rec.ServiceName,
			Timestamp:      rec.Timestamp,
			RedactedText:   rec.RedactedText,
			RestoredText:   rec.RestoredText,
			TokenCount:     rec.TokenCount,
			TokensRestored: rec.TokensRestored,
			Success:        rec.Success,
			ErrorCode:      rec.ErrorCode,
			ErrorMessage:   rec.ErrorMessage,
			ClientIP:       rec.ClientIP,
			ClientAgent:    rec.ClientAgent,
		}
		if rec.APIKeyID != nil {
			item.APIKeyID = rec.APIKeyID.String()
		}
		resp.Records = append(resp.Records, item)
	}
	resp.Count = len(resp.Records)
	httputil.WriteJSON(w, http.StatusOK, resp)
}
