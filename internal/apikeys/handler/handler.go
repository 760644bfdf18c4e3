// Package handler exposes API key management on the admin router.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ironclad/internal/apikeys/models"
	id "ironclad/pkg/domain"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/httputil"
	request "ironclad/pkg/platform/middleware/request"
)

// Service is the key management surface the handler needs.
type Service interface {
	Create(ctx context.Context, serviceName string) (*models.APIKey, string, error)
	List(ctx context.Context, filter models.Filter) ([]*models.APIKey, error)
	Revoke(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the key routes. The caller applies admin authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/keys", h.HandleCreate)
	r.Get("/admin/keys", h.HandleList)
	r.Post("/admin/keys/{id}/revoke", h.HandleRevoke)
}

type CreateKeyRequest struct {
	ServiceName string `json:"service_name"`
}

func (r *CreateKeyRequest) Validate() error {
	r.ServiceName = strings.TrimSpace(r.ServiceName)
	if r.ServiceName == "" {
		return dErrors.New(dErrors.CodeValidation, "service_name is required")
	}
	return nil
}

// KeyResponse never includes the secret hash.
type KeyResponse struct {
	ID          string     `json:"id"`
	Prefix      string     `json:"prefix"`
	ServiceName string     `json:"service_name"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	Revoked     bool       `json:"revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// CreateKeyResponse carries the raw key; this is the only time it is shown.
type CreateKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

type ListKeysResponse struct {
	Keys   []KeyResponse `json:"keys"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func toResponse(k *models.APIKey) KeyResponse {
	return KeyResponse{
		ID:          k.ID.String(),
		Prefix:      k.Prefix,
		ServiceName: k.ServiceName,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
		UsageCount:  k.UsageCount,
		Revoked:     k.Revoked,
		RevokedAt:   k.RevokedAt,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	key, raw, err := h.service.Create(ctx, req.ServiceName)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create api key",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreateKeyResponse{KeyResponse: toResponse(key), Key: raw})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.Filter{
		ServiceName: strings.TrimSpace(r.URL.Query().Get("service_name")),
		Limit:       limit,
		Offset:      offset,
	}
	if raw := r.URL.Query().Get("include_revoked"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "include_revoked must be a boolean"))
			return
		}
		filter.IncludeRevoked = include
	}

	keys, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list api keys",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := ListKeysResponse{Keys: make([]KeyResponse, 0, len(keys)), Limit: limit, Offset: offset}
	for _, k := range keys {
		resp.Keys = append(resp.Keys, toResponse(k))
	}
	resp.Count = len(resp.Keys)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := id.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid api key id"))
		return
	}
	key, err := h.service.Revoke(ctx, keyID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to revoke api key",
			"request_id", request.GetRequestID(ctx),
			"api_key_id", keyID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(key))
}
