// Package handler exposes the redact pipeline and the policy catalogue.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ironclad/internal/gateway"
	"ironclad/internal/policy"
	"ironclad/internal/redaction"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/httputil"
	request "ironclad/pkg/platform/middleware/request"
)

// Service is the redact surface the handler needs.
type Service interface {
	Redact(ctx context.Context, text, contextName string, overrides policy.Overrides) (*gateway.Outcome, error)
	Contexts() []policy.Context
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/redact", h.HandleRedact)
	r.Get("/v1/policies", h.HandlePolicies)
}

type PolicyRequest struct {
	Context                string             `json:"context"`
	EnabledEntities        []string           `json:"enabled_entities,omitempty"`
	DisabledEntities       []string           `json:"disabled_entities,omitempty"`
	RestorationAllowed     *bool              `json:"restoration_allowed,omitempty"`
	MinConfidenceThreshold *float64           `json:"min_confidence_threshold,omitempty"`
	EntityThresholds       map[string]float64 `json:"entity_thresholds,omitempty"`
}

type RedactRequest struct {
	Text   string         `json:"text"`
	Policy *PolicyRequest `json:"policy,omitempty"`
}

// Validate leaves Text untouched; entity offsets refer to the exact input.
func (r *RedactRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	if r.Policy == nil {
		r.Policy = &PolicyRequest{}
	}
	return r.overrides().Validate()
}

func (r *RedactRequest) overrides() policy.Overrides {
	return policy.Overrides{
		EnabledTypes:         r.Policy.EnabledEntities,
		DisabledTypes:        r.Policy.DisabledEntities,
		MinConfidence:        r.Policy.MinConfidenceThreshold,
		PerTypeMinConfidence: r.Policy.EntityThresholds,
		RestorationAllowed:   r.Policy.RestorationAllowed,
	}
}

type ConfidenceScore struct {
	EntityType string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

type PolicySummary struct {
	Context               string   `json:"context"`
	Description           string   `json:"description"`
	EnabledEntities       []string `json:"enabled_entities"`
	RestorationAllowed    bool     `json:"restoration_allowed"`
	RestorationDowngraded bool     `json:"restoration_downgraded"`
	EntitiesFiltered      int      `json:"entities_filtered"`
}

type RedactResponse struct {
	RequestID         string            `json:"request_id"`
	RedactedText      string            `json:"redacted_text"`
	ConfidenceScores  []ConfidenceScore `json:"confidence_scores"`
	ConfidenceSummary redaction.Summary `json:"confidence_summary"`
	Policy            PolicySummary     `json:"policy"`
	AuditStatus       string            `json:"audit_status"`
}

type PolicyResponse struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	EnabledEntities    []string `json:"enabled_entities"`
	MinConfidence      float64  `json:"min_confidence"`
	RestorationAllowed bool     `json:"restoration_allowed"`
}

type PoliciesResponse struct {
	Policies []PolicyResponse `json:"policies"`
	Default  string           `json:"default"`
}

func (h *Handler) HandleRedact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RedactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	out, err := h.service.Redact(ctx, req.Text, req.Policy.Context, req.overrides())
	if err != nil {
		h.logger.WarnContext(ctx, "redact failed",
			"request_id", requestID,
			"error_code", string(dErrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	scores := make([]ConfidenceScore, 0, len(out.Redacted))
	for _, red := range out.Redacted {
		scores = append(scores, ConfidenceScore{
			EntityType: red.EntityType,
			Confidence: red.Confidence,
			Start:      red.Start,
			End:        red.End,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, RedactResponse{
		RequestID:         out.RequestID,
		RedactedText:      out.RedactedText,
		ConfidenceScores:  scores,
		ConfidenceSummary: out.Summary,
		Policy: PolicySummary{
			Context:               out.Decision.Context,
			Description:           out.Decision.Description,
			EnabledEntities:       out.Decision.EnabledTypes,
			RestorationAllowed:    out.Decision.RestorationAllowed,
			RestorationDowngraded: out.Decision.RestorationDowngraded,
			EntitiesFiltered:      out.EntitiesFiltered,
		},
		AuditStatus: out.AuditStatus,
	})
}

func (h *Handler) HandlePolicies(w http.ResponseWriter, _ *http.Request) {
	contexts := h.service.Contexts()
	resp := PoliciesResponse{Policies: make([]PolicyResponse, 0, len(contexts)), Default: policy.DefaultContext}
	for _, c := range contexts {
		resp.Policies = append(resp.Policies, PolicyResponse{
			Name:               c.Name,
			Description:        c.Description,
			EnabledEntities:    c.EnabledTypes,
			MinConfidence:      c.Floor,
			RestorationAllowed: !c.RestorationLocked,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
