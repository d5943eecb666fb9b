package handler

import (
	"net/http"
	"time"

	"github.com/gatherhq/api/internal/app"
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/validator"
)

// InviteHandler handles invite code management and redemption.
type InviteHandler struct {
	service   *app.InviteService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(svc *app.InviteService, v *validator.Validator, log *logger.Logger) *InviteHandler {
	return &InviteHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// =============================================================================
// Response Types
// =============================================================================

// InviteResponse represents an invite in API responses.
type InviteResponse struct {
	Code      string     `json:"code"`
	SpaceID   string     `json:"space_id"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	UsesCount int        `json:"uses_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

func toInviteResponse(inv *space.Invite) InviteResponse {
	return InviteResponse{
		Code:      inv.Code(),
		SpaceID:   inv.SpaceID().String(),
		MaxUses:   inv.MaxUses(),
		UsesCount: inv.UsesCount(),
		ExpiresAt: inv.ExpiresAt(),
		Active:    inv.Active(),
		CreatedBy: inv.CreatedBy().String(),
		CreatedAt: inv.CreatedAt(),
	}
}

// =============================================================================
// Handlers
// =============================================================================

// Create handles POST /api/v1/spaces/{spaceRef}/invites.
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	var input app.CreateInviteInput
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &input) {
			return
		}
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	inv, err := h.service.Create(r.Context(), ref, input, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInviteResponse(inv))
}

// List handles GET /api/v1/spaces/{spaceRef}/invites.
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	invites, err := h.service.List(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]InviteResponse, len(invites))
	for i, inv := range invites {
		resp[i] = toInviteResponse(inv)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Deactivate handles DELETE /api/v1/invites/{code}.
// Deactivating an already inactive invite is a no-op.
func (h *InviteHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	code := infrahttp.PathParam(r, "code")

	if err := h.service.Deactivate(r.Context(), code, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Redeem handles POST /api/v1/invites/{code}/redeem.
// Redeeming as an existing member returns the current membership without
// consuming a use.
func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	code := infrahttp.PathParam(r, "code")

	m, err := h.service.Redeem(r.Context(), code, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMembershipResponse(m))
}
