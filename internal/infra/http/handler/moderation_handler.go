package handler

import (
	"net/http"

	"github.com/gatherhq/api/internal/app"
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/validator"
)

// ModerationHandler handles role changes, blocking, and member removal.
type ModerationHandler struct {
	service   *app.ModerationService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewModerationHandler creates a new moderation handler.
func NewModerationHandler(svc *app.ModerationService, v *validator.Validator, log *logger.Logger) *ModerationHandler {
	return &ModerationHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// UpdateRoleRequest selects the target role for a member.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,space_role"`
}

// UpdateRole handles PATCH /api/v1/spaces/{spaceRef}/members/{userId}/role.
// Only platform admins may promote or demote.
func (h *ModerationHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")
	targetUserID := infrahttp.PathParam(r, "userId")

	var req UpdateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	var err error
	var m MembershipResponse
	switch req.Role {
	case "manager":
		membership, promoteErr := h.service.Promote(r.Context(), ref, targetUserID, actorID)
		if promoteErr != nil {
			err = promoteErr
		} else {
			m = toMembershipResponse(membership)
		}
	case "member":
		membership, demoteErr := h.service.Demote(r.Context(), ref, targetUserID, actorID)
		if demoteErr != nil {
			err = demoteErr
		} else {
			m = toMembershipResponse(membership)
		}
	default:
		apierror.BadRequest("Unknown role").WriteJSON(w)
		return
	}

	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Block handles POST /api/v1/spaces/{spaceRef}/members/{userId}/block.
func (h *ModerationHandler) Block(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")
	targetUserID := infrahttp.PathParam(r, "userId")

	var input app.BlockMemberInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	m, err := h.service.Block(r.Context(), ref, targetUserID, input, actorID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}

// Unblock handles POST /api/v1/spaces/{spaceRef}/members/{userId}/unblock.
// Unblocking an unblocked member is a no-op.
func (h *ModerationHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")
	targetUserID := infrahttp.PathParam(r, "userId")

	m, err := h.service.Unblock(r.Context(), ref, targetUserID, actorID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}

// Remove handles DELETE /api/v1/spaces/{spaceRef}/members/{userId}.
func (h *ModerationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")
	targetUserID := infrahttp.PathParam(r, "userId")

	if err := h.service.Remove(r.Context(), ref, targetUserID, actorID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
