package handler

import (
	"net/http"

	"github.com/gatherhq/api/internal/app"
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/logger"
)

// AccessHandler exposes the access decision endpoint used by content
// services to gate reads and writes.
type AccessHandler struct {
	service *app.AccessService
	logger  *logger.Logger
}

// NewAccessHandler creates a new access handler.
func NewAccessHandler(svc *app.AccessService, log *logger.Logger) *AccessHandler {
	return &AccessHandler{
		service: svc,
		logger:  log,
	}
}

// DecisionResponse represents an access decision.
type DecisionResponse struct {
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Check handles GET /api/v1/spaces/{spaceRef}/access?action=view.
// A denial is a valid 200 response; only malformed input or unknown spaces
// produce errors.
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	raw := infrahttp.QueryParamDefault(r, "action", space.ActionView.String())
	action, valid := space.ParseAction(raw)
	if !valid {
		apierror.BadRequest("Unknown action").WriteJSON(w)
		return
	}

	decision, err := h.service.Check(r.Context(), ref, userID, action)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, DecisionResponse{
		Action:  action.String(),
		Allowed: decision.Allowed,
		Reason:  string(decision.Reason),
	})
}
