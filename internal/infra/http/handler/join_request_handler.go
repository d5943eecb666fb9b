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

// JoinRequestHandler handles the join-request workflow for private and
// secret spaces.
type JoinRequestHandler struct {
	service   *app.JoinRequestService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewJoinRequestHandler creates a new join request handler.
func NewJoinRequestHandler(svc *app.JoinRequestService, v *validator.Validator, log *logger.Logger) *JoinRequestHandler {
	return &JoinRequestHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// =============================================================================
// Response Types
// =============================================================================

// JoinRequestResponse represents a join request in API responses.
type JoinRequestResponse struct {
	ID        string     `json:"id"`
	SpaceID   string     `json:"space_id"`
	UserID    string     `json:"user_id"`
	Message   string     `json:"message,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`
}

// ApprovalResultResponse reports the per-item outcome of a bulk approval.
type ApprovalResultResponse struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Approved  bool   `json:"approved"`
	Error     string `json:"error,omitempty"`
}

func toJoinRequestResponse(jr *space.JoinRequest) JoinRequestResponse {
	resp := JoinRequestResponse{
		ID:        jr.ID().String(),
		SpaceID:   jr.SpaceID().String(),
		UserID:    jr.UserID().String(),
		Message:   jr.Message(),
		Status:    jr.Status().String(),
		CreatedAt: jr.CreatedAt(),
		DecidedAt: jr.DecidedAt(),
	}
	if jr.DecidedBy() != nil {
		resp.DecidedBy = jr.DecidedBy().String()
	}
	return resp
}

// =============================================================================
// Handlers
// =============================================================================

// Create handles POST /api/v1/spaces/{spaceRef}/requests.
func (h *JoinRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	var input app.CreateJoinRequestInput
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &input) {
			return
		}
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	jr, err := h.service.Create(r.Context(), ref, input, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJoinRequestResponse(jr))
}

// ListPending handles GET /api/v1/spaces/{spaceRef}/requests.
// Only managers and platform admins can read the queue.
func (h *JoinRequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	requests, err := h.service.ListPending(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]JoinRequestResponse, len(requests))
	for i, jr := range requests {
		resp[i] = toJoinRequestResponse(jr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /api/v1/requests/{requestId}/cancel.
func (h *JoinRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	requestID := infrahttp.PathParam(r, "requestId")

	if err := h.service.Cancel(r.Context(), requestID, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Approve handles POST /api/v1/requests/{requestId}/approve.
func (h *JoinRequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	requestID := infrahttp.PathParam(r, "requestId")

	if err := h.service.Approve(r.Context(), requestID, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reject handles POST /api/v1/requests/{requestId}/reject.
func (h *JoinRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	requestID := infrahttp.PathParam(r, "requestId")

	if err := h.service.Reject(r.Context(), requestID, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApproveAll handles POST /api/v1/spaces/{spaceRef}/requests/approve-all.
// Each pending request is decided independently; failures do not abort the
// rest of the batch.
func (h *JoinRequestHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	results, err := h.service.ApproveAll(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]ApprovalResultResponse, len(results))
	for i, res := range results {
		item := ApprovalResultResponse{
			RequestID: res.RequestID.String(),
			UserID:    res.UserID.String(),
			Approved:  res.Err == nil,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}
