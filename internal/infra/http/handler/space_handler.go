package handler

import (
	"net/http"
	"time"

	"github.com/gatherhq/api/internal/app"
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/pagination"
	"github.com/gatherhq/api/pkg/validator"
)

// SpaceHandler handles space CRUD and membership HTTP requests.
type SpaceHandler struct {
	spaces    *app.SpaceService
	access    *app.AccessService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewSpaceHandler creates a new space handler.
func NewSpaceHandler(spaces *app.SpaceService, access *app.AccessService, v *validator.Validator, log *logger.Logger) *SpaceHandler {
	return &SpaceHandler{
		spaces:    spaces,
		access:    access,
		validator: v,
		logger:    log,
	}
}

// =============================================================================
// Response Types
// =============================================================================

// SpaceResponse represents a space in API responses.
type SpaceResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Description        string    `json:"description,omitempty"`
	Visibility         string    `json:"visibility"`
	AutoJoin           bool      `json:"auto_join"`
	AllowMemberPosts   bool      `json:"allow_member_posts"`
	RequiresPayment    bool      `json:"requires_payment"`
	SubscriptionTierID string    `json:"subscription_tier_id,omitempty"`
	CreatedBy          string    `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MembershipResponse represents a membership in API responses.
type MembershipResponse struct {
	ID       string         `json:"id"`
	SpaceID  string         `json:"space_id"`
	UserID   string         `json:"user_id"`
	Role     string         `json:"role"`
	Status   string         `json:"status"`
	JoinedAt time.Time      `json:"joined_at"`
	Block    *BlockResponse `json:"block,omitempty"`
}

// BlockResponse describes an active block on a membership.
type BlockResponse struct {
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	BlockedBy string     `json:"blocked_by"`
	BlockedAt time.Time  `json:"blocked_at"`
}

// SpaceWithRoleResponse represents a space along with the caller's role.
type SpaceWithRoleResponse struct {
	SpaceResponse
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// MemberCountResponse carries a space's active member count.
type MemberCountResponse struct {
	Count int64 `json:"count"`
}

func toSpaceResponse(sp *space.Space) SpaceResponse {
	resp := SpaceResponse{
		ID:               sp.ID().String(),
		Name:             sp.Name(),
		Slug:             sp.Slug(),
		Description:      sp.Description(),
		Visibility:       sp.Visibility().String(),
		AutoJoin:         sp.AutoJoin(),
		AllowMemberPosts: sp.AllowMemberPosts(),
		RequiresPayment:  sp.RequiresPayment(),
		CreatedBy:        sp.CreatedBy().String(),
		CreatedAt:        sp.CreatedAt(),
		UpdatedAt:        sp.UpdatedAt(),
	}
	if sp.SubscriptionTierID() != nil {
		resp.SubscriptionTierID = sp.SubscriptionTierID().String()
	}
	return resp
}

func toMembershipResponse(m *space.Membership) MembershipResponse {
	resp := MembershipResponse{
		ID:       m.ID().String(),
		SpaceID:  m.SpaceID().String(),
		UserID:   m.UserID().String(),
		Role:     m.Role().String(),
		Status:   string(m.Status(time.Now().UTC())),
		JoinedAt: m.JoinedAt(),
	}
	if b := m.Block(); b != nil {
		resp.Block = &BlockResponse{
			Type:      b.Type().String(),
			ExpiresAt: b.ExpiresAt(),
			BlockedBy: b.BlockedBy().String(),
			BlockedAt: b.BlockedAt(),
		}
	}
	return resp
}

func toSpaceWithRoleResponse(swr *space.SpaceWithRole) SpaceWithRoleResponse {
	return SpaceWithRoleResponse{
		SpaceResponse: toSpaceResponse(swr.Space),
		Role:          swr.Role.String(),
		Status:        string(swr.Status),
		JoinedAt:      swr.JoinedAt,
	}
}

// parsePagination reads page/per_page query parameters.
func parsePagination(r *http.Request) pagination.Pagination {
	page := parseQueryInt(infrahttp.QueryParam(r, "page"), 1)
	perPage := parseQueryInt(infrahttp.QueryParam(r, "per_page"), 20)
	return pagination.New(page, perPage)
}

// =============================================================================
// Space CRUD Handlers
// =============================================================================

// Create handles POST /api/v1/spaces.
func (h *SpaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input app.CreateSpaceInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	sp, err := h.spaces.Create(r.Context(), input, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSpaceResponse(sp))
}

// Get handles GET /api/v1/spaces/{spaceRef}.
// Secret spaces are only visible to their members.
func (h *SpaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	sp, err := h.access.GetSpaceForActor(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSpaceResponse(sp))
}

// Update handles PATCH /api/v1/spaces/{spaceRef}.
func (h *SpaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	var input app.UpdateSpaceInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	sp, err := h.spaces.Update(r.Context(), ref, input, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSpaceResponse(sp))
}

// Delete handles DELETE /api/v1/spaces/{spaceRef}.
func (h *SpaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	if err := h.spaces.Delete(r.Context(), ref, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/spaces.
// Only publicly discoverable spaces are listed.
func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaces.List(r.Context(), parsePagination(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]SpaceResponse, len(spaces))
	for i, sp := range spaces {
		resp[i] = toSpaceResponse(sp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMine handles GET /api/v1/spaces/mine.
func (h *SpaceHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	spaces, err := h.spaces.ListForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]SpaceWithRoleResponse, len(spaces))
	for i, swr := range spaces {
		resp[i] = toSpaceWithRoleResponse(swr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Membership Handlers
// =============================================================================

// Join handles POST /api/v1/spaces/{spaceRef}/join.
func (h *SpaceHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	m, err := h.spaces.Join(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMembershipResponse(m))
}

// Leave handles DELETE /api/v1/spaces/{spaceRef}/membership.
func (h *SpaceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	if err := h.spaces.Leave(r.Context(), ref, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMembership handles GET /api/v1/spaces/{spaceRef}/membership.
func (h *SpaceHandler) GetMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	m, err := h.spaces.GetMembership(r.Context(), ref, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMembershipResponse(m))
}

// ListMembers handles GET /api/v1/spaces/{spaceRef}/members.
// Private and secret member rosters require an active membership.
func (h *SpaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	ref := infrahttp.PathParam(r, "spaceRef")

	members, err := h.spaces.ListMembers(r.Context(), ref, userID, parsePagination(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]MembershipResponse, len(members))
	for i, m := range members {
		resp[i] = toMembershipResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// MemberCount handles GET /api/v1/spaces/{spaceRef}/members/count.
func (h *SpaceHandler) MemberCount(w http.ResponseWriter, r *http.Request) {
	ref := infrahttp.PathParam(r, "spaceRef")

	count, err := h.spaces.MemberCount(r.Context(), ref)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MemberCountResponse{Count: count})
}
