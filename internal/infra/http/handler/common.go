package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gatherhq/api/internal/infra/http/middleware"
	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/validator"
)

// parseQueryInt parses a query parameter as an integer.
// Returns defaultVal if the input is empty or invalid.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body. Returns false after writing an error
// response when the body is malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return false
	}
	return true
}

// currentUserID extracts the authenticated user ID from the request context.
// Returns false after writing a 401 when the request is unauthenticated.
func currentUserID(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	id := middleware.UserIDFromContext(r.Context())
	if id.IsZero() {
		apierror.Unauthorized("User context required").WriteJSON(w)
		return shared.ID{}, false
	}
	return id, true
}

// handleValidationError writes field-level validation failures.
func handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError maps domain and application errors to API responses.
// Specific invite failures are checked before the generic sentinels so they
// can carry their own status codes.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, space.ErrInviteExpired),
		errors.Is(err, space.ErrInviteExhausted),
		errors.Is(err, space.ErrInviteInactive):
		apierror.Gone(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound(resourceName(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyExists),
		errors.Is(err, shared.ErrConflict):
		apierror.Conflict(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidInput):
		apierror.BadRequest(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrUnauthorized):
		apierror.Unauthorized(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrForbidden):
		apierror.Forbidden(trimSentinel(err)).WriteJSON(w)
	default:
		log.Error("service error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}

// trimSentinel strips the sentinel prefix from a wrapped domain error so the
// response message reads naturally.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx != -1 {
		msg = msg[idx+2:]
	}
	return msg
}

// resourceName derives a resource label for 404 responses. Services wrap
// not-found errors as "not found: <resource>".
func resourceName(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx != -1 {
		return strings.TrimSpace(msg[idx+2:])
	}
	return "Resource"
}
