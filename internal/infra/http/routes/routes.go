// Package routes registers all HTTP routes for the API.
// Routes are organized by domain for maintainability.
package routes

import (
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/internal/infra/http/handler"
	"github.com/gatherhq/api/internal/infra/http/middleware"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health      *handler.HealthHandler
	Auth        *handler.AuthHandler
	Space       *handler.SpaceHandler
	JoinRequest *handler.JoinRequestHandler
	Invite      *handler.InviteHandler
	Moderation  *handler.ModerationHandler
	Access      *handler.AccessHandler

	// AuthRateLimiter throttles login and registration attempts.
	// Optional; created by Register when nil.
	AuthRateLimiter *middleware.AuthRateLimiter
}

// Register registers all application routes.
// This keeps route definitions in the infrastructure layer, not in main.
// Returns a cleanup function to stop route-owned rate limiters.
func Register(router Router, h Handlers, tokens *jwt.Generator, log *logger.Logger) func() {
	authMw := middleware.RequireAuth(tokens, log)

	if h.AuthRateLimiter == nil {
		h.AuthRateLimiter = middleware.NewAuthRateLimiter(middleware.DefaultAuthRateLimitConfig(), log)
	}

	registerHealthRoutes(router, h.Health)
	registerAuthRoutes(router, h, authMw)
	registerSpaceRoutes(router, h, authMw)

	return h.AuthRateLimiter.Stop
}
