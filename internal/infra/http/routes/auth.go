package routes

// registerAuthRoutes registers registration, login, and token endpoints.
// Login and registration carry stricter per-IP rate limits than the global
// limiter.
func registerAuthRoutes(router Router, h Handlers, authMw Middleware) {
	router.Group("/api/v1/auth", func(r Router) {
		r.POST("/register", h.Auth.Register, h.AuthRateLimiter.RegisterMiddleware())
		r.POST("/login", h.Auth.Login, h.AuthRateLimiter.LoginMiddleware())
		r.POST("/refresh", h.Auth.Refresh)
		r.GET("/me", h.Auth.Me, authMw)
	})
}
