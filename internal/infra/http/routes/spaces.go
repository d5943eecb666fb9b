package routes

// registerSpaceRoutes registers space, membership, join-request, invite,
// moderation, and access-check endpoints. All routes require authentication;
// finer authorization (membership, manager role, platform admin) is decided
// in the application layer, which also owns secret-space concealment.
func registerSpaceRoutes(router Router, h Handlers, authMw Middleware) {
	router.Group("/api/v1/spaces", func(r Router) {
		// Discovery and CRUD
		r.GET("/", h.Space.List)
		r.POST("/", h.Space.Create)
		r.GET("/mine", h.Space.ListMine)
		r.GET("/{spaceRef}", h.Space.Get)
		r.PATCH("/{spaceRef}", h.Space.Update)
		r.DELETE("/{spaceRef}", h.Space.Delete)

		// Own membership
		r.POST("/{spaceRef}/join", h.Space.Join)
		r.GET("/{spaceRef}/membership", h.Space.GetMembership)
		r.DELETE("/{spaceRef}/membership", h.Space.Leave)

		// Member roster
		r.GET("/{spaceRef}/members", h.Space.ListMembers)
		r.GET("/{spaceRef}/members/count", h.Space.MemberCount)

		// Access decisions
		r.GET("/{spaceRef}/access", h.Access.Check)

		// Join requests (private and secret spaces)
		r.POST("/{spaceRef}/requests", h.JoinRequest.Create)
		r.GET("/{spaceRef}/requests", h.JoinRequest.ListPending)
		r.POST("/{spaceRef}/requests/approve-all", h.JoinRequest.ApproveAll)

		// Invites (private and secret spaces)
		r.POST("/{spaceRef}/invites", h.Invite.Create)
		r.GET("/{spaceRef}/invites", h.Invite.List)

		// Moderation
		r.PATCH("/{spaceRef}/members/{userId}/role", h.Moderation.UpdateRole)
		r.POST("/{spaceRef}/members/{userId}/block", h.Moderation.Block)
		r.POST("/{spaceRef}/members/{userId}/unblock", h.Moderation.Unblock)
		r.DELETE("/{spaceRef}/members/{userId}", h.Moderation.Remove)
	}, authMw)

	// Join request decisions are addressed by request ID.
	router.Group("/api/v1/requests", func(r Router) {
		r.POST("/{requestId}/cancel", h.JoinRequest.Cancel)
		r.POST("/{requestId}/approve", h.JoinRequest.Approve)
		r.POST("/{requestId}/reject", h.JoinRequest.Reject)
	}, authMw)

	// Invite redemption is addressed by code.
	router.Group("/api/v1/invites", func(r Router) {
		r.DELETE("/{code}", h.Invite.Deactivate)
		r.POST("/{code}/redeem", h.Invite.Redeem)
	}, authMw)
}
