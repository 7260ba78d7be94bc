package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	api.POST("/checkout", s.checkout, s.middleware.Throttle.Checkout())

	orders := api.Group("/orders")
	orders.POST("", s.placeOrder)
	orders.GET("/:id", s.getOrder)
	orders.PATCH("/:id/status", s.updateOrderStatus)

	admin := api.Group("/admin")
	admin.Use(s.middleware.Admin.RequireAdmin())

	q := admin.Group("/quota")
	q.GET("/settings", s.getQuotaSettings)
	q.PUT("/settings", s.updateQuotaSettings)
	q.GET("/status", s.getQuotaStatus)
	q.POST("/cache/invalidate", s.invalidateQuotaCache)
	q.GET("/users/:id/verify-cache", s.verifyQuotaCache)
	q.GET("/users/:id/override", s.getOverride)
	q.PUT("/users/:id/override", s.setOverride)
	q.DELETE("/users/:id/override", s.clearOverride)
	q.POST("/users/:id/override/pin", s.pinOverride)

	admin.GET("/audit/logs", s.getAuditLogs)
}
