package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleGetHealth)
		v1.GET("/status", s.handleGetStatus)

		decisions := v1.Group("/decisions")
		{
			decisions.GET("", s.handleListDecisions)
			decisions.GET("/count", s.handleCountOutcomes)
		}

		trainingGroup := v1.Group("/training")
		{
			trainingGroup.GET("/status", s.handleTrainingStatus)
			trainingGroup.GET("/adapters/:agent_id", s.handleGetAdapter)
		}
	}

	// Live decision stream
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/", s.handleRoot)
}
