package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Auth
	s.echo.POST("/auth/login", s.handleLogin)
	s.echo.POST("/auth/logout", s.handleLogout)
	s.echo.GET("/auth/check", s.handleAuthCheck, s.requireAuth)
	s.echo.POST("/auth/magic", s.handleCreateMagicLink, s.requireAuth, s.requireAdmin)
	s.echo.GET("/auth/magic/:token", s.handleRedeemMagicLink)

	// Event catalogue
	api := s.echo.Group("/api", s.requireAuth)
	api.GET("/events", s.handleListEvents)
	api.GET("/events/:id", s.handleGetEvent)
	api.GET("/events/:id/now", s.handleEventNow)
	api.GET("/events/:id/streams", s.handleListStreams)

	admin := api.Group("", s.requireAdmin)
	admin.POST("/events", s.handleCreateEvent)
	admin.PATCH("/events/:id", s.handleUpdateEvent)
	admin.DELETE("/events/:id", s.handleDeleteEvent)
	admin.POST("/events/:id/pause", s.handlePauseEvent)
	admin.POST("/events/:id/resume", s.handleResumeEvent)

	admin.POST("/events/:id/streams", s.handleAddStream)
	admin.PATCH("/events/:id/streams/:streamID", s.handleUpdateStream)
	admin.DELETE("/events/:id/streams/:streamID", s.handleRemoveStream)
	admin.POST("/events/:id/streams/:streamID/pause", s.handlePauseStream)
	admin.POST("/events/:id/streams/:streamID/start", s.handleStartStream)
	admin.POST("/events/:id/streams/:streamID/favorite", s.handleFavoriteStream)
	admin.POST("/events/:id/streams/:streamID/unfavorite", s.handleUnfavoriteStream)
	admin.POST("/events/:id/streams/:streamID/reactivate", s.handleReactivateStream)

	admin.GET("/youtube/title/:videoID", s.handleVideoTitle)

	// History and exports
	api.GET("/events/:id/history", s.handleEventHistory)
	api.GET("/events/:id/history/streams", s.handleStreamHistory)
	api.GET("/events/:id/export.csv", s.handleExportTotalsCSV)
	api.GET("/events/:id/export-streams.csv", s.handleExportStreamsCSV)

	// Live endpoints. Auth accepts the token query parameter here
	// because EventSource and WebSocket clients cannot set headers.
	s.echo.GET("/events/:id/stream", s.handleSSE, s.requireAuth)
	s.echo.GET("/ws/events/:id", s.handleWebSocket, s.requireAuth)
}
