package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"events": len(s.registry.Events()),
		"time":   s.clock.Now().UTC(),
	})
}
