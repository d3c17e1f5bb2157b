package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handlePresence(c echo.Context) error {
	records, err := s.users.ListPresence(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load presence snapshot")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"users": records,
	})
}
