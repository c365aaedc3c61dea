package user

import (
	"github.com/labstack/echo/v4"

	"github.com/alignlab/alignd/internal/api"
)

// RegisterAPIHandler initializes and registers the API handlers for all user related features.
func RegisterAPIHandler(echo *echo.Echo, s *Service, middleware ...echo.MiddlewareFunc) {
	echo.POST("/auth/register", api.Route(s.postRegister))
	echo.POST("/auth/login", api.Route(s.postLogin))
	echo.POST("/auth/logout", api.Route(s.postLogout), middleware...)
	usersGroup := echo.Group("/users", middleware...)
	usersGroup.GET("/me", api.Route(s.getMe))
	usersGroup.GET("/me/quota", api.Route(s.getQuota))
}
