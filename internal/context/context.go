// Package context provides the echo context alignd handlers run under, which
// carries the authenticated user and session once the auth middleware has run.
package context

import (
	"github.com/labstack/echo/v4"

	"github.com/alignlab/alignd/pkg/model"
)

// AlignContext is the custom echo context for alignd API handlers.
type AlignContext struct {
	echo.Context
	user    *model.User
	session *model.UserSession
}

// SetUser sets the user of the current request.
func (c *AlignContext) SetUser(user model.User) {
	c.user = &user
}

// SetUserSession sets the session of the current request.
func (c *AlignContext) SetUserSession(session model.UserSession) {
	c.session = &session
}

// GetUser returns the user of the current request, if the request is authenticated.
func (c *AlignContext) GetUser() (model.User, bool) {
	if c.user == nil {
		return model.User{}, false
	}
	return *c.user, true
}

// MustGetUser returns the user of the current request, panicking if the auth
// middleware has not run.
func (c *AlignContext) MustGetUser() model.User {
	if c.user == nil {
		panic("request context has no user")
	}
	return *c.user
}

// MustGetUserSession returns the session of the current request, panicking if
// the auth middleware has not run.
func (c *AlignContext) MustGetUserSession() model.UserSession {
	if c.session == nil {
		panic("request context has no user session")
	}
	return *c.session
}
