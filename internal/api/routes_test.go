package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignlab/alignd/internal/db"
)

func runRoute(t *testing.T, handler func(echo.Context) (interface{}, error)) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, Route(handler)(c)
}

func TestRouteTranslatesValidationErrors(t *testing.T) {
	_, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return nil, AsValidationError("bad audio format")
	})
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	// The sentinel's own message is stripped from the client-facing text.
	assert.Equal(t, "bad audio format", httpErr.Message)
}

func TestRouteTranslatesNotFound(t *testing.T) {
	_, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return nil, db.ErrNotFound
	})
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestRouteTranslatesForbidden(t *testing.T) {
	_, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return nil, AsErrForbidden("admins only")
	})
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestRoutePassesThroughHTTPErrors(t *testing.T) {
	original := echo.NewHTTPError(http.StatusTeapot, "short and stout")
	_, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return nil, original
	})
	assert.Equal(t, original, err)
}

func TestRouteNilResultIsNoContent(t *testing.T) {
	rec, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouteJSONResult(t *testing.T) {
	rec, err := runRoute(t, func(echo.Context) (interface{}, error) {
		return map[string]string{"hello": "world"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hello": "world"}`, rec.Body.String())
}

func TestRouteCommittedResponseUntouched(t *testing.T) {
	rec, err := runRoute(t, func(c echo.Context) (interface{}, error) {
		return nil, c.JSON(http.StatusCreated, map[string]string{"id": "1"})
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
