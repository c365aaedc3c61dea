package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alignlab/alignd/internal/db"
)

// Route converts a handler that returns (result, error) into an echo handler,
// translating the error taxonomy into HTTP status codes. A nil result with a
// nil error becomes a 204 unless the handler already committed a response.
func Route(handler func(c echo.Context) (interface{}, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := handler(c)
		if err != nil {
			return translateError(err)
		}
		if c.Response().Committed {
			return nil
		}
		if result == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, result)
	}
}

func translateError(err error) error {
	if _, ok := err.(*echo.HTTPError); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, trimSentinel(err, ErrInvalid))
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, trimSentinel(err, ErrForbidden))
	case errors.Is(err, ErrNotFound), errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return err
	}
}

// trimSentinel drops the wrapped sentinel's message (": bad request") from
// client-facing text; the status code already carries that information.
func trimSentinel(err error, sentinel error) string {
	msg := err.Error()
	suffix := ": " + sentinel.Error()
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	return msg
}
