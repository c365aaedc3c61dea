package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/alignlab/alignd/internal/api"
	alignctx "github.com/alignlab/alignd/internal/context"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

// ReadStore is the query surface the catalog API needs.
type ReadStore interface {
	ListModels(ctx context.Context, languageCode string, skip, limit int,
	) ([]model.SpeechModel, *db.Pagination, error)
	ListModelsByType(ctx context.Context, t model.ModelType, languageCode string,
	) ([]model.SpeechModel, error)
	ListLanguages(ctx context.Context, skip, limit int,
	) ([]model.Language, *db.Pagination, error)
}

// Service exposes catalog queries and the sync trigger over HTTP.
type Service struct {
	store  ReadStore
	syncer *Syncer
}

// NewService creates the catalog API service.
func NewService(store ReadStore, syncer *Syncer) *Service {
	return &Service{store: store, syncer: syncer}
}

func (s *Service) getModels(c echo.Context) (interface{}, error) {
	skip, limit := pageParams(c)
	models, pagination, err := s.store.ListModels(
		c.Request().Context(), c.QueryParam("language"), skip, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"models": models, "pagination": pagination}, nil
}

func (s *Service) getModelsByType(c echo.Context) (interface{}, error) {
	t := model.ModelType(c.Param("type"))
	if err := t.Validate(); err != nil {
		return nil, api.AsValidationError("%s", err.Error())
	}
	models, err := s.store.ListModelsByType(
		c.Request().Context(), t, c.QueryParam("language"))
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (s *Service) getLanguages(c echo.Context) (interface{}, error) {
	skip, limit := pageParams(c)
	languages, pagination, err := s.store.ListLanguages(c.Request().Context(), skip, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"languages": languages, "pagination": pagination}, nil
}

func (s *Service) postSync(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()
	if !user.CanAdministrate() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "only admins may trigger a catalog sync")
	}
	result, err := s.syncer.Sync(c.Request().Context())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func pageParams(c echo.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.QueryParam("skip"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	return skip, limit
}

// RegisterAPIHandler initializes and registers the API handlers for the model catalog.
func RegisterAPIHandler(echo *echo.Echo, s *Service, middleware ...echo.MiddlewareFunc) {
	echo.GET("/models", api.Route(s.getModels))
	echo.GET("/models/types/:type", api.Route(s.getModelsByType))
	echo.GET("/models/languages", api.Route(s.getLanguages))
	echo.POST("/models/sync", api.Route(s.postSync), middleware...)
}
