package terminology

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/codeassist/internal/platform/auth"
)

// Handler provides REST endpoints for code dictionary search.
type Handler struct {
	svc *Service
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers terminology routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/terminology", auth.RequireRole(auth.RoleCoder, auth.RoleReviewer))
	g.GET("/:system", h.Search)
	g.GET("/:system/:code", h.Lookup)
}

func getLimit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// Search handles GET /api/v1/terminology/:system?q=...
func (h *Handler) Search(c echo.Context) error {
	system, err := ParseSystem(c.Param("system"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	results, err := h.svc.Search(c.Request().Context(), system, query, getLimit(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

// Lookup handles GET /api/v1/terminology/:system/:code
func (h *Handler) Lookup(c echo.Context) error {
	system, err := ParseSystem(c.Param("system"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	code, err := h.svc.Lookup(c.Request().Context(), system, c.Param("code"))
	if errors.Is(err, ErrCodeNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "code not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, code)
}
