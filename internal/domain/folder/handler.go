package folder

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/platform/auth"
	"github.com/ehr/codeassist/pkg/pagination"
)

// Handler exposes persisted review folders over REST.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers folder routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/folders", auth.RequireRole(auth.RoleCoder, auth.RoleReviewer))
	read.GET("", h.List)
	read.GET("/:name", h.Get)
	read.POST("", h.Create)

	write := api.Group("/folders", auth.RequireRole(auth.RoleReviewer))
	write.DELETE("/:name", h.Delete)

	admin := api.Group("/folders", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("", h.DeleteAll)
}

// View is a loaded folder with evidence resolved against its note.
type View struct {
	Name        string                   `json:"name"`
	NoteText    string                   `json:"note_text"`
	NoteFile    string                   `json:"note_file"`
	GeneratedAt time.Time                `json:"generated_at"`
	Codes       []curation.FinalizedCode `json:"codes"`
}

func toView(f *Folder) View {
	return View{
		Name:        f.Name,
		NoteText:    f.NoteText,
		NoteFile:    f.NoteFile,
		GeneratedAt: f.GeneratedAt,
		Codes:       f.FinalizedCodes(),
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrFolderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrFolderExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyNote), errors.Is(err, ErrNoCodes):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// List handles GET /api/v1/folders?q=...&limit=&offset=
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	folders, err := h.store.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(folders, pg), len(folders), pg))
}

func (h *Handler) Get(c echo.Context) error {
	f, err := h.store.Load(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toView(f))
}

// Create handles POST /api/v1/folders. It always creates a new folder;
// overwrites go through a review session.
func (h *Handler) Create(c echo.Context) error {
	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.UpdateExisting = false
	req.OldName = ""
	res, err := h.store.Save(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteAll(c echo.Context) error {
	n, err := h.store.DeleteAll(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}
