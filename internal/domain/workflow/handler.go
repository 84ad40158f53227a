package workflow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/folder"
	"github.com/ehr/codeassist/internal/domain/terminology"
	"github.com/ehr/codeassist/internal/platform/auth"
)

// PredictRoute is the route whose latency is bounded by the prediction
// bridge timeout rather than the request timeout.
const PredictRoute = "/api/v1/sessions/:id/predict"

// Handler exposes coding sessions over REST.
type Handler struct {
	sessions *Registry
}

func NewHandler(sessions *Registry) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers session routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sessions", auth.RequireRole(auth.RoleCoder, auth.RoleReviewer))
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/mode", h.SwitchMode)
	g.POST("/:id/reset", h.Reset)
	g.PUT("/:id/admission", h.SetAdmissionID)

	g.PUT("/:id/note", h.SetNote)
	g.DELETE("/:id/note", h.ClearNote)
	g.POST("/:id/predict", h.Predict)
	g.GET("/:id/models", h.Models)
	g.GET("/:id/explain-methods", h.ExplainMethods)
	g.PUT("/:id/selection", h.Select)
	g.POST("/:id/predictions/:pid/toggle", h.ToggleExpanded)
	g.POST("/:id/predictions/:pid/promote", h.Promote)
	g.POST("/:id/promote", h.PromoteSelected)
	g.GET("/:id/highlights", h.Highlights)
	g.POST("/:id/finalize", h.Finalize)

	g.GET("/:id/codes/highlights", h.FinalizedHighlights)
	g.POST("/:id/codes", h.AddManual)
	g.DELETE("/:id/codes/:type/:code", h.RemoveCode)
	g.PUT("/:id/codes/:index", h.EditDescription)
	g.POST("/:id/codes/:index/edit", h.BeginEdit)
	g.DELETE("/:id/codes/:index/edit", h.CancelEdit)
	g.GET("/:id/lookup/:system", h.Lookup)

	g.GET("/:id/folders", h.ListFolders)
	g.POST("/:id/folders/:name/load", h.LoadFolder)
	g.GET("/:id/changes", h.Changes)
	g.POST("/:id/save", h.Save)

	rev := api.Group("/sessions", auth.RequireRole(auth.RoleReviewer))
	rev.DELETE("/:id/folders/:name", h.DeleteFolder)

	admin := api.Group("/sessions", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/:id/folders", h.DeleteAllFolders)
}

// httpError maps workflow errors to HTTP errors.
func httpError(err error) error {
	var (
		verr *ValidationError
		xerr *ExternalCallError
	)
	switch {
	case errors.As(err, &verr):
		if verr.Conflict {
			return echo.NewHTTPError(http.StatusConflict, verr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, curation.ErrDuplicateCode),
		errors.Is(err, ErrRequestInFlight),
		errors.Is(err, ErrStaleResponse):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &xerr):
		if errors.Is(err, folder.ErrFolderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if errors.Is(err, folder.ErrFolderExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, curation.ErrCodeNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, curation.ErrIndexOutOfRange),
		errors.Is(err, curation.ErrEmptyCode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) controller(c echo.Context) (*Controller, error) {
	s, err := h.sessions.Get(c.Param("id"), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return nil, httpError(err)
	}
	return s.Controller, nil
}

// respond renders the session view, or the mapped error.
func respond(c echo.Context, ctl *Controller, err error) error {
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ctl.View())
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func indexParam(c echo.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}
	return i, nil
}

// sessionView is the body returned when a session is created.
type sessionView struct {
	ID   string `json:"id"`
	View View   `json:"view"`
}

func (h *Handler) Create(c echo.Context) error {
	s := h.sessions.Create(auth.UserIDFromContext(c.Request().Context()))
	return c.JSON(http.StatusCreated, sessionView{ID: s.ID, View: s.Controller.View()})
}

func (h *Handler) Get(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctl.View())
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.sessions.Delete(c.Param("id"), auth.UserIDFromContext(c.Request().Context())); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SwitchMode(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	return respond(c, ctl, ctl.SwitchMode(Mode(body.Mode)))
}

func (h *Handler) Reset(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	ctl.Reset()
	return respond(c, ctl, nil)
}

func (h *Handler) SetAdmissionID(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		AdmissionID string `json:"admission_id"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	ctl.SetAdmissionID(body.AdmissionID)
	return respond(c, ctl, nil)
}

func (h *Handler) SetNote(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
		File string `json:"file"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	return respond(c, ctl, ctl.SetNote(body.Text, body.File))
}

func (h *Handler) ClearNote(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.ClearNote())
}

// Predict handles POST /api/v1/sessions/:id/predict. An empty result is a
// 200 whose view carries the explanatory message.
func (h *Handler) Predict(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var opts PredictOptions
	if err := bind(c, &opts); err != nil {
		return err
	}
	_, err = ctl.Predict(c.Request().Context(), opts)
	return respond(c, ctl, err)
}

func (h *Handler) Models(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	models, err := ctl.Models(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"models": models})
}

func (h *Handler) ExplainMethods(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	methods, err := ctl.ExplainMethods(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"methods": methods})
}

func (h *Handler) Select(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	return respond(c, ctl, ctl.Select(body.IDs))
}

func (h *Handler) ToggleExpanded(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.ToggleExpanded(c.Param("pid")))
}

func (h *Handler) Promote(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.Promote(c.Param("pid")))
}

func (h *Handler) PromoteSelected(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	_, err = ctl.PromoteSelected()
	return respond(c, ctl, err)
}

func (h *Handler) Highlights(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctl.Highlights())
}

func (h *Handler) FinalizedHighlights(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctl.FinalizedHighlights())
}

func (h *Handler) Finalize(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	res, err := ctl.Finalize(c.Request().Context(), body.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"result": res, "view": ctl.View()})
}

func (h *Handler) AddManual(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var entry ManualEntry
	if err := bind(c, &entry); err != nil {
		return err
	}
	return respond(c, ctl, ctl.AddManual(c.Request().Context(), entry))
}

func (h *Handler) RemoveCode(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.RemoveCode(c.Param("code"), c.Param("type")))
}

func (h *Handler) EditDescription(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	i, err := indexParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	return respond(c, ctl, ctl.EditDescription(i, body.Description))
}

func (h *Handler) BeginEdit(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	i, err := indexParam(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.BeginEdit(i))
}

func (h *Handler) CancelEdit(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	i, err := indexParam(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.CancelEdit(i))
}

// Lookup handles GET /api/v1/sessions/:id/lookup/:system?q=...
func (h *Handler) Lookup(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	system, err := terminology.ParseSystem(c.Param("system"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	res, err := ctl.Lookup(c.Request().Context(), system, c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListFolders(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	folders, err := ctl.ListFolders(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, folders)
}

func (h *Handler) LoadFolder(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.LoadFolder(c.Request().Context(), c.Param("name")))
}

func (h *Handler) Changes(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	summary, changed, err := ctl.Changes()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"has_changes": changed, "changes": summary})
}

func (h *Handler) Save(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	var body struct {
		AdmissionID string `json:"admission_id"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	out, err := ctl.Save(c.Request().Context(), body.AdmissionID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteFolder(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	return respond(c, ctl, ctl.DeleteFolder(c.Request().Context(), c.Param("name")))
}

func (h *Handler) DeleteAllFolders(c echo.Context) error {
	ctl, err := h.controller(c)
	if err != nil {
		return err
	}
	n, err := ctl.DeleteAllFolders(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted": n, "view": ctl.View()})
}
