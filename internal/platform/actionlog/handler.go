package actionlog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

// Handler serves the recent-actions feed to any signed-in role.
type Handler struct {
	log Recorder
}

func NewHandler(log Recorder) *Handler {
	return &Handler{log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/actions", h.Recent)
}

// Recent returns the newest actions first. The log is bounded, so
// limit is the only knob.
func (h *Handler) Recent(c echo.Context) error {
	p := pagination.FromContext(c)
	entries, err := h.log.Recent(c.Request().Context(), p.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}
