package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/projection"
)

type Handler struct {
	svc   *Service
	today func() string
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, today: svc.seq.Today}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reception := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	reception.POST("/patients", h.Register)
	reception.POST("/patients/:id/send-to-doctor", h.SendToDoctor)

	api.GET("/patients/queue", h.Queue)
	api.GET("/patients/assigned", h.Assigned, auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/:id", h.Get)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SendToDoctor(c echo.Context) error {
	p, err := h.svc.SendToDoctor(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		case errors.Is(err, ErrNotWaiting):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, p)
}

// Queue serves today's reception queue, token order.
func (h *Handler) Queue(c echo.Context) error {
	recs, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, projection.ReceptionQueue(recs, h.today()))
}

// Assigned serves the doctor's current patients in hand-off order.
func (h *Handler) Assigned(c echo.Context) error {
	recs, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, projection.AssignedPatients(recs, h.today()))
}
