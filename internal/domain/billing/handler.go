package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// PatientGetter is the slice of the patient service the bill
// rendering needs.
type PatientGetter interface {
	Get(ctx context.Context, id string) (patient.Patient, error)
}

type Handler struct {
	svc      *Service
	patients PatientGetter
}

func NewHandler(svc *Service, patients PatientGetter) *Handler {
	return &Handler{svc: svc, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	g.GET("/billing", h.Ledger)
	g.GET("/billing/:id", h.Get)
	g.POST("/billing/:id/pay", h.MarkPaid)
	g.GET("/billing/:id/bill", h.PrintBill)
}

func (h *Handler) Ledger(c echo.Context) error {
	entries, err := h.svc.Ledger(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Get(c echo.Context) error {
	b, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bill not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) MarkPaid(c echo.Context) error {
	b, err := h.svc.MarkPaid(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "bill not found")
		case errors.Is(err, ErrAlreadyPaid):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, b)
}

// PrintBill renders the bill as a printable HTML page.
func (h *Handler) PrintBill(c echo.Context) error {
	ctx := c.Request().Context()

	b, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bill not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	p, err := h.patients.Get(ctx, b.PatientID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	html, err := RenderBill(b, p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.svc.actions.Record(ctx, actionlog.Entry{
		Action: "billing.printed",
		Actor:  auth.EmailFromContext(ctx),
		Role:   auth.RoleFromContext(ctx),
		Details: map[string]string{
			"billId":    b.ID,
			"patientId": b.PatientID,
		},
	})
	return c.HTML(http.StatusOK, html)
}
