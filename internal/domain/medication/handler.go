package medication

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/httpx"
	"github.com/medstock/medstock/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/medications", h.ListMedications)
	read.GET("/medications/:id", h.GetMedication)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/medications", h.CreateMedication)
	write.PATCH("/medications/:id", h.UpdateMedication)
	write.DELETE("/medications/:id", h.DeleteMedication)
}

type createRequest struct {
	Name                  string              `json:"name" validate:"required"`
	Brand                 *string             `json:"brand"`
	UnitsPerBox           int                 `json:"units_per_box" validate:"gt=0"`
	ReferencePricePerBox  decimal.NullDecimal `json:"reference_price_per_box"`
	Active                *bool               `json:"active"`
	PrescriptionExpiresOn *string             `json:"prescription_expires_on"`
	DailyConsumption      *float64            `json:"daily_consumption" validate:"omitempty,gte=0"`
}

type updateRequest struct {
	Name                  *string                         `json:"name"`
	Brand                 *string                         `json:"brand"`
	UnitsPerBox           *int                            `json:"units_per_box" validate:"omitempty,gt=0"`
	ReferencePricePerBox  httpx.Optional[decimal.Decimal] `json:"reference_price_per_box"`
	Active                *bool                           `json:"active"`
	PrescriptionExpiresOn httpx.Optional[string]          `json:"prescription_expires_on"`
	DailyConsumption      httpx.Optional[float64]         `json:"daily_consumption"`
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var req createRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	rx, err := httpx.DatePtr("prescription_expires_on", req.PrescriptionExpiresOn)
	if err != nil {
		return err
	}
	m, err := h.svc.CreateMedication(c.Request().Context(), CreateInput{
		Name:                  req.Name,
		Brand:                 req.Brand,
		UnitsPerBox:           req.UnitsPerBox,
		ReferencePricePerBox:  req.ReferencePricePerBox,
		Active:                req.Active,
		PrescriptionExpiresOn: rx,
		DailyConsumption:      req.DailyConsumption,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// ListMedications pages through the catalogue by name. ?name= looks up a
// single medication case-insensitively instead.
func (h *Handler) ListMedications(c echo.Context) error {
	ctx := c.Request().Context()
	if name := c.QueryParam("name"); name != "" {
		m, err := h.svc.GetMedicationByName(ctx, name)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedications(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Medication{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	rx, err := httpx.DatePatch("prescription_expires_on", req.PrescriptionExpiresOn)
	if err != nil {
		return err
	}
	p := Patch{
		Name:                  req.Name,
		Brand:                 req.Brand,
		UnitsPerBox:           req.UnitsPerBox,
		ReferencePricePerBox:  httpx.MoneyPatch(req.ReferencePricePerBox),
		Active:                req.Active,
		PrescriptionExpiresOn: rx,
	}
	if req.DailyConsumption.Set {
		var v float64
		if req.DailyConsumption.Value != nil {
			v = *req.DailyConsumption.Value
		}
		p.DailyConsumption = &v
	}

	m, err := h.svc.UpdateMedication(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	ok, err := h.svc.DeleteMedication(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	return c.NoContent(http.StatusNoContent)
}
