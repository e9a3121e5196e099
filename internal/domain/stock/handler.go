package stock

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/medications/:id/stock", h.GetSummary)
	read.GET("/medications/:id/lots", h.ListLots)
	read.GET("/lots/:id", h.GetLot)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/medications/:id/lots", h.ReceiveLot)
	write.PATCH("/lots/:id", h.UpdateLot)
	write.DELETE("/lots/:id", h.DeleteLot)
}

type receiveRequest struct {
	Boxes               int                 `json:"boxes" validate:"gt=0"`
	UnitsPerBox         *int                `json:"units_per_box" validate:"omitempty,gt=0"`
	PurchasedOn         *string             `json:"purchased_on"`
	ExpiresOn           string              `json:"expires_on" validate:"required"`
	PurchasePricePerBox decimal.NullDecimal `json:"purchase_price_per_box"`
}

type updateRequest struct {
	Boxes               *int                            `json:"boxes" validate:"omitempty,gt=0"`
	UnitsPerBox         *int                            `json:"units_per_box" validate:"omitempty,gt=0"`
	PurchasedOn         *string                         `json:"purchased_on"`
	ExpiresOn           *string                         `json:"expires_on"`
	PurchasePricePerBox httpx.Optional[decimal.Decimal] `json:"purchase_price_per_box"`
}

// GetSummary reports active units, lot counts, nearest expiration and days of supply.
func (h *Handler) GetSummary(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.meds.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// ListLots returns the medication's lots by expiration. ?active=true keeps
// only lots expiring today or later.
func (h *Handler) ListLots(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	onlyActive := false
	if v := c.QueryParam("active"); v != "" {
		onlyActive, err = strconv.ParseBool(v)
		if err != nil {
			return apperror.InvalidArgument("active must be true or false")
		}
	}
	lots, err := h.svc.ActiveLots(c.Request().Context(), id, onlyActive)
	if err != nil {
		return err
	}
	if lots == nil {
		lots = []*Lot{}
	}
	return c.JSON(http.StatusOK, lots)
}

func (h *Handler) ReceiveLot(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req receiveRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	expires, err := httpx.Date("expires_on", req.ExpiresOn)
	if err != nil {
		return err
	}
	purchased, err := httpx.DatePtr("purchased_on", req.PurchasedOn)
	if err != nil {
		return err
	}
	l, err := h.svc.ReceiveLot(c.Request().Context(), ReceiveInput{
		MedicationID:        id,
		Boxes:               req.Boxes,
		UnitsPerBox:         req.UnitsPerBox,
		PurchasedOn:         purchased,
		ExpiresOn:           &expires,
		PurchasePricePerBox: req.PurchasePricePerBox,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLot(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	l, err := h.svc.GetLot(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) UpdateLot(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	purchased, err := httpx.DatePtr("purchased_on", req.PurchasedOn)
	if err != nil {
		return err
	}
	expires, err := httpx.DatePtr("expires_on", req.ExpiresOn)
	if err != nil {
		return err
	}
	l, err := h.svc.UpdateLot(c.Request().Context(), id, LotPatch{
		Boxes:               req.Boxes,
		UnitsPerBox:         req.UnitsPerBox,
		PurchasedOn:         purchased,
		ExpiresOn:           expires,
		PurchasePricePerBox: httpx.MoneyPatch(req.PurchasePricePerBox),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLot(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	ok, err := h.svc.DeleteLot(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "lot not found")
	}
	return c.NoContent(http.StatusNoContent)
}
