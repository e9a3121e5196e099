package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/apperror"
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
	read.GET("/orders", h.ListOrders)
	read.GET("/orders/:id", h.GetOrder)
	read.GET("/orders/:id/items", h.ListLineItems)
	read.GET("/orders/:id/total", h.GetTotal)
	read.GET("/order-items/:id", h.GetLineItem)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/orders", h.CreateOrder)
	write.PATCH("/orders/:id", h.UpdateOrder)
	write.DELETE("/orders/:id", h.DeleteOrder)
	write.POST("/orders/:id/receive", h.ReceiveOrder)
	write.POST("/orders/:id/cancel", h.CancelOrder)
	write.POST("/orders/:id/items", h.AddLineItem)
	write.PATCH("/order-items/:id", h.UpdateLineItem)
	write.DELETE("/order-items/:id", h.RemoveLineItem)
}

type createRequest struct {
	OrderDate *string `json:"order_date"`
	Supplier  *string `json:"supplier"`
	Status    *string `json:"status"`
}

type updateRequest struct {
	OrderDate *string `json:"order_date"`
	Supplier  *string `json:"supplier"`
	Status    *string `json:"status"`
}

type updateResponse struct {
	*Order
	Warnings []FieldWarning `json:"warnings,omitempty"`
}

type addItemRequest struct {
	MedicationID string              `json:"medication_id" validate:"required,uuid"`
	Boxes        int                 `json:"boxes" validate:"gt=0"`
	PricePerBox  decimal.NullDecimal `json:"price_per_box"`
}

type updateItemRequest struct {
	Boxes       *int                            `json:"boxes" validate:"omitempty,gt=0"`
	PricePerBox httpx.Optional[decimal.Decimal] `json:"price_per_box"`
}

type totalResponse struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

// FilterFromQuery reads ?status=, ?year= and ?month=. An empty status or
// "all" leaves the status unfiltered.
func FilterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("status"); v != "" && v != "all" {
		st, err := ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	var err error
	if f.Year, err = intParam(c, "year"); err != nil {
		return f, err
	}
	if f.Month, err = intParam(c, "month"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.InvalidArgument("%s must be an integer", name)
	}
	return n, nil
}

func (h *Handler) ListOrders(c echo.Context) error {
	f, err := FilterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOrders(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req createRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	date, err := httpx.DatePtr("order_date", req.OrderDate)
	if err != nil {
		return err
	}
	in := CreateInput{OrderDate: date, Supplier: req.Supplier}
	if req.Status != nil && *req.Status != "" {
		st, err := ParseStatus(*req.Status)
		if err != nil {
			return err
		}
		in.Status = &st
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// UpdateOrder applies the generic field update. Unknown status values are
// returned as warnings alongside the updated order.
func (h *Handler) UpdateOrder(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	date, err := httpx.DatePtr("order_date", req.OrderDate)
	if err != nil {
		return err
	}
	o, warnings, err := h.svc.UpdateOrder(c.Request().Context(), id, Patch{
		OrderDate: date,
		Supplier:  req.Supplier,
		Status:    req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updateResponse{Order: o, Warnings: warnings})
}

func (h *Handler) DeleteOrder(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	ok, err := h.svc.DeleteOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReceiveOrder(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Receive(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetTotal(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	total, err := h.svc.OrderCostTotal(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, totalResponse{OrderID: id.String(), Total: total})
}

func (h *Handler) ListLineItems(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.LineItems(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddLineItem(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req addItemRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	medID, err := httpx.UUID("medication_id", req.MedicationID)
	if err != nil {
		return err
	}
	li, err := h.svc.AddLineItem(c.Request().Context(), AddLineItemInput{
		OrderID:      id,
		MedicationID: medID,
		Boxes:        req.Boxes,
		PricePerBox:  req.PricePerBox,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, li)
}

func (h *Handler) GetLineItem(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	li, err := h.svc.GetLineItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, li)
}

func (h *Handler) UpdateLineItem(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req updateItemRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	li, err := h.svc.UpdateLineItem(c.Request().Context(), id, LineItemPatch{
		Boxes:       req.Boxes,
		PricePerBox: httpx.MoneyPatch(req.PricePerBox),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, li)
}

func (h *Handler) RemoveLineItem(c echo.Context) error {
	id, err := httpx.ParseID(c, "id")
	if err != nil {
		return err
	}
	ok, err := h.svc.RemoveLineItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "line item not found")
	}
	return c.NoContent(http.StatusNoContent)
}
