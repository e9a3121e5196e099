package reporting

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medstock/medstock/internal/platform/auth"
)

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	reports  *Reports
	exporter *Exporter
}

// NewHandler creates a reporting handler. exporter may be nil, in which case
// the export routes are not registered.
func NewHandler(reports *Reports, exporter *Exporter) *Handler {
	return &Handler{reports: reports, exporter: exporter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/reports", h.ListReports)
	read.GET("/reports/:id", h.EvaluateReport)
	if h.exporter == nil {
		return
	}
	read.GET("/exports", h.ListExports)
	read.GET("/exports/*", h.DownloadExport)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/reports/:id/export", h.ExportReport)
}

// ListReports returns all available report definitions.
func (h *Handler) ListReports(c echo.Context) error {
	return c.JSON(http.StatusOK, Definitions)
}

// EvaluateReport runs a report with its parameters taken from the query string.
func (h *Handler) EvaluateReport(c echo.Context) error {
	rep, err := h.reports.Evaluate(c.Request().Context(), c.Param("id"), queryParams(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) ExportReport(c echo.Context) error {
	info, err := h.exporter.Export(c.Request().Context(), c.Param("id"), queryParams(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, info)
}

// ListExports lists stored snapshots; ?report= narrows to one report.
func (h *Handler) ListExports(c echo.Context) error {
	infos, err := h.exporter.List(c.Request().Context(), c.QueryParam("report"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, infos)
}

func (h *Handler) DownloadExport(c echo.Context) error {
	info, rc, err := h.exporter.Open(c.Request().Context(), c.Param("*"))
	if err != nil {
		return err
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

func queryParams(c echo.Context) map[string]string {
	params := make(map[string]string)
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
