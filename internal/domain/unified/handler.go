package unified

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the facade over HTTP for the dashboard and AR-glasses
// clients. Responses are either populated JSON, 404 for absent records,
// or 400 for bad input; vendor errors never reach the wire.
type Handler struct {
	svc     *Service
	catalog []SystemInfo
}

func NewHandler(svc *Service, catalog []SystemInfo) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patient/search", h.SearchPatients)
	g.GET("/patient/mrn/:mrn", h.GetSummaryByMRN)
	g.GET("/patient/:id", h.GetSummary)
	g.GET("/patient/:id/system/:vendor", h.GetSummaryForVendor)
	g.GET("/patient/:id/vitals", h.GetVitals)
	g.GET("/patient/:id/encounters", h.GetEncounters)
	g.GET("/patient/:id/display", h.GetDisplay)
	g.GET("/systems", h.ListSystems)
}

func (h *Handler) GetSummary(c echo.Context) error {
	summary := h.svc.Summary(c.Request().Context(), c.Param("id"), "")
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetSummaryForVendor(c echo.Context) error {
	vendor, ok := ParseVendorSystem(c.Param("vendor"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unrecognized EHR system: "+c.Param("vendor"))
	}
	summary := h.svc.Summary(c.Request().Context(), c.Param("id"), vendor)
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetSummaryByMRN(c echo.Context) error {
	summary := h.svc.SummaryByMRN(c.Request().Context(), c.Param("mrn"), "")
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name query parameter is required")
	}
	return c.JSON(http.StatusOK, h.svc.SearchPatients(c.Request().Context(), name, ""))
}

func (h *Handler) GetVitals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.PatientVitals(c.Request().Context(), c.Param("id"), ""))
}

func (h *Handler) GetEncounters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.PatientEncounters(c.Request().Context(), c.Param("id"), ""))
}

func (h *Handler) GetDisplay(c echo.Context) error {
	id := c.Param("id")
	summary := h.svc.Summary(c.Request().Context(), id, "")
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"patientId":   id,
		"displayText": DisplayText(summary),
	})
}

// ListSystems returns the static vendor catalog. Informational only; the
// wired flag reflects configuration, not live endpoint status.
func (h *Handler) ListSystems(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog)
}
