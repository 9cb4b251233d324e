package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ephc-connect/attendance-service/internal/api/dto"
	"github.com/ephc-connect/attendance-service/internal/auth"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/repository"
	"github.com/ephc-connect/attendance-service/internal/service"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

// AlertsHandler exposes alert listing and lifecycle endpoints.
type AlertsHandler struct {
	service *service.AlertService
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(alertService *service.AlertService) *AlertsHandler {
	return &AlertsHandler{service: alertService}
}

// List GET /api/alerts.
func (h *AlertsHandler) List(c *fiber.Ctx) error {
	filter, err := parseAlertFilter(c)
	if err != nil {
		return err
	}
	alerts, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AlertView, 0, len(alerts))
	for i := range alerts {
		items = append(items, dto.NewAlertView(&alerts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/alerts/:id.
func (h *AlertsHandler) Get(c *fiber.Ctx) error {
	alert, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAlertView(alert)})
}

// Acknowledge PUT /api/alerts/:id/acknowledge.
func (h *AlertsHandler) Acknowledge(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("staff required")
	}
	alert, err := h.service.Acknowledge(c.Context(), c.Params("id"), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAlertView(alert)})
}

// Resolve PUT /api/alerts/:id/resolve.
func (h *AlertsHandler) Resolve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return util.NewUnauthorized("staff required")
	}
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	alert, err := h.service.Resolve(c.Context(), c.Params("id"), principal.Actor(), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAlertView(alert)})
}

// Stats GET /api/alerts/stats/:facilityID.
func (h *AlertsHandler) Stats(c *fiber.Ctx) error {
	now := time.Now()
	from, err := parseDateQuery(c, "from", now.AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	to, err := parseDateQuery(c, "to", now)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.Context(), c.Params("facilityID"), from, to)
	if err != nil {
		return err
	}
	items := make([]dto.AlertStatView, 0, len(stats))
	for _, s := range stats {
		items = append(items, dto.AlertStatView{
			Type:     string(s.Type),
			Severity: string(s.Severity),
			Count:    s.Count,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseAlertFilter(c *fiber.Ctx) (repository.AlertFilter, error) {
	filter := repository.AlertFilter{}
	if v := c.Query("facility_id"); v != "" {
		filter.FacilityID = &v
	}
	if v := c.Query("staff_id"); v != "" {
		filter.StaffID = &v
	}
	if v := c.Query("type"); v != "" {
		typ := domain.AlertType(v)
		filter.Type = &typ
	}
	if v := c.Query("severity"); v != "" {
		sev := domain.AlertSeverity(v)
		filter.Severity = &sev
	}
	if v := c.Query("status"); v != "" {
		status := domain.AlertStatus(v)
		filter.Status = &status
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, util.NewValidationError("invalid date, expected YYYY-MM-DD", map[string]any{"from": v})
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, util.NewValidationError("invalid date, expected YYYY-MM-DD", map[string]any{"to": v})
		}
		filter.To = &to
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, util.NewValidationError("invalid limit", map[string]any{"limit": v})
		}
		filter.Limit = limit
	}
	return filter, nil
}
