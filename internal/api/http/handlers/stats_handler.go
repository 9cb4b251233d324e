package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ephc-connect/attendance-service/internal/service"
)

// StatsHandler exposes attendance reporting endpoints.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{service: statsService}
}

// Attendance GET /api/attendance/stats. Scoped to one facility with the
// facility_id query parameter, network-wide without it.
func (h *StatsHandler) Attendance(c *fiber.Ctx) error {
	now := time.Now()
	from, err := parseDateQuery(c, "from", now.AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	to, err := parseDateQuery(c, "to", now.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	stats, err := h.service.AttendanceStats(c.Context(), c.Query("facility_id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Network GET /api/stats/network.
func (h *StatsHandler) Network(c *fiber.Ctx) error {
	snapshot, err := h.service.NetworkSnapshot(c.Context(), time.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}
