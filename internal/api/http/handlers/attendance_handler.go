package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ephc-connect/attendance-service/internal/api/dto"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/service"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

// AttendanceHandler exposes check-in/out and attendance read endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(attendanceService *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: attendanceService}
}

// CheckIn POST /api/attendance/checkin.
func (h *AttendanceHandler) CheckIn(c *fiber.Ctx) error {
	req, err := parseCheckRequest(c)
	if err != nil {
		return err
	}
	result, err := h.service.ProcessCheckIn(c.Context(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": checkResponse(result)})
}

// CheckOut POST /api/attendance/checkout.
func (h *AttendanceHandler) CheckOut(c *fiber.Ctx) error {
	req, err := parseCheckRequest(c)
	if err != nil {
		return err
	}
	result, err := h.service.ProcessCheckOut(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": checkResponse(result)})
}

// ByFacility GET /api/attendance/facility/:facilityID.
func (h *AttendanceHandler) ByFacility(c *fiber.Ctx) error {
	day, err := parseDateQuery(c, "date", time.Now())
	if err != nil {
		return err
	}
	records, err := h.service.ListByFacilityAndDay(c.Context(), c.Params("facilityID"), day)
	if err != nil {
		return err
	}
	items := make([]dto.AttendanceView, 0, len(records))
	for i := range records {
		items = append(items, dto.NewAttendanceView(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ByStaff GET /api/attendance/staff/:staffID.
func (h *AttendanceHandler) ByStaff(c *fiber.Ctx) error {
	now := time.Now()
	from, err := parseDateQuery(c, "from", now.AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	to, err := parseDateQuery(c, "to", now)
	if err != nil {
		return err
	}
	records, err := h.service.ListByStaffRange(c.Context(), c.Params("staffID"), from, to)
	if err != nil {
		return err
	}
	items := make([]dto.AttendanceView, 0, len(records))
	for i := range records {
		items = append(items, dto.NewAttendanceView(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkAbsentees POST /api/attendance/facility/:facilityID/mark-absent.
func (h *AttendanceHandler) MarkAbsentees(c *fiber.Ctx) error {
	day, err := parseDateQuery(c, "date", time.Now())
	if err != nil {
		return err
	}
	marked, alert, err := h.service.MarkAbsentees(c.Context(), c.Params("facilityID"), day)
	if err != nil {
		return err
	}
	resp := fiber.Map{"marked": marked}
	if alert != nil {
		view := dto.NewAlertView(alert)
		resp["alert"] = view
	}
	return c.JSON(fiber.Map{"data": resp})
}

func parseCheckRequest(c *fiber.Ctx) (service.CheckRequest, error) {
	var body dto.CheckRequest
	if err := c.BodyParser(&body); err != nil {
		return service.CheckRequest{}, util.NewValidationError("invalid payload", nil)
	}
	if body.StaffID == "" || body.FacilityID == "" || body.Modality == "" || body.Sample == "" {
		return service.CheckRequest{}, util.NewValidationError("staff_id, facility_id, modality, sample required", nil)
	}
	modality := domain.BiometricModality(body.Modality)
	switch modality {
	case domain.ModalityFingerprint, domain.ModalityFacial, domain.ModalityIris, domain.ModalityManual:
	default:
		return service.CheckRequest{}, util.NewValidationError("unsupported modality", map[string]any{"modality": body.Modality})
	}

	now := time.Now()
	if body.At != nil {
		now = *body.At
	}
	breaks := make([]domain.BreakPeriod, 0, len(body.Breaks))
	for _, b := range body.Breaks {
		breaks = append(breaks, domain.BreakPeriod{Start: b.Start, End: b.End, Reason: b.Reason})
	}
	return service.CheckRequest{
		StaffID:    body.StaffID,
		FacilityID: body.FacilityID,
		Modality:   modality,
		Sample:     body.Sample,
		Location:   body.Location,
		Device:     body.Device,
		Breaks:     breaks,
		Now:        now,
	}, nil
}

func checkResponse(result *service.CheckResult) dto.CheckResponse {
	resp := dto.CheckResponse{
		Record:         dto.NewAttendanceView(result.Record),
		GeofenceOK:     result.GeofenceOK,
		DistanceMeters: result.DistanceMeters,
	}
	if result.Alert != nil {
		view := dto.NewAlertView(result.Alert)
		resp.Alert = &view
	}
	return resp
}

func parseDateQuery(c *fiber.Ctx, key string, fallback time.Time) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, util.NewValidationError("invalid date, expected YYYY-MM-DD", map[string]any{key: raw})
	}
	return parsed, nil
}
