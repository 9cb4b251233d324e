package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/biometric"
	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/events"
	"github.com/ephc-connect/attendance-service/internal/geo"
	"github.com/ephc-connect/attendance-service/internal/observability"
	"github.com/ephc-connect/attendance-service/internal/repository"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

// AlertNotifier is the subset of alert generation the attendance flow
// needs. AlertService satisfies it.
type AlertNotifier interface {
	LateCheckInAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, checkInTime time.Time, lateMinutes int) (*domain.Alert, error)
	EarlyCheckOutAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, checkOutTime time.Time, earlyMinutes int) (*domain.Alert, error)
	BiometricFailureAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, modality domain.BiometricModality) (*domain.Alert, error)
	LocationMismatchAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, distanceMeters float64) (*domain.Alert, error)
	CheckMultipleAbsences(ctx context.Context, facility *domain.Facility, day time.Time) (*domain.Alert, error)
}

// AttendanceService processes verified check-in and check-out events and
// keeps the per-day attendance records consistent.
type AttendanceService struct {
	attendance repository.AttendanceRepository
	staff      repository.StaffRepository
	facilities repository.FacilityRepository
	verifier   *biometric.Verifier
	limiter    biometric.AttemptLimiter
	alerts     AlertNotifier
	dispatcher events.Dispatcher
	policy     config.PolicyConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// AttendanceDependencies bundles collaborators for the attendance service.
type AttendanceDependencies struct {
	AttendanceRepo repository.AttendanceRepository
	StaffRepo      repository.StaffRepository
	FacilityRepo   repository.FacilityRepository
	Verifier       *biometric.Verifier
	Limiter        biometric.AttemptLimiter
	Alerts         AlertNotifier
	Dispatcher     events.Dispatcher
	Policy         config.PolicyConfig
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewAttendanceService constructs the service.
func NewAttendanceService(deps AttendanceDependencies) *AttendanceService {
	return &AttendanceService{
		attendance: deps.AttendanceRepo,
		staff:      deps.StaffRepo,
		facilities: deps.FacilityRepo,
		verifier:   deps.Verifier,
		limiter:    deps.Limiter,
		alerts:     deps.Alerts,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// CheckRequest is one check-in or check-out attempt. Now is supplied by
// the caller so the whole flow evaluates against a single instant.
type CheckRequest struct {
	StaffID    string
	FacilityID string
	Modality   domain.BiometricModality
	Sample     string
	Location   *domain.GeoPoint
	Device     domain.DeviceInfo
	Breaks     []domain.BreakPeriod
	Now        time.Time
}

// CheckResult is the outcome of a processed check event.
type CheckResult struct {
	Record         *domain.AttendanceRecord
	Alert          *domain.Alert
	GeofenceOK     bool
	DistanceMeters float64
}

// ProcessCheckIn verifies the biometric factor, classifies lateness
// against the facility's operating hours, and records the day's check-in.
func (s *AttendanceService) ProcessCheckIn(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	staff, facility, err := s.resolveSubjects(ctx, req)
	if err != nil {
		s.metrics.RecordCheckEvent("check_in", "rejected")
		return nil, err
	}

	day := domain.DayOf(req.Now)
	existing, err := s.attendance.GetByStaffAndDay(ctx, req.StaffID, day)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if existing.HasCheckedIn() {
		s.metrics.RecordCheckEvent("check_in", "duplicate")
		return nil, util.NewConflict("already checked in today", map[string]any{
			"staff_id": req.StaffID,
			"day":      day.Format("2006-01-02"),
		})
	}

	if err := s.verifyFactor(ctx, staff, facility, req, "check_in"); err != nil {
		return nil, err
	}

	result := &CheckResult{GeofenceOK: true}
	if err := s.checkGeofence(ctx, staff, facility, req, result); err != nil {
		s.metrics.RecordCheckEvent("check_in", "rejected")
		return nil, err
	}

	expected, err := facility.ExpectedCheckIn(req.Now)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	lateMinutes := 0
	if req.Now.After(expected) {
		lateMinutes = int(req.Now.Sub(expected).Minutes())
	}

	status := domain.AttendancePresent
	if lateMinutes > 0 {
		status = domain.AttendanceLate
	}

	event := &domain.CheckEvent{
		Time:     req.Now,
		Location: req.Location,
		Modality: req.Modality,
		Device:   req.Device,
		Verified: true,
	}

	record := existing
	if record == nil {
		record = &domain.AttendanceRecord{
			StaffID:    req.StaffID,
			FacilityID: req.FacilityID,
			Day:        day,
		}
	}
	record.CheckIn = event
	record.Status = status
	record.IsLate = lateMinutes > 0
	record.LateMinutes = lateMinutes

	if record.ID == "" {
		err = s.attendance.Create(ctx, record)
	} else {
		err = s.attendance.SetCheckIn(ctx, record)
	}
	if err != nil {
		if repository.IsUniqueViolation(err) || errors.Is(err, pgx.ErrNoRows) {
			// Another request for the same staff and day won the race.
			s.metrics.RecordCheckEvent("check_in", "duplicate")
			return nil, util.NewConflict("already checked in today", map[string]any{
				"staff_id": req.StaffID,
				"day":      day.Format("2006-01-02"),
			})
		}
		return nil, err
	}

	result.Record = record
	if record.IsLate {
		alert, alertErr := s.alerts.LateCheckInAlert(ctx, staff, facility, req.Now, lateMinutes)
		if alertErr != nil {
			s.logger.Error("failed to generate late check-in alert",
				zap.String("staff_id", staff.ID), zap.Error(alertErr))
		} else {
			result.Alert = alert
		}
	}

	s.metrics.RecordCheckEvent("check_in", string(status))
	s.publishAttendance(ctx, events.EventCheckInRecorded, record)
	return result, nil
}

// ProcessCheckOut verifies the factor, classifies early departure, and
// closes the day's record, recomputing worked hours against breaks.
func (s *AttendanceService) ProcessCheckOut(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	staff, facility, err := s.resolveSubjects(ctx, req)
	if err != nil {
		s.metrics.RecordCheckEvent("check_out", "rejected")
		return nil, err
	}

	day := domain.DayOf(req.Now)
	record, err := s.attendance.GetByStaffAndDay(ctx, req.StaffID, day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.RecordCheckEvent("check_out", "rejected")
			return nil, util.NewValidationError("no check-in recorded today", map[string]any{
				"staff_id": req.StaffID,
				"day":      day.Format("2006-01-02"),
			})
		}
		return nil, err
	}
	if !record.HasCheckedIn() {
		s.metrics.RecordCheckEvent("check_out", "rejected")
		return nil, util.NewValidationError("no check-in recorded today", map[string]any{
			"staff_id": req.StaffID,
			"day":      day.Format("2006-01-02"),
		})
	}
	if record.HasCheckedOut() {
		s.metrics.RecordCheckEvent("check_out", "duplicate")
		return nil, util.NewConflict("already checked out today", map[string]any{
			"staff_id": req.StaffID,
			"day":      day.Format("2006-01-02"),
		})
	}

	if err := s.verifyFactor(ctx, staff, facility, req, "check_out"); err != nil {
		return nil, err
	}

	result := &CheckResult{GeofenceOK: true}
	if err := s.checkGeofence(ctx, staff, facility, req, result); err != nil {
		s.metrics.RecordCheckEvent("check_out", "rejected")
		return nil, err
	}

	expected, err := facility.ExpectedCheckOut(req.Now)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	earlyMinutes := 0
	if req.Now.Before(expected) {
		earlyMinutes = int(expected.Sub(req.Now).Minutes())
	}

	record.CheckOut = &domain.CheckEvent{
		Time:     req.Now,
		Location: req.Location,
		Modality: req.Modality,
		Device:   req.Device,
		Verified: true,
	}
	if len(req.Breaks) > 0 {
		record.Breaks = append(record.Breaks, req.Breaks...)
	}
	record.IsEarly = earlyMinutes > 0
	record.EarlyMinutes = earlyMinutes
	record.WorkHours = record.ComputeWorkHours()
	if record.IsEarly {
		record.Status = domain.AttendanceEarlyDeparture
	}

	if err := s.attendance.SetCheckOut(ctx, record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.RecordCheckEvent("check_out", "duplicate")
			return nil, util.NewConflict("already checked out today", map[string]any{
				"staff_id": req.StaffID,
				"day":      day.Format("2006-01-02"),
			})
		}
		return nil, err
	}

	result.Record = record
	if record.IsEarly {
		alert, alertErr := s.alerts.EarlyCheckOutAlert(ctx, staff, facility, req.Now, earlyMinutes)
		if alertErr != nil {
			s.logger.Error("failed to generate early check-out alert",
				zap.String("staff_id", staff.ID), zap.Error(alertErr))
		} else {
			result.Alert = alert
		}
	}

	s.metrics.RecordCheckEvent("check_out", string(record.Status))
	s.publishAttendance(ctx, events.EventCheckOutRecorded, record)
	return result, nil
}

// MarkAbsentees creates ABSENT records for every active staff member
// scheduled at the facility on the given day who has no record yet, then
// evaluates the multi-absence aggregation rule. Intended for an
// end-of-window sweep.
func (s *AttendanceService) MarkAbsentees(ctx context.Context, facilityID string, day time.Time) (int, *domain.Alert, error) {
	facility, err := s.facilities.GetByID(ctx, facilityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, util.NewNotFound("facility", map[string]any{"facility_id": facilityID})
		}
		return 0, nil, err
	}

	members, err := s.staff.ListActiveByFacility(ctx, facilityID)
	if err != nil {
		return 0, nil, err
	}

	day = domain.DayOf(day)
	marked := 0
	for i := range members {
		member := &members[i]
		if !member.ScheduledOn(day.Weekday()) {
			continue
		}
		_, err := s.attendance.GetByStaffAndDay(ctx, member.ID, day)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return marked, nil, err
		}
		rec := &domain.AttendanceRecord{
			StaffID:    member.ID,
			FacilityID: facilityID,
			Day:        day,
			Status:     domain.AttendanceAbsent,
		}
		if err := s.attendance.Create(ctx, rec); err != nil {
			if repository.IsUniqueViolation(err) {
				continue
			}
			return marked, nil, err
		}
		marked++
	}

	alert, err := s.alerts.CheckMultipleAbsences(ctx, facility, day)
	if err != nil {
		s.logger.Error("multi-absence aggregation failed",
			zap.String("facility_id", facilityID), zap.Error(err))
		return marked, nil, nil
	}
	return marked, alert, nil
}

// GetByStaffAndDay returns one staff member's record for a day.
func (s *AttendanceService) GetByStaffAndDay(ctx context.Context, staffID string, day time.Time) (*domain.AttendanceRecord, error) {
	rec, err := s.attendance.GetByStaffAndDay(ctx, staffID, domain.DayOf(day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("attendance record", map[string]any{"staff_id": staffID})
		}
		return nil, err
	}
	return rec, nil
}

// ListByFacilityAndDay returns all records at a facility for a day.
func (s *AttendanceService) ListByFacilityAndDay(ctx context.Context, facilityID string, day time.Time) ([]domain.AttendanceRecord, error) {
	return s.attendance.ListByFacilityAndDay(ctx, facilityID, domain.DayOf(day))
}

// ListByStaffRange returns a staff member's records in [from, to].
func (s *AttendanceService) ListByStaffRange(ctx context.Context, staffID string, from, to time.Time) ([]domain.AttendanceRecord, error) {
	return s.attendance.ListByStaffRange(ctx, staffID, from, to)
}

func (s *AttendanceService) resolveSubjects(ctx context.Context, req CheckRequest) (*domain.StaffMember, *domain.Facility, error) {
	staff, err := s.staff.GetActiveAtFacility(ctx, req.StaffID, req.FacilityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, util.NewNotFound("staff member", map[string]any{
				"staff_id":    req.StaffID,
				"facility_id": req.FacilityID,
			})
		}
		return nil, nil, err
	}

	facility, err := s.facilities.GetByID(ctx, req.FacilityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, util.NewNotFound("facility", map[string]any{"facility_id": req.FacilityID})
		}
		return nil, nil, err
	}
	if !facility.IsActive() {
		return nil, nil, util.NewNotFound("facility", map[string]any{
			"facility_id": req.FacilityID,
			"status":      facility.Status,
		})
	}
	return staff, facility, nil
}

// verifyFactor applies the rate limiter and the biometric comparison. A
// limiter backend error is logged and treated as allowed so attendance
// never depends on store availability.
func (s *AttendanceService) verifyFactor(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, req CheckRequest, phase string) error {
	allowed, err := s.limiter.Allow(ctx, staff.ID)
	if err != nil {
		s.logger.Warn("attempt limiter unavailable; allowing attempt",
			zap.String("staff_id", staff.ID), zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.metrics.RecordCheckEvent(phase, "rate_limited")
		return util.NewRateLimited("too many verification attempts", map[string]any{
			"staff_id":       staff.ID,
			"window_minutes": s.policy.VerifyWindowMinutes,
		})
	}

	if !s.verifier.Verify(staff, req.Modality, req.Sample) {
		s.metrics.RecordCheckEvent(phase, "verify_failed")
		if _, alertErr := s.alerts.BiometricFailureAlert(ctx, staff, facility, req.Modality); alertErr != nil {
			s.logger.Error("failed to generate biometric failure alert",
				zap.String("staff_id", staff.ID), zap.Error(alertErr))
		}
		return util.NewAuthenticationFailed("biometric verification failed")
	}
	return nil
}

// checkGeofence evaluates the reported location against the facility
// geofence. Outside the fence an advisory alert is raised; the event is
// rejected only when enforcement is configured. A missing location is
// accepted, matching field devices without a GPS fix.
func (s *AttendanceService) checkGeofence(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, req CheckRequest, result *CheckResult) error {
	if req.Location == nil {
		return nil
	}
	actual := domain.Coordinate{Lat: req.Location.Lat, Lng: req.Location.Lng}
	distance := geo.DistanceMeters(facility.Location, actual)
	result.DistanceMeters = distance
	if distance <= s.policy.GeofenceRadiusMeters {
		return nil
	}

	result.GeofenceOK = false
	if _, alertErr := s.alerts.LocationMismatchAlert(ctx, staff, facility, distance); alertErr != nil {
		s.logger.Error("failed to generate location mismatch alert",
			zap.String("staff_id", staff.ID), zap.Error(alertErr))
	}
	if s.policy.EnforceGeofence {
		return util.NewValidationError("reported location outside facility geofence", map[string]any{
			"distance_meters": distance,
			"radius_meters":   s.policy.GeofenceRadiusMeters,
		})
	}
	return nil
}

func (s *AttendanceService) publishAttendance(ctx context.Context, eventType events.EventType, record *domain.AttendanceRecord) {
	if s.dispatcher == nil {
		return
	}
	var at time.Time
	switch eventType {
	case events.EventCheckOutRecorded:
		if record.CheckOut != nil {
			at = record.CheckOut.Time
		}
	default:
		if record.CheckIn != nil {
			at = record.CheckIn.Time
		}
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:       eventType,
		StaffID:    record.StaffID,
		FacilityID: record.FacilityID,
		Timestamp:  at,
		Payload: events.AttendancePayload{
			RecordID:     record.ID,
			At:           at,
			Status:       record.Status,
			IsLate:       record.IsLate,
			LateMinutes:  record.LateMinutes,
			IsEarly:      record.IsEarly,
			EarlyMinutes: record.EarlyMinutes,
			WorkHours:    record.WorkHours,
		},
	})
}
