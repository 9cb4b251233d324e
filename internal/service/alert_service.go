package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/events"
	"github.com/ephc-connect/attendance-service/internal/observability"
	"github.com/ephc-connect/attendance-service/internal/repository"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

// AlertService owns alert generation, the lifecycle state machine, and the
// multi-absence aggregation rule.
type AlertService struct {
	alerts     repository.AlertRepository
	attendance repository.AttendanceRepository
	staff      repository.StaffRepository
	directory  EscalationDirectory
	dispatcher events.Dispatcher
	policy     config.PolicyConfig
	maxRetries int
	logger     *zap.Logger
	metrics    *observability.Metrics

	now func() time.Time
}

// AlertDependencies bundles collaborators for the alert service.
type AlertDependencies struct {
	AlertRepo      repository.AlertRepository
	AttendanceRepo repository.AttendanceRepository
	StaffRepo      repository.StaffRepository
	Directory      EscalationDirectory
	Dispatcher     events.Dispatcher
	Policy         config.PolicyConfig
	MaxRetries     int
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewAlertService constructs the service.
func NewAlertService(deps AlertDependencies) *AlertService {
	maxRetries := deps.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AlertService{
		alerts:     deps.AlertRepo,
		attendance: deps.AttendanceRepo,
		staff:      deps.StaffRepo,
		directory:  deps.Directory,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		maxRetries: maxRetries,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// GenerateInput describes an alert to create.
type GenerateInput struct {
	Type           domain.AlertType
	Severity       domain.AlertSeverity
	StaffID        *string
	FacilityID     string
	Title          string
	Message        string
	Payload        map[string]any
	AggregationKey *string
}

// Generate persists a PENDING alert with recipients resolved from the
// escalation directory, then announces it for asynchronous dispatch. A
// failed or empty directory lookup still creates the alert with zero
// recipients so the audit trail is preserved.
func (s *AlertService) Generate(ctx context.Context, input GenerateInput) (*domain.Alert, error) {
	recipients, err := s.directory.LookupRecipients(ctx, input.FacilityID)
	if err != nil {
		s.logger.Warn("escalation directory lookup failed; proceeding with zero recipients",
			zap.String("facility_id", input.FacilityID), zap.Error(err))
		recipients = nil
	}

	alert := &domain.Alert{
		StaffID:        input.StaffID,
		FacilityID:     input.FacilityID,
		Type:           input.Type,
		Severity:       input.Severity,
		Title:          input.Title,
		Message:        input.Message,
		Payload:        input.Payload,
		Recipients:     recipients,
		Status:         domain.AlertPending,
		MaxRetries:     s.maxRetries,
		AggregationKey: input.AggregationKey,
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		if input.AggregationKey != nil && repository.IsUniqueViolation(err) {
			// Lost the race to another aggregation evaluation; the open
			// alert already exists.
			return s.alerts.GetByAggregationKey(ctx, *input.AggregationKey)
		}
		return nil, err
	}

	s.metrics.RecordAlert(string(alert.Type), string(alert.Severity))
	s.publishCreated(ctx, alert)
	return alert, nil
}

// LateCheckInAlert raises a LATE_CHECKIN alert for the staff member.
func (s *AlertService) LateCheckInAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, checkInTime time.Time, lateMinutes int) (*domain.Alert, error) {
	severity := domain.SeverityMedium
	if lateMinutes > s.policy.LateHighSeverityMinutes {
		severity = domain.SeverityHigh
	}
	return s.Generate(ctx, GenerateInput{
		Type:       domain.AlertLateCheckIn,
		Severity:   severity,
		StaffID:    &staff.ID,
		FacilityID: facility.ID,
		Title:      "Late Check-in Alert",
		Message: fmt.Sprintf("%s (%s) at %s checked in %d minutes late at %s",
			staff.Name, staff.Designation, facility.Name, lateMinutes, checkInTime.Format("15:04")),
		Payload: map[string]any{
			"late_minutes": lateMinutes,
			"actual_time":  checkInTime,
		},
	})
}

// EarlyCheckOutAlert raises an EARLY_CHECKOUT alert for the staff member.
func (s *AlertService) EarlyCheckOutAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, checkOutTime time.Time, earlyMinutes int) (*domain.Alert, error) {
	severity := domain.SeverityMedium
	if earlyMinutes > s.policy.EarlyHighSeverityMinutes {
		severity = domain.SeverityHigh
	}
	return s.Generate(ctx, GenerateInput{
		Type:       domain.AlertEarlyCheckOut,
		Severity:   severity,
		StaffID:    &staff.ID,
		FacilityID: facility.ID,
		Title:      "Early Check-out Alert",
		Message: fmt.Sprintf("%s (%s) at %s checked out %d minutes early at %s",
			staff.Name, staff.Designation, facility.Name, earlyMinutes, checkOutTime.Format("15:04")),
		Payload: map[string]any{
			"early_minutes": earlyMinutes,
			"actual_time":   checkOutTime,
		},
	})
}

// BiometricFailureAlert raises a BIOMETRIC_FAILURE alert after a failed
// verification attempt.
func (s *AlertService) BiometricFailureAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, modality domain.BiometricModality) (*domain.Alert, error) {
	return s.Generate(ctx, GenerateInput{
		Type:       domain.AlertBiometricFailure,
		Severity:   domain.SeverityHigh,
		StaffID:    &staff.ID,
		FacilityID: facility.ID,
		Title:      "Biometric Verification Failed",
		Message: fmt.Sprintf("Biometric verification failed for %s using %s at %s",
			staff.Name, modality, facility.Name),
		Payload: map[string]any{
			"modality": modality,
		},
	})
}

// LocationMismatchAlert raises a LOCATION_MISMATCH alert when a check
// event is reported outside the facility geofence.
func (s *AlertService) LocationMismatchAlert(ctx context.Context, staff *domain.StaffMember, facility *domain.Facility, distanceMeters float64) (*domain.Alert, error) {
	return s.Generate(ctx, GenerateInput{
		Type:       domain.AlertLocationMismatch,
		Severity:   domain.SeverityMedium,
		StaffID:    &staff.ID,
		FacilityID: facility.ID,
		Title:      "Location Mismatch Detected",
		Message: fmt.Sprintf("%s reported a location %.0f m from %s during attendance verification",
			staff.Name, distanceMeters, facility.Name),
		Payload: map[string]any{
			"distance_meters": distanceMeters,
			"expected":        facility.Location,
		},
	})
}

// CheckMultipleAbsences applies the aggregation rule: once the count of
// ABSENT staff at a facility reaches the policy threshold, exactly one
// MULTIPLE_ABSENCES alert exists for that facility and day. The unique
// aggregation key makes the check-then-create race-safe.
func (s *AlertService) CheckMultipleAbsences(ctx context.Context, facility *domain.Facility, day time.Time) (*domain.Alert, error) {
	count, err := s.attendance.CountByStatus(ctx, facility.ID, day, domain.AttendanceAbsent)
	if err != nil {
		return nil, err
	}
	if count < s.policy.AbsenceAlertThreshold {
		return nil, nil
	}

	severity := domain.SeverityHigh
	if count >= s.policy.AbsenceCriticalThreshold {
		severity = domain.SeverityCritical
	}

	absentStaff, err := s.absentStaffSummaries(ctx, facility.ID, day)
	if err != nil {
		s.logger.Warn("failed to summarize absent staff", zap.Error(err))
	}

	key := fmt.Sprintf("MULTIPLE_ABSENCES:%s:%s", facility.ID, day.Format("2006-01-02"))
	return s.Generate(ctx, GenerateInput{
		Type:       domain.AlertMultipleAbsences,
		Severity:   severity,
		FacilityID: facility.ID,
		Title:      "Multiple Staff Absences",
		Message:    fmt.Sprintf("%d staff members are absent today at %s", count, facility.Name),
		Payload: map[string]any{
			"absent_count": count,
			"absent_staff": absentStaff,
		},
		AggregationKey: &key,
	})
}

func (s *AlertService) absentStaffSummaries(ctx context.Context, facilityID string, day time.Time) ([]map[string]string, error) {
	records, err := s.attendance.ListByFacilityAndDay(ctx, facilityID, day)
	if err != nil {
		return nil, err
	}
	var summaries []map[string]string
	for _, rec := range records {
		if rec.Status != domain.AttendanceAbsent {
			continue
		}
		summary := map[string]string{"staff_id": rec.StaffID}
		if staff, err := s.staff.GetByID(ctx, rec.StaffID); err == nil {
			summary["name"] = staff.Name
			summary["role"] = string(staff.Role)
			summary["designation"] = staff.Designation
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Get returns one alert with recipients.
func (s *AlertService) Get(ctx context.Context, id string) (*domain.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("alert", map[string]any{"alert_id": id})
		}
		return nil, err
	}
	return alert, nil
}

// List returns alerts matching the filter, newest first.
func (s *AlertService) List(ctx context.Context, filter repository.AlertFilter) ([]domain.Alert, error) {
	return s.alerts.ListWithFilter(ctx, filter)
}

// Acknowledge records that an authorized actor has seen the alert.
// Acknowledging an already-acknowledged alert is a no-op returning the
// existing state.
func (s *AlertService) Acknowledge(ctx context.Context, alertID string, actor domain.Actor) (*domain.Alert, error) {
	alert, err := s.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == domain.AlertAcknowledged {
		return alert, nil
	}
	if !domain.CanTransition(alert.Status, domain.AlertAcknowledged) {
		return nil, util.NewConflict("alert cannot be acknowledged", map[string]any{
			"alert_id": alertID,
			"status":   alert.Status,
		})
	}

	now := s.now()
	alert.Status = domain.AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &actor
	if err := s.alerts.UpdateStatus(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Resolve closes the alert with free-text resolution notes. RESOLVED is
// terminal; any further transition is rejected.
func (s *AlertService) Resolve(ctx context.Context, alertID string, actor domain.Actor, notes string) (*domain.Alert, error) {
	alert, err := s.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(alert.Status, domain.AlertResolved) {
		return nil, util.NewConflict("alert cannot be resolved", map[string]any{
			"alert_id": alertID,
			"status":   alert.Status,
		})
	}

	now := s.now()
	alert.Status = domain.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = &actor
	alert.ResolutionNotes = notes
	if err := s.alerts.UpdateStatus(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Stats returns the type/severity breakdown for a facility and range.
func (s *AlertService) Stats(ctx context.Context, facilityID string, from, to time.Time) ([]repository.AlertStat, error) {
	return s.alerts.Stats(ctx, facilityID, from, to)
}

func (s *AlertService) publishCreated(ctx context.Context, alert *domain.Alert) {
	if s.dispatcher == nil {
		return
	}
	staffID := ""
	if alert.StaffID != nil {
		staffID = *alert.StaffID
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:       events.EventAlertCreated,
		StaffID:    staffID,
		FacilityID: alert.FacilityID,
		Timestamp:  s.now(),
		Payload: events.AlertCreatedPayload{
			AlertID:  alert.ID,
			Type:     alert.Type,
			Severity: alert.Severity,
		},
	})
}
