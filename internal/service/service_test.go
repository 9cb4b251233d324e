package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/biometric"
	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/events"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		LateHighSeverityMinutes:  60,
		EarlyHighSeverityMinutes: 120,
		AbsenceAlertThreshold:    3,
		AbsenceCriticalThreshold: 5,
		GeofenceRadiusMeters:     100,
		MaxVerifyAttempts:        5,
		VerifyWindowMinutes:      5,
	}
}

// stubStaffRepo serves staff members from memory.
type stubStaffRepo struct {
	members map[string]*domain.StaffMember
}

func newStubStaffRepo(members ...*domain.StaffMember) *stubStaffRepo {
	r := &stubStaffRepo{members: make(map[string]*domain.StaffMember)}
	for _, m := range members {
		r.members[m.ID] = m
	}
	return r
}

func (r *stubStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

func (r *stubStaffRepo) GetActiveAtFacility(_ context.Context, id, facilityID string) (*domain.StaffMember, error) {
	m, ok := r.members[id]
	if !ok || m.FacilityID != facilityID || !m.IsActive() {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

func (r *stubStaffRepo) ListActiveByFacility(_ context.Context, facilityID string) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	for _, m := range r.members {
		if m.FacilityID == facilityID && m.IsActive() {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *stubStaffRepo) CountActive(context.Context) (int, error) {
	n := 0
	for _, m := range r.members {
		if m.IsActive() {
			n++
		}
	}
	return n, nil
}

// stubFacilityRepo serves facilities from memory.
type stubFacilityRepo struct {
	facilities map[string]*domain.Facility
}

func newStubFacilityRepo(facilities ...*domain.Facility) *stubFacilityRepo {
	r := &stubFacilityRepo{facilities: make(map[string]*domain.Facility)}
	for _, f := range facilities {
		r.facilities[f.ID] = f
	}
	return r
}

func (r *stubFacilityRepo) GetByID(_ context.Context, id string) (*domain.Facility, error) {
	f, ok := r.facilities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return f, nil
}

func (r *stubFacilityRepo) CountActive(context.Context) (int, error) {
	n := 0
	for _, f := range r.facilities {
		if f.IsActive() {
			n++
		}
	}
	return n, nil
}

// stubAttendanceRepo mimics the store's uniqueness and atomic-guard
// behavior in memory.
type stubAttendanceRepo struct {
	records map[string]*domain.AttendanceRecord
	nextID  int
}

func newStubAttendanceRepo() *stubAttendanceRepo {
	return &stubAttendanceRepo{records: make(map[string]*domain.AttendanceRecord)}
}

func attendanceKey(staffID string, day time.Time) string {
	return staffID + "|" + day.Format("2006-01-02")
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

func (r *stubAttendanceRepo) Create(_ context.Context, rec *domain.AttendanceRecord) error {
	key := attendanceKey(rec.StaffID, rec.Day)
	if _, exists := r.records[key]; exists {
		return uniqueViolation()
	}
	r.nextID++
	rec.ID = fmt.Sprintf("att-%d", r.nextID)
	clone := *rec
	r.records[key] = &clone
	return nil
}

func (r *stubAttendanceRepo) SetCheckIn(_ context.Context, rec *domain.AttendanceRecord) error {
	stored, ok := r.records[attendanceKey(rec.StaffID, rec.Day)]
	if !ok || stored.HasCheckedIn() {
		return pgx.ErrNoRows
	}
	*stored = *rec
	return nil
}

func (r *stubAttendanceRepo) SetCheckOut(_ context.Context, rec *domain.AttendanceRecord) error {
	stored, ok := r.records[attendanceKey(rec.StaffID, rec.Day)]
	if !ok || stored.HasCheckedOut() {
		return pgx.ErrNoRows
	}
	*stored = *rec
	return nil
}

func (r *stubAttendanceRepo) GetByStaffAndDay(_ context.Context, staffID string, day time.Time) (*domain.AttendanceRecord, error) {
	stored, ok := r.records[attendanceKey(staffID, day)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (r *stubAttendanceRepo) ListByFacilityAndDay(_ context.Context, facilityID string, day time.Time) ([]domain.AttendanceRecord, error) {
	var out []domain.AttendanceRecord
	for _, rec := range r.records {
		if rec.FacilityID == facilityID && rec.Day.Equal(day) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *stubAttendanceRepo) ListByStaffRange(_ context.Context, staffID string, from, to time.Time) ([]domain.AttendanceRecord, error) {
	var out []domain.AttendanceRecord
	for _, rec := range r.records {
		if rec.StaffID == staffID && !rec.Day.Before(from) && !rec.Day.After(to) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *stubAttendanceRepo) StatusCounts(_ context.Context, facilityID string, from, to time.Time) (map[domain.AttendanceStatus]int, error) {
	counts := make(map[domain.AttendanceStatus]int)
	for _, rec := range r.records {
		if facilityID != "" && rec.FacilityID != facilityID {
			continue
		}
		if rec.Day.Before(from) || !rec.Day.Before(to) {
			continue
		}
		counts[rec.Status]++
	}
	return counts, nil
}

func (r *stubAttendanceRepo) CountByStatus(_ context.Context, facilityID string, day time.Time, status domain.AttendanceStatus) (int, error) {
	n := 0
	for _, rec := range r.records {
		if rec.FacilityID == facilityID && rec.Day.Equal(day) && rec.Status == status {
			n++
		}
	}
	return n, nil
}

// stubAlertRepo stores alerts in memory and enforces aggregation-key
// uniqueness the way the database constraint would.
type stubAlertRepo struct {
	alerts  map[string]*domain.Alert
	byKey   map[string]string
	nextID  int
	created []string
}

func newStubAlertRepo() *stubAlertRepo {
	return &stubAlertRepo{
		alerts: make(map[string]*domain.Alert),
		byKey:  make(map[string]string),
	}
}

func (r *stubAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	if alert.AggregationKey != nil {
		if _, exists := r.byKey[*alert.AggregationKey]; exists {
			return uniqueViolation()
		}
	}
	r.nextID++
	alert.ID = fmt.Sprintf("alr-%d", r.nextID)
	alert.CreatedAt = time.Now()
	clone := *alert
	r.alerts[alert.ID] = &clone
	r.created = append(r.created, alert.ID)
	if alert.AggregationKey != nil {
		r.byKey[*alert.AggregationKey] = alert.ID
	}
	return nil
}

func (r *stubAlertRepo) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	a, ok := r.alerts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (r *stubAlertRepo) GetByAggregationKey(_ context.Context, key string) (*domain.Alert, error) {
	id, ok := r.byKey[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *r.alerts[id]
	return &clone, nil
}

func (r *stubAlertRepo) ListWithFilter(_ context.Context, filter repository.AlertFilter) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range r.alerts {
		if filter.Type != nil && a.Type != *filter.Type {
			continue
		}
		if filter.FacilityID != nil && a.FacilityID != *filter.FacilityID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *stubAlertRepo) UpdateStatus(_ context.Context, alert *domain.Alert) error {
	stored, ok := r.alerts[alert.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	*stored = *alert
	return nil
}

func (r *stubAlertRepo) UpdateRecipientFlags(_ context.Context, alertID, recipientID string, flags domain.ChannelFlags) error {
	stored, ok := r.alerts[alertID]
	if !ok {
		return pgx.ErrNoRows
	}
	for i := range stored.Recipients {
		if stored.Recipients[i].ID == recipientID {
			stored.Recipients[i].Delivered = flags
		}
	}
	return nil
}

func (r *stubAlertRepo) IncrementRetry(_ context.Context, alertID string) (int, error) {
	stored, ok := r.alerts[alertID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	stored.RetryCount++
	return stored.RetryCount, nil
}

func (r *stubAlertRepo) Stats(context.Context, string, time.Time, time.Time) ([]repository.AlertStat, error) {
	tally := make(map[domain.AlertType]map[domain.AlertSeverity]int)
	for _, a := range r.alerts {
		if tally[a.Type] == nil {
			tally[a.Type] = make(map[domain.AlertSeverity]int)
		}
		tally[a.Type][a.Severity]++
	}
	var out []repository.AlertStat
	for typ, bySeverity := range tally {
		for sev, n := range bySeverity {
			out = append(out, repository.AlertStat{Type: typ, Severity: sev, Count: n})
		}
	}
	return out, nil
}

func (r *stubAlertRepo) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, a := range r.alerts {
		if !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *stubAlertRepo) byType(typ domain.AlertType) []*domain.Alert {
	var out []*domain.Alert
	for _, id := range r.created {
		if a := r.alerts[id]; a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// stubDirectory returns fixed recipients or a configured failure.
type stubDirectory struct {
	recipients []domain.AlertRecipient
	err        error
}

func (d *stubDirectory) LookupRecipients(context.Context, string) ([]domain.AlertRecipient, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.recipients, nil
}

var errDirectoryDown = errors.New("directory unavailable")

const testSample = "ridge-pattern-7281"

func testStaff(t *testing.T) *domain.StaffMember {
	t.Helper()
	hash, err := biometric.HashTemplate(testSample, 4)
	require.NoError(t, err)
	return &domain.StaffMember{
		ID:          "STF-001",
		Name:        "Dr. Priya Raman",
		Email:       "priya@example.org",
		Phone:       "+911234567890",
		Role:        domain.StaffRoleDoctor,
		FacilityID:  "FAC-001",
		Designation: "Medical Officer",
		Templates:   domain.BiometricTemplates{FingerprintHash: hash},
		Status:      domain.StaffStatusActive,
	}
}

func testFacility() *domain.Facility {
	return &domain.Facility{
		ID:       "FAC-001",
		Name:     "Koratty PHC",
		Status:   domain.FacilityStatusActive,
		Location: domain.Coordinate{Lat: 10.2731, Lng: 76.3504},
		Hours:    domain.OperatingHours{Start: "09:00", End: "17:00"},
	}
}

type serviceFixture struct {
	attendanceRepo *stubAttendanceRepo
	alertRepo      *stubAlertRepo
	staffRepo      *stubStaffRepo
	facilityRepo   *stubFacilityRepo
	directory      *stubDirectory
	alerts         *AlertService
	attendance     *AttendanceService
	staff          *domain.StaffMember
	facility       *domain.Facility
	policy         config.PolicyConfig
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		attendanceRepo: newStubAttendanceRepo(),
		alertRepo:      newStubAlertRepo(),
		directory:      &stubDirectory{recipients: []domain.AlertRecipient{{ID: "ESC-1", Name: "Incharge", Phone: "+919999999999"}}},
		staff:          testStaff(t),
		facility:       testFacility(),
		policy:         testPolicy(),
	}
	f.staffRepo = newStubStaffRepo(f.staff)
	f.facilityRepo = newStubFacilityRepo(f.facility)

	logger := zap.NewNop()
	f.alerts = NewAlertService(AlertDependencies{
		AlertRepo:      f.alertRepo,
		AttendanceRepo: f.attendanceRepo,
		StaffRepo:      f.staffRepo,
		Directory:      f.directory,
		Dispatcher:     events.NewInMemoryDispatcher(),
		Policy:         f.policy,
		MaxRetries:     3,
		Logger:         logger,
	})
	f.attendance = NewAttendanceService(AttendanceDependencies{
		AttendanceRepo: f.attendanceRepo,
		StaffRepo:      f.staffRepo,
		FacilityRepo:   f.facilityRepo,
		Verifier:       biometric.NewVerifier(),
		Limiter:        biometric.NewMemoryLimiter(f.policy.MaxVerifyAttempts, 5*time.Minute),
		Alerts:         f.alerts,
		Dispatcher:     events.NewInMemoryDispatcher(),
		Policy:         f.policy,
		Logger:         logger,
	})
	return f
}

// at builds an instant on a fixed test date.
func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}
