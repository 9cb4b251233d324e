package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

func checkInRequest(now time.Time) CheckRequest {
	return CheckRequest{
		StaffID:    "STF-001",
		FacilityID: "FAC-001",
		Modality:   domain.ModalityFingerprint,
		Sample:     testSample,
		Now:        now,
	}
}

func TestProcessCheckIn(t *testing.T) {
	ctx := context.Background()

	t.Run("on-time check-in is PRESENT with no alert", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(8, 55)))
		require.NoError(t, err)
		require.Equal(t, domain.AttendancePresent, res.Record.Status)
		require.False(t, res.Record.IsLate)
		require.Nil(t, res.Alert)
		require.Empty(t, f.alertRepo.alerts)
	})

	t.Run("45 minutes late is LATE with a MEDIUM alert", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 45)))
		require.NoError(t, err)
		require.Equal(t, domain.AttendanceLate, res.Record.Status)
		require.Equal(t, 45, res.Record.LateMinutes)
		require.NotNil(t, res.Alert)
		require.Equal(t, domain.AlertLateCheckIn, res.Alert.Type)
		require.Equal(t, domain.SeverityMedium, res.Alert.Severity)
	})

	t.Run("severity boundary at sixty minutes", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 59)))
		require.NoError(t, err)
		require.Equal(t, domain.SeverityMedium, res.Alert.Severity)

		f2 := newFixture(t)
		res, err = f2.attendance.ProcessCheckIn(ctx, checkInRequest(at(10, 1)))
		require.NoError(t, err)
		require.Equal(t, 61, res.Record.LateMinutes)
		require.Equal(t, domain.SeverityHigh, res.Alert.Severity)
	})

	t.Run("second check-in the same day conflicts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 0)))
		require.NoError(t, err)
		_, err = f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 30)))
		require.True(t, util.IsCode(err, "CONFLICT"))
	})

	t.Run("failed verification raises exactly one alert and no record", func(t *testing.T) {
		f := newFixture(t)
		req := checkInRequest(at(9, 0))
		req.Sample = "wrong-sample"
		_, err := f.attendance.ProcessCheckIn(ctx, req)
		require.True(t, util.IsCode(err, "AUTHENTICATION_FAILED"))

		failures := f.alertRepo.byType(domain.AlertBiometricFailure)
		require.Len(t, failures, 1)
		require.Equal(t, domain.SeverityHigh, failures[0].Severity)
		require.Empty(t, f.attendanceRepo.records)
	})

	t.Run("attempts beyond the limit are rate limited", func(t *testing.T) {
		f := newFixture(t)
		req := checkInRequest(at(9, 0))
		req.Sample = "wrong-sample"
		for i := 0; i < f.policy.MaxVerifyAttempts; i++ {
			_, err := f.attendance.ProcessCheckIn(ctx, req)
			require.True(t, util.IsCode(err, "AUTHENTICATION_FAILED"))
		}
		req.Sample = testSample
		_, err := f.attendance.ProcessCheckIn(ctx, req)
		require.True(t, util.IsCode(err, "RATE_LIMITED"))
	})

	t.Run("unknown staff or wrong facility is not found", func(t *testing.T) {
		f := newFixture(t)
		req := checkInRequest(at(9, 0))
		req.StaffID = "STF-404"
		_, err := f.attendance.ProcessCheckIn(ctx, req)
		require.True(t, util.IsCode(err, "NOT_FOUND"))

		req = checkInRequest(at(9, 0))
		req.FacilityID = "FAC-404"
		_, err = f.attendance.ProcessCheckIn(ctx, req)
		require.True(t, util.IsCode(err, "NOT_FOUND"))
	})

	t.Run("inactive facility is not found", func(t *testing.T) {
		f := newFixture(t)
		f.facility.Status = domain.FacilityStatusSuspended
		_, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 0)))
		require.True(t, util.IsCode(err, "NOT_FOUND"))
	})
}

func TestProcessCheckInGeofence(t *testing.T) {
	ctx := context.Background()

	// Roughly 1.5 km north of the facility.
	farAway := &domain.GeoPoint{Lat: 10.2866, Lng: 76.3504}

	t.Run("outside the fence is advisory by default", func(t *testing.T) {
		f := newFixture(t)
		req := checkInRequest(at(9, 0))
		req.Location = farAway
		res, err := f.attendance.ProcessCheckIn(ctx, req)
		require.NoError(t, err)
		require.False(t, res.GeofenceOK)
		require.Greater(t, res.DistanceMeters, f.policy.GeofenceRadiusMeters)

		mismatches := f.alertRepo.byType(domain.AlertLocationMismatch)
		require.Len(t, mismatches, 1)
		require.Equal(t, domain.SeverityMedium, mismatches[0].Severity)
	})

	t.Run("outside the fence is rejected when enforced", func(t *testing.T) {
		f := newFixture(t)
		f.attendance.policy.EnforceGeofence = true
		req := checkInRequest(at(9, 0))
		req.Location = farAway
		_, err := f.attendance.ProcessCheckIn(ctx, req)
		require.True(t, util.IsCode(err, "VALIDATION_FAILED"))
		require.Empty(t, f.attendanceRepo.records)
	})

	t.Run("inside the fence passes silently", func(t *testing.T) {
		f := newFixture(t)
		req := checkInRequest(at(9, 0))
		req.Location = &domain.GeoPoint{Lat: f.facility.Location.Lat, Lng: f.facility.Location.Lng}
		res, err := f.attendance.ProcessCheckIn(ctx, req)
		require.NoError(t, err)
		require.True(t, res.GeofenceOK)
		require.Empty(t, f.alertRepo.alerts)
	})
}

func TestProcessCheckOut(t *testing.T) {
	ctx := context.Background()

	checkIn := func(t *testing.T, f *serviceFixture, now time.Time) {
		t.Helper()
		_, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(now))
		require.NoError(t, err)
	}

	t.Run("on-time checkout computes work hours with breaks", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, at(9, 0))

		req := checkInRequest(at(17, 0))
		req.Breaks = []domain.BreakPeriod{{Start: at(13, 0), End: at(13, 30)}}
		res, err := f.attendance.ProcessCheckOut(ctx, req)
		require.NoError(t, err)
		require.False(t, res.Record.IsEarly)
		require.InDelta(t, 7.5, res.Record.WorkHours, 0.001)
		require.Nil(t, res.Alert)
	})

	t.Run("early departure severity boundary at 120 minutes", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, at(9, 0))
		res, err := f.attendance.ProcessCheckOut(ctx, checkInRequest(at(15, 1)))
		require.NoError(t, err)
		require.Equal(t, domain.AttendanceEarlyDeparture, res.Record.Status)
		require.Equal(t, 119, res.Record.EarlyMinutes)
		require.Equal(t, domain.SeverityMedium, res.Alert.Severity)

		f2 := newFixture(t)
		checkIn(t, f2, at(9, 0))
		res, err = f2.attendance.ProcessCheckOut(ctx, checkInRequest(at(14, 59)))
		require.NoError(t, err)
		require.Equal(t, 121, res.Record.EarlyMinutes)
		require.Equal(t, domain.SeverityHigh, res.Alert.Severity)
	})

	t.Run("checkout without a check-in is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.attendance.ProcessCheckOut(ctx, checkInRequest(at(17, 0)))
		require.True(t, util.IsCode(err, "VALIDATION_FAILED"))
	})

	t.Run("second checkout conflicts", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, at(9, 0))
		_, err := f.attendance.ProcessCheckOut(ctx, checkInRequest(at(17, 0)))
		require.NoError(t, err)
		_, err = f.attendance.ProcessCheckOut(ctx, checkInRequest(at(17, 30)))
		require.True(t, util.IsCode(err, "CONFLICT"))
	})

	t.Run("late check-in keeps LATE status after on-time checkout", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, at(9, 45))
		res, err := f.attendance.ProcessCheckOut(ctx, checkInRequest(at(17, 0)))
		require.NoError(t, err)
		require.Equal(t, domain.AttendanceLate, res.Record.Status)
	})

	t.Run("clock skew never yields negative work hours", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, at(9, 0))
		req := checkInRequest(at(17, 0))
		req.Breaks = []domain.BreakPeriod{{Start: at(8, 0), End: at(18, 0)}}
		res, err := f.attendance.ProcessCheckOut(ctx, req)
		require.NoError(t, err)
		require.Equal(t, 0.0, res.Record.WorkHours)
	})
}

func TestMarkAbsentees(t *testing.T) {
	ctx := context.Background()

	addStaff := func(f *serviceFixture, n int) {
		for i := 0; i < n; i++ {
			id := string(rune('A' + i))
			f.staffRepo.members["STF-x"+id] = &domain.StaffMember{
				ID:         "STF-x" + id,
				Name:       "Staff " + id,
				FacilityID: "FAC-001",
				Status:     domain.StaffStatusActive,
			}
		}
	}

	t.Run("marks unrecorded staff absent and aggregates at threshold", func(t *testing.T) {
		f := newFixture(t)
		addStaff(f, 3)
		_, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 0)))
		require.NoError(t, err)

		marked, alert, err := f.attendance.MarkAbsentees(ctx, "FAC-001", at(18, 0))
		require.NoError(t, err)
		require.Equal(t, 3, marked)
		require.NotNil(t, alert)
		require.Equal(t, domain.AlertMultipleAbsences, alert.Type)
		require.Equal(t, domain.SeverityHigh, alert.Severity)
	})

	t.Run("below threshold marks without alerting", func(t *testing.T) {
		f := newFixture(t)
		addStaff(f, 2)
		_, err := f.attendance.ProcessCheckIn(ctx, checkInRequest(at(9, 0)))
		require.NoError(t, err)

		marked, alert, err := f.attendance.MarkAbsentees(ctx, "FAC-001", at(18, 0))
		require.NoError(t, err)
		require.Equal(t, 2, marked)
		require.Nil(t, alert)
	})

	t.Run("critical severity at five absences", func(t *testing.T) {
		f := newFixture(t)
		addStaff(f, 5)
		_, alert, err := f.attendance.MarkAbsentees(ctx, "FAC-001", at(18, 0))
		require.NoError(t, err)
		require.NotNil(t, alert)
		require.Equal(t, domain.SeverityCritical, alert.Severity)
	})

	t.Run("second sweep the same day is idempotent", func(t *testing.T) {
		f := newFixture(t)
		addStaff(f, 3)
		_, first, err := f.attendance.MarkAbsentees(ctx, "FAC-001", at(18, 0))
		require.NoError(t, err)
		require.NotNil(t, first)

		marked, second, err := f.attendance.MarkAbsentees(ctx, "FAC-001", at(19, 0))
		require.NoError(t, err)
		require.Equal(t, 0, marked)
		require.NotNil(t, second)
		require.Equal(t, first.ID, second.ID)
		require.Len(t, f.alertRepo.byType(domain.AlertMultipleAbsences), 1)
	})
}
