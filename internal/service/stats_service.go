package service

import (
	"context"
	"time"

	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

// AttendanceStats is a status breakdown over a facility and range.
type AttendanceStats struct {
	FacilityID string                          `json:"facility_id,omitempty"`
	From       time.Time                       `json:"from"`
	To         time.Time                       `json:"to"`
	Counts     map[domain.AttendanceStatus]int `json:"counts"`
	Total      int                             `json:"total"`
}

// NetworkSnapshot is the network-wide picture for one day.
type NetworkSnapshot struct {
	Day              time.Time `json:"day"`
	ActiveFacilities int       `json:"active_facilities"`
	ActiveStaff      int       `json:"active_staff"`
	PresentToday     int       `json:"present_today"`
	AbsentToday      int       `json:"absent_today"`
	LateToday        int       `json:"late_today"`
	AlertsToday      int       `json:"alerts_today"`
}

// StatsService aggregates reporting reads across the stores.
type StatsService struct {
	attendance repository.AttendanceRepository
	alerts     repository.AlertRepository
	staff      repository.StaffRepository
	facilities repository.FacilityRepository
}

// NewStatsService constructs the service.
func NewStatsService(attendance repository.AttendanceRepository, alerts repository.AlertRepository, staff repository.StaffRepository, facilities repository.FacilityRepository) *StatsService {
	return &StatsService{
		attendance: attendance,
		alerts:     alerts,
		staff:      staff,
		facilities: facilities,
	}
}

// AttendanceStats returns status counts for a facility, or network-wide
// when facilityID is empty.
func (s *StatsService) AttendanceStats(ctx context.Context, facilityID string, from, to time.Time) (*AttendanceStats, error) {
	counts, err := s.attendance.StatusCounts(ctx, facilityID, from, to)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &AttendanceStats{
		FacilityID: facilityID,
		From:       from,
		To:         to,
		Counts:     counts,
		Total:      total,
	}, nil
}

// AlertStats returns alert counts grouped by type and severity.
func (s *StatsService) AlertStats(ctx context.Context, facilityID string, from, to time.Time) ([]repository.AlertStat, error) {
	return s.alerts.Stats(ctx, facilityID, from, to)
}

// NetworkSnapshot assembles today's headline figures across the network.
func (s *StatsService) NetworkSnapshot(ctx context.Context, now time.Time) (*NetworkSnapshot, error) {
	day := domain.DayOf(now)
	nextDay := day.AddDate(0, 0, 1)

	facilities, err := s.facilities.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := s.staff.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.attendance.StatusCounts(ctx, "", day, nextDay)
	if err != nil {
		return nil, err
	}
	alerts, err := s.alerts.CountSince(ctx, day)
	if err != nil {
		return nil, err
	}

	return &NetworkSnapshot{
		Day:              day,
		ActiveFacilities: facilities,
		ActiveStaff:      staff,
		PresentToday:     counts[domain.AttendancePresent] + counts[domain.AttendanceLate],
		AbsentToday:      counts[domain.AttendanceAbsent],
		LateToday:        counts[domain.AttendanceLate],
		AlertsToday:      alerts,
	}, nil
}
