package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FacilityType enumerates health-care facility tiers.
type FacilityType string

const (
	FacilityTypePHC         FacilityType = "PHC"
	FacilityTypeUpgradedPHC FacilityType = "UPGRADED_PHC"
	FacilityTypeSubCentre   FacilityType = "SUB_CENTRE"
)

// FacilityStatus enumerates operational states.
type FacilityStatus string

const (
	FacilityStatusActive    FacilityStatus = "ACTIVE"
	FacilityStatusInactive  FacilityStatus = "INACTIVE"
	FacilityStatusSuspended FacilityStatus = "SUSPENDED"
)

// Coordinate is a WGS84 geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OperatingHours is the facility's daily window in "HH:MM" local time. It is
// the single policy baseline for lateness and early-departure classification.
type OperatingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Facility models a health-care center where staff check in and out.
type Facility struct {
	ID       string
	Name     string
	Type     FacilityType
	Division string
	District string
	State    string
	Location Coordinate
	Hours    OperatingHours
	Status   FacilityStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the facility accepts attendance events.
func (f *Facility) IsActive() bool {
	return f != nil && f.Status == FacilityStatusActive
}

// ExpectedCheckIn returns the operating-hours start on the calendar day of
// the given instant, in that instant's location.
func (f *Facility) ExpectedCheckIn(now time.Time) (time.Time, error) {
	return atClockTime(now, f.Hours.Start)
}

// ExpectedCheckOut returns the operating-hours end on the calendar day of
// the given instant.
func (f *Facility) ExpectedCheckOut(now time.Time) (time.Time, error) {
	return atClockTime(now, f.Hours.End)
}

func atClockTime(day time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed clock time %q", clock)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock time %q: %w", clock, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed clock time %q: %w", clock, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return time.Time{}, fmt.Errorf("clock time %q out of range", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hours, minutes, 0, 0, day.Location()), nil
}
