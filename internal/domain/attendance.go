package domain

import "time"

// AttendanceStatus classifies a day's attendance outcome.
type AttendanceStatus string

const (
	AttendancePresent        AttendanceStatus = "PRESENT"
	AttendanceAbsent         AttendanceStatus = "ABSENT"
	AttendanceHalfDay        AttendanceStatus = "HALF_DAY"
	AttendanceLate           AttendanceStatus = "LATE"
	AttendanceEarlyDeparture AttendanceStatus = "EARLY_DEPARTURE"
	AttendanceOnLeave        AttendanceStatus = "ON_LEAVE"
)

// GeoPoint is a reported device location with GPS accuracy in meters.
type GeoPoint struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// DeviceInfo describes the device that captured a check event.
type DeviceInfo struct {
	DeviceID   string `json:"device_id,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// CheckEvent is one verified check-in or check-out sub-record.
type CheckEvent struct {
	Time     time.Time         `json:"time"`
	Location *GeoPoint         `json:"location,omitempty"`
	Modality BiometricModality `json:"modality"`
	Device   DeviceInfo        `json:"device"`
	Verified bool              `json:"verified"`
}

// BreakPeriod is a pause subtracted from worked time.
type BreakPeriod struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// AttendanceRecord is the single record for one staff member on one
// calendar day. The store enforces uniqueness on (staff, day); records are
// never deleted, only amended.
type AttendanceRecord struct {
	ID         string
	StaffID    string
	FacilityID string
	Day        time.Time
	CheckIn    *CheckEvent
	CheckOut   *CheckEvent
	Breaks     []BreakPeriod
	WorkHours  float64
	Status     AttendanceStatus

	IsLate       bool
	LateMinutes  int
	IsEarly      bool
	EarlyMinutes int
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCheckedIn reports whether a check-in sub-record is present.
func (r *AttendanceRecord) HasCheckedIn() bool {
	return r != nil && r.CheckIn != nil && !r.CheckIn.Time.IsZero()
}

// HasCheckedOut reports whether a check-out sub-record is present.
func (r *AttendanceRecord) HasCheckedOut() bool {
	return r != nil && r.CheckOut != nil && !r.CheckOut.Time.IsZero()
}

// ComputeWorkHours derives total worked hours from the check events minus
// break durations, clamped at zero against clock skew or break overlap.
func (r *AttendanceRecord) ComputeWorkHours() float64 {
	if !r.HasCheckedIn() || !r.HasCheckedOut() {
		return 0
	}
	total := r.CheckOut.Time.Sub(r.CheckIn.Time)
	for _, b := range r.Breaks {
		if !b.Start.IsZero() && !b.End.IsZero() {
			total -= b.End.Sub(b.Start)
		}
	}
	if total < 0 {
		return 0
	}
	return total.Hours()
}

// DayOf truncates an instant to its calendar day in its own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
