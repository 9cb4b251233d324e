package dto

import (
	"time"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// CheckRequest is the payload for check-in and check-out endpoints. At is
// optional; when omitted the server clock is used.
type CheckRequest struct {
	StaffID    string             `json:"staff_id"`
	FacilityID string             `json:"facility_id"`
	Modality   string             `json:"modality"`
	Sample     string             `json:"sample"`
	Location   *domain.GeoPoint   `json:"location,omitempty"`
	Device     domain.DeviceInfo  `json:"device,omitempty"`
	Breaks     []BreakPeriodInput `json:"breaks,omitempty"`
	At         *time.Time         `json:"at,omitempty"`
}

// BreakPeriodInput is one break reported at check-out.
type BreakPeriodInput struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// CheckEventView renders one check sub-record.
type CheckEventView struct {
	Time     time.Time        `json:"time"`
	Location *domain.GeoPoint `json:"location,omitempty"`
	Modality string           `json:"modality"`
	Verified bool             `json:"verified"`
}

// AttendanceView renders one attendance record.
type AttendanceView struct {
	ID           string          `json:"id"`
	StaffID      string          `json:"staff_id"`
	FacilityID   string          `json:"facility_id"`
	Day          string          `json:"day"`
	CheckIn      *CheckEventView `json:"check_in,omitempty"`
	CheckOut     *CheckEventView `json:"check_out,omitempty"`
	Status       string          `json:"status"`
	WorkHours    float64         `json:"work_hours"`
	IsLate       bool            `json:"is_late"`
	LateMinutes  int             `json:"late_minutes,omitempty"`
	IsEarly      bool            `json:"is_early"`
	EarlyMinutes int             `json:"early_minutes,omitempty"`
}

// CheckResponse is the outcome of a processed check event.
type CheckResponse struct {
	Record         AttendanceView `json:"record"`
	Alert          *AlertView     `json:"alert,omitempty"`
	GeofenceOK     bool           `json:"geofence_ok"`
	DistanceMeters float64        `json:"distance_meters,omitempty"`
}

// NewAttendanceView maps a domain record.
func NewAttendanceView(rec *domain.AttendanceRecord) AttendanceView {
	view := AttendanceView{
		ID:           rec.ID,
		StaffID:      rec.StaffID,
		FacilityID:   rec.FacilityID,
		Day:          rec.Day.Format("2006-01-02"),
		Status:       string(rec.Status),
		WorkHours:    rec.WorkHours,
		IsLate:       rec.IsLate,
		LateMinutes:  rec.LateMinutes,
		IsEarly:      rec.IsEarly,
		EarlyMinutes: rec.EarlyMinutes,
	}
	if rec.CheckIn != nil {
		view.CheckIn = newCheckEventView(rec.CheckIn)
	}
	if rec.CheckOut != nil {
		view.CheckOut = newCheckEventView(rec.CheckOut)
	}
	return view
}

func newCheckEventView(ev *domain.CheckEvent) *CheckEventView {
	return &CheckEventView{
		Time:     ev.Time,
		Location: ev.Location,
		Modality: string(ev.Modality),
		Verified: ev.Verified,
	}
}
