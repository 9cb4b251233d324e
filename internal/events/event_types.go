package events

import (
	"time"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCheckInRecorded  EventType = "attendance_check_in"
	EventCheckOutRecorded EventType = "attendance_check_out"
	EventAlertCreated     EventType = "alert_created"
)

// Event represents a domain event emitted by services after a successful
// state transition. Delivery is asynchronous and best-effort.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	StaffID    string      `json:"staff_id,omitempty"`
	FacilityID string      `json:"facility_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// AttendancePayload describes a recorded check-in or check-out.
type AttendancePayload struct {
	RecordID     string                  `json:"record_id"`
	At           time.Time               `json:"at"`
	Status       domain.AttendanceStatus `json:"status"`
	IsLate       bool                    `json:"is_late,omitempty"`
	LateMinutes  int                     `json:"late_minutes,omitempty"`
	IsEarly      bool                    `json:"is_early,omitempty"`
	EarlyMinutes int                     `json:"early_minutes,omitempty"`
	WorkHours    float64                 `json:"work_hours,omitempty"`
}

// AlertCreatedPayload carries the alert needing dispatch.
type AlertCreatedPayload struct {
	AlertID  string               `json:"alert_id"`
	Type     domain.AlertType     `json:"alert_type"`
	Severity domain.AlertSeverity `json:"severity"`
}
