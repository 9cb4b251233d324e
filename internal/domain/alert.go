package domain

import "time"

// AlertType enumerates supported alert categories.
type AlertType string

const (
	AlertLateCheckIn      AlertType = "LATE_CHECKIN"
	AlertEarlyCheckOut    AlertType = "EARLY_CHECKOUT"
	AlertAbsenteeism      AlertType = "ABSENTEEISM"
	AlertMultipleAbsences AlertType = "MULTIPLE_ABSENCES"
	AlertBiometricFailure AlertType = "BIOMETRIC_FAILURE"
	AlertLocationMismatch AlertType = "LOCATION_MISMATCH"
	AlertDeviceTamper     AlertType = "DEVICE_TAMPER"
	AlertSystemError      AlertType = "SYSTEM_ERROR"
)

// AlertSeverity enumerates urgency tiers.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus enumerates lifecycle states.
type AlertStatus string

const (
	AlertPending      AlertStatus = "PENDING"
	AlertSent         AlertStatus = "SENT"
	AlertDelivered    AlertStatus = "DELIVERED"
	AlertFailed       AlertStatus = "FAILED"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// alertTransitions lists the legal forward moves of the lifecycle state
// machine. RESOLVED is terminal.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertPending:      {AlertSent, AlertFailed},
	AlertSent:         {AlertDelivered, AlertAcknowledged, AlertFailed, AlertResolved},
	AlertDelivered:    {AlertAcknowledged, AlertFailed, AlertResolved},
	AlertAcknowledged: {AlertResolved, AlertFailed},
	AlertFailed:       {AlertResolved},
	AlertResolved:     {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to AlertStatus) bool {
	for _, next := range alertTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ChannelFlags tracks per-channel delivery outcomes for one recipient. A
// flag is set only after that channel's dispatch attempt reports success.
type ChannelFlags struct {
	SMS       bool `json:"sms"`
	Email     bool `json:"email"`
	Push      bool `json:"push"`
	Dashboard bool `json:"dashboard"`
}

// Any reports whether at least one channel delivered.
func (f ChannelFlags) Any() bool {
	return f.SMS || f.Email || f.Push || f.Dashboard
}

// AnyDirect reports whether a per-recipient channel delivered. The
// dashboard broadcast is one-to-many and does not count as a confirmed
// delivery to the recipient.
func (f ChannelFlags) AnyDirect() bool {
	return f.SMS || f.Email || f.Push
}

// AlertRecipient is an escalation contact attached to an alert.
type AlertRecipient struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Role      string       `json:"role"`
	Email     string       `json:"email,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Delivered ChannelFlags `json:"delivered"`
}

// Actor identifies who acknowledged or resolved an alert.
type Actor struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role StaffRole `json:"role"`
}

// Alert is a durable record of a policy breach fanned out to escalation
// contacts and tracked through acknowledgment and resolution.
type Alert struct {
	ID              string
	StaffID         *string
	FacilityID      string
	Type            AlertType
	Severity        AlertSeverity
	Title           string
	Message         string
	Payload         map[string]any
	Recipients      []AlertRecipient
	Status          AlertStatus
	SentAt          *time.Time
	AcknowledgedAt  *time.Time
	ResolvedAt      *time.Time
	AcknowledgedBy  *Actor
	ResolvedBy      *Actor
	ResolutionNotes string
	RetryCount      int
	MaxRetries      int
	AggregationKey  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DeliveredEverywhere reports whether every recipient has at least one
// confirmed channel delivery. Vacuously false with zero recipients.
func (a *Alert) DeliveredEverywhere() bool {
	if len(a.Recipients) == 0 {
		return false
	}
	for _, r := range a.Recipients {
		if !r.Delivered.AnyDirect() {
			return false
		}
	}
	return true
}

// RetriesExhausted reports whether automatic redispatch is suppressed.
func (a *Alert) RetriesExhausted() bool {
	return a.RetryCount >= a.MaxRetries
}
