package domain

import "time"

// StaffRole enumerates clinical and administrative roles.
type StaffRole string

const (
	StaffRoleDoctor         StaffRole = "DOCTOR"
	StaffRoleNurse          StaffRole = "NURSE"
	StaffRolePharmacist     StaffRole = "PHARMACIST"
	StaffRoleLabTechnician  StaffRole = "LAB_TECHNICIAN"
	StaffRoleAdminStaff     StaffRole = "ADMIN_STAFF"
	StaffRoleCenterIncharge StaffRole = "CENTER_INCHARGE"
	StaffRoleDDHS           StaffRole = "DDHS"
)

// StaffStatus enumerates employment states.
type StaffStatus string

const (
	StaffStatusActive      StaffStatus = "ACTIVE"
	StaffStatusOnLeave     StaffStatus = "ON_LEAVE"
	StaffStatusTransferred StaffStatus = "TRANSFERRED"
	StaffStatusSuspended   StaffStatus = "SUSPENDED"
)

// BiometricModality identifies the sensing method used for verification.
type BiometricModality string

const (
	ModalityFingerprint BiometricModality = "FINGERPRINT"
	ModalityFacial      BiometricModality = "FACIAL"
	ModalityIris        BiometricModality = "IRIS"
	ModalityManual      BiometricModality = "MANUAL"
)

// BiometricTemplates holds one salted one-way hash per enrolled modality.
// Empty values mean the modality is not enrolled.
type BiometricTemplates struct {
	FingerprintHash string
	FacialHash      string
	IrisHash        string
}

// ShiftWindow is a daily work window in "HH:MM" local time.
type ShiftWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkSchedule maps weekday names to shift windows. A missing day means the
// staff member is not scheduled.
type WorkSchedule map[string]ShiftWindow

// StaffMember models a field staff member assigned to a facility.
// A staff member has exactly one active facility assignment at a time.
type StaffMember struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Role          StaffRole
	FacilityID    string
	Division      string
	Designation   string
	Templates     BiometricTemplates
	ManualPINHash string
	Schedule      WorkSchedule
	Status        StaffStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the member may check in or out.
func (s *StaffMember) IsActive() bool {
	return s != nil && s.Status == StaffStatusActive
}

// TemplateFor returns the enrolled hash for a modality, empty when not
// enrolled. MANUAL is resolved against the separately stored PIN hash.
func (s *StaffMember) TemplateFor(modality BiometricModality) string {
	switch modality {
	case ModalityFingerprint:
		return s.Templates.FingerprintHash
	case ModalityFacial:
		return s.Templates.FacialHash
	case ModalityIris:
		return s.Templates.IrisHash
	case ModalityManual:
		return s.ManualPINHash
	default:
		return ""
	}
}

// ScheduledOn reports whether the member has a shift window on the given
// weekday. An empty schedule means scheduled every day.
func (s *StaffMember) ScheduledOn(day time.Weekday) bool {
	if len(s.Schedule) == 0 {
		return true
	}
	_, ok := s.Schedule[day.String()]
	return ok
}
