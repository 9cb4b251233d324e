package dto

import (
	"time"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// AlertView renders one alert.
type AlertView struct {
	ID              string               `json:"id"`
	StaffID         *string              `json:"staff_id,omitempty"`
	FacilityID      string               `json:"facility_id"`
	Type            string               `json:"type"`
	Severity        string               `json:"severity"`
	Title           string               `json:"title"`
	Message         string               `json:"message"`
	Payload         map[string]any       `json:"payload,omitempty"`
	Recipients      []AlertRecipientView `json:"recipients"`
	Status          string               `json:"status"`
	SentAt          *time.Time           `json:"sent_at,omitempty"`
	AcknowledgedAt  *time.Time           `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	AcknowledgedBy  *domain.Actor        `json:"acknowledged_by,omitempty"`
	ResolvedBy      *domain.Actor        `json:"resolved_by,omitempty"`
	ResolutionNotes string               `json:"resolution_notes,omitempty"`
	RetryCount      int                  `json:"retry_count"`
	CreatedAt       time.Time            `json:"created_at"`
}

// AlertRecipientView renders a recipient with per-channel delivery flags.
type AlertRecipientView struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Role      string              `json:"role"`
	Delivered domain.ChannelFlags `json:"delivered"`
}

// ResolveRequest carries resolution notes.
type ResolveRequest struct {
	Notes string `json:"notes"`
}

// AlertStatView is one cell of the type/severity breakdown.
type AlertStatView struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// NewAlertView maps a domain alert.
func NewAlertView(alert *domain.Alert) AlertView {
	recipients := make([]AlertRecipientView, 0, len(alert.Recipients))
	for _, r := range alert.Recipients {
		recipients = append(recipients, AlertRecipientView{
			ID:        r.ID,
			Name:      r.Name,
			Role:      r.Role,
			Delivered: r.Delivered,
		})
	}
	return AlertView{
		ID:              alert.ID,
		StaffID:         alert.StaffID,
		FacilityID:      alert.FacilityID,
		Type:            string(alert.Type),
		Severity:        string(alert.Severity),
		Title:           alert.Title,
		Message:         alert.Message,
		Payload:         alert.Payload,
		Recipients:      recipients,
		Status:          string(alert.Status),
		SentAt:          alert.SentAt,
		AcknowledgedAt:  alert.AcknowledgedAt,
		ResolvedAt:      alert.ResolvedAt,
		AcknowledgedBy:  alert.AcknowledgedBy,
		ResolvedBy:      alert.ResolvedBy,
		ResolutionNotes: alert.ResolutionNotes,
		RetryCount:      alert.RetryCount,
		CreatedAt:       alert.CreatedAt,
	}
}
