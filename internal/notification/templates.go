package notification

import (
	"fmt"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

var severityColors = map[domain.AlertSeverity]string{
	domain.SeverityLow:      "#28a745",
	domain.SeverityMedium:   "#ffc107",
	domain.SeverityHigh:     "#fd7e14",
	domain.SeverityCritical: "#dc3545",
}

// SMSBody renders the short-form channel body.
func SMSBody(alert *domain.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Title, alert.Message)
}

// EmailSubject renders the email subject line.
func EmailSubject(alert *domain.Alert) string {
	return fmt.Sprintf("[%s] %s", alert.Severity, alert.Title)
}

// EmailText renders the plain-text email body.
func EmailText(alert *domain.Alert, recipientName string) string {
	staffID := ""
	if alert.StaffID != nil {
		staffID = *alert.StaffID
	}
	return fmt.Sprintf(
		"Dear %s,\n\n%s\n\nFacility ID: %s\nStaff ID: %s\nTime: %s\n\nPlease take appropriate action.\n\nRegards,\ne-PHC Connect System",
		recipientName, alert.Message, alert.FacilityID, staffID, alert.CreatedAt.Format("2006-01-02 15:04:05"))
}

// EmailHTML renders the HTML email body.
func EmailHTML(alert *domain.Alert, recipientName string) string {
	color := severityColors[alert.Severity]
	staffID := ""
	if alert.StaffID != nil {
		staffID = *alert.StaffID
	}
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: %s; color: white; padding: 20px; text-align: center;">
    <h2>%s</h2>
    <p style="margin: 0; font-size: 14px;">Severity: %s</p>
  </div>
  <div style="padding: 20px; background-color: #f8f9fa;">
    <p>Dear %s,</p>
    <p>%s</p>
    <div style="background-color: white; padding: 15px; border-left: 4px solid %s; margin: 20px 0;">
      <p><strong>Details:</strong></p>
      <ul style="list-style: none; padding: 0;">
        <li><strong>Facility ID:</strong> %s</li>
        <li><strong>Staff ID:</strong> %s</li>
        <li><strong>Time:</strong> %s</li>
        <li><strong>Alert Type:</strong> %s</li>
      </ul>
    </div>
    <p>Please take appropriate action.</p>
    <p>Regards,<br>e-PHC Connect System</p>
  </div>
</div>`,
		color, alert.Title, alert.Severity, recipientName, alert.Message, color,
		alert.FacilityID, staffID, alert.CreatedAt.Format("2006-01-02 15:04:05"), alert.Type)
}

// PushPayload is the real-time message sent to a recipient's channel.
func PushPayload(alert *domain.Alert) map[string]any {
	return map[string]any{
		"id":        alert.ID,
		"type":      alert.Type,
		"severity":  alert.Severity,
		"title":     alert.Title,
		"message":   alert.Message,
		"timestamp": alert.CreatedAt,
	}
}

// DashboardPayload is the broadcast message announcing an alert.
func DashboardPayload(alert *domain.Alert) map[string]any {
	return map[string]any{
		"id":          alert.ID,
		"type":        alert.Type,
		"severity":    alert.Severity,
		"title":       alert.Title,
		"message":     alert.Message,
		"facility_id": alert.FacilityID,
		"staff_id":    alert.StaffID,
		"timestamp":   alert.CreatedAt,
	}
}
