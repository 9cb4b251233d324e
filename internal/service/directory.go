package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

// EscalationDirectory resolves the contacts who should receive alerts for
// a facility. Implementations may return an empty list; callers degrade a
// lookup failure to an empty recipient set rather than failing the alert.
type EscalationDirectory interface {
	LookupRecipients(ctx context.Context, facilityID string) ([]domain.AlertRecipient, error)
}

type repoDirectory struct {
	contacts repository.EscalationRepository
	logger   *zap.Logger
}

// NewEscalationDirectory builds a directory backed by the escalation
// contacts table.
func NewEscalationDirectory(contacts repository.EscalationRepository, logger *zap.Logger) EscalationDirectory {
	return &repoDirectory{contacts: contacts, logger: logger}
}

func (d *repoDirectory) LookupRecipients(ctx context.Context, facilityID string) ([]domain.AlertRecipient, error) {
	return d.contacts.ListByFacility(ctx, facilityID)
}
