package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// EscalationRepository maps facilities to the contacts who receive alerts.
type EscalationRepository interface {
	ListByFacility(ctx context.Context, facilityID string) ([]domain.AlertRecipient, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates the repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) ListByFacility(ctx context.Context, facilityID string) ([]domain.AlertRecipient, error) {
	const query = `
        SELECT contact_id, name, role, email, phone
        FROM escalation_contacts
        WHERE facility_id=$1
        ORDER BY priority, contact_id`

	rows, err := r.pool.Query(ctx, query, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.AlertRecipient
	for rows.Next() {
		var contact domain.AlertRecipient
		if err := rows.Scan(
			&contact.ID,
			&contact.Name,
			&contact.Role,
			&contact.Email,
			&contact.Phone,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}
