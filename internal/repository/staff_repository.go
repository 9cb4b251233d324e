package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// StaffRepository provides read access to staff members. Staff records are
// owned by the administrative subsystem; the core consumes them read-only.
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	// GetActiveAtFacility returns the staff member only when active and
	// currently assigned to the facility.
	GetActiveAtFacility(ctx context.Context, id, facilityID string) (*domain.StaffMember, error)
	ListActiveByFacility(ctx context.Context, facilityID string) ([]domain.StaffMember, error)
	CountActive(ctx context.Context) (int, error)
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `
        id, name, email, phone, role, facility_id, division, designation,
        fingerprint_hash, facial_hash, iris_hash, manual_pin_hash,
        schedule, status, created_at, updated_at`

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	query := `SELECT` + staffColumns + ` FROM staff_members WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *staffRepository) GetActiveAtFacility(ctx context.Context, id, facilityID string) (*domain.StaffMember, error) {
	query := `SELECT` + staffColumns + ` FROM staff_members WHERE id=$1 AND facility_id=$2 AND status='ACTIVE'`
	return r.fetchSingle(ctx, query, id, facilityID)
}

func (r *staffRepository) ListActiveByFacility(ctx context.Context, facilityID string) ([]domain.StaffMember, error) {
	query := `SELECT` + staffColumns + ` FROM staff_members WHERE facility_id=$1 AND status='ACTIVE' ORDER BY id`
	rows, err := r.pool.Query(ctx, query, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *staff)
	}
	return result, rows.Err()
}

func (r *staffRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff_members WHERE status='ACTIVE'`).Scan(&count)
	return count, err
}

func (r *staffRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.StaffMember, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	return scanStaff(rows)
}

func scanStaff(row pgx.Row) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	var scheduleRaw []byte
	if err := row.Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.Phone,
		&staff.Role,
		&staff.FacilityID,
		&staff.Division,
		&staff.Designation,
		&staff.Templates.FingerprintHash,
		&staff.Templates.FacialHash,
		&staff.Templates.IrisHash,
		&staff.ManualPINHash,
		&scheduleRaw,
		&staff.Status,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(scheduleRaw) > 0 {
		if err := json.Unmarshal(scheduleRaw, &staff.Schedule); err != nil {
			return nil, err
		}
	}
	return &staff, nil
}
