package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// FacilityRepository provides read access to facilities.
type FacilityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Facility, error)
	CountActive(ctx context.Context) (int, error)
}

type facilityRepository struct {
	pool *pgxpool.Pool
}

// NewFacilityRepository instantiates the repository.
func NewFacilityRepository(pool *pgxpool.Pool) FacilityRepository {
	return &facilityRepository{pool: pool}
}

func (r *facilityRepository) GetByID(ctx context.Context, id string) (*domain.Facility, error) {
	const query = `
        SELECT id, name, facility_type, division, district, state, lat, lng,
               hours_start, hours_end, status, created_at, updated_at
        FROM facilities WHERE id=$1`

	var f domain.Facility
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID,
		&f.Name,
		&f.Type,
		&f.Division,
		&f.District,
		&f.State,
		&f.Location.Lat,
		&f.Location.Lng,
		&f.Hours.Start,
		&f.Hours.End,
		&f.Status,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *facilityRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM facilities WHERE status='ACTIVE'`).Scan(&count)
	return count, err
}
