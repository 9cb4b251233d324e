package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// AttendanceRepository encapsulates attendance persistence. The store
// enforces UNIQUE (staff_id, day); callers translate a unique violation
// into a conflict rather than treating it as an unhandled fault.
type AttendanceRepository interface {
	Create(ctx context.Context, rec *domain.AttendanceRecord) error
	// SetCheckIn attaches a check-in to an existing record that has none
	// yet. Returns pgx.ErrNoRows when the record is missing or already
	// checked in, keeping the guard atomic against duplicates.
	SetCheckIn(ctx context.Context, rec *domain.AttendanceRecord) error
	// SetCheckOut attaches a check-out to a record that has none yet.
	SetCheckOut(ctx context.Context, rec *domain.AttendanceRecord) error
	GetByStaffAndDay(ctx context.Context, staffID string, day time.Time) (*domain.AttendanceRecord, error)
	ListByFacilityAndDay(ctx context.Context, facilityID string, day time.Time) ([]domain.AttendanceRecord, error)
	ListByStaffRange(ctx context.Context, staffID string, from, to time.Time) ([]domain.AttendanceRecord, error)
	// StatusCounts aggregates record counts by status for a facility and
	// date range. An empty facilityID spans the whole network.
	StatusCounts(ctx context.Context, facilityID string, from, to time.Time) (map[domain.AttendanceStatus]int, error)
	CountByStatus(ctx context.Context, facilityID string, day time.Time, status domain.AttendanceStatus) (int, error)
}

type attendanceRepository struct {
	pool *pgxpool.Pool
}

// NewAttendanceRepository instantiates the repository.
func NewAttendanceRepository(pool *pgxpool.Pool) AttendanceRepository {
	return &attendanceRepository{pool: pool}
}

const attendanceColumns = `
        id, staff_id, facility_id, day, check_in, check_out, breaks, work_hours,
        status, is_late, late_minutes, is_early, early_minutes, notes, created_at, updated_at`

func (r *attendanceRepository) Create(ctx context.Context, rec *domain.AttendanceRecord) error {
	checkIn, err := marshalCheckEvent(rec.CheckIn)
	if err != nil {
		return err
	}
	checkOut, err := marshalCheckEvent(rec.CheckOut)
	if err != nil {
		return err
	}
	breaks, err := json.Marshal(rec.Breaks)
	if err != nil {
		return err
	}

	const query = `
        INSERT INTO attendance_records
            (staff_id, facility_id, day, check_in, check_out, breaks, work_hours,
             status, is_late, late_minutes, is_early, early_minutes, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		rec.StaffID,
		rec.FacilityID,
		rec.Day,
		checkIn,
		checkOut,
		breaks,
		rec.WorkHours,
		rec.Status,
		rec.IsLate,
		rec.LateMinutes,
		rec.IsEarly,
		rec.EarlyMinutes,
		rec.Notes,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *attendanceRepository) SetCheckIn(ctx context.Context, rec *domain.AttendanceRecord) error {
	checkIn, err := marshalCheckEvent(rec.CheckIn)
	if err != nil {
		return err
	}

	const query = `
        UPDATE attendance_records
        SET check_in=$1, status=$2, is_late=$3, late_minutes=$4, updated_at=NOW()
        WHERE id=$5 AND check_in IS NULL`

	cmd, err := r.pool.Exec(ctx, query, checkIn, rec.Status, rec.IsLate, rec.LateMinutes, rec.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *attendanceRepository) SetCheckOut(ctx context.Context, rec *domain.AttendanceRecord) error {
	checkOut, err := marshalCheckEvent(rec.CheckOut)
	if err != nil {
		return err
	}

	const query = `
        UPDATE attendance_records
        SET check_out=$1, work_hours=$2, status=$3, is_early=$4, early_minutes=$5, updated_at=NOW()
        WHERE id=$6 AND check_out IS NULL`

	cmd, err := r.pool.Exec(ctx, query,
		checkOut, rec.WorkHours, rec.Status, rec.IsEarly, rec.EarlyMinutes, rec.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *attendanceRepository) GetByStaffAndDay(ctx context.Context, staffID string, day time.Time) (*domain.AttendanceRecord, error) {
	query := `SELECT` + attendanceColumns + ` FROM attendance_records WHERE staff_id=$1 AND day=$2`
	rows, err := r.pool.Query(ctx, query, staffID, day)
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
	return scanAttendance(rows)
}

func (r *attendanceRepository) ListByFacilityAndDay(ctx context.Context, facilityID string, day time.Time) ([]domain.AttendanceRecord, error) {
	query := `SELECT` + attendanceColumns + ` FROM attendance_records WHERE facility_id=$1 AND day=$2 ORDER BY staff_id`
	return r.list(ctx, query, facilityID, day)
}

func (r *attendanceRepository) ListByStaffRange(ctx context.Context, staffID string, from, to time.Time) ([]domain.AttendanceRecord, error) {
	query := `SELECT` + attendanceColumns + ` FROM attendance_records
        WHERE staff_id=$1 AND day >= $2 AND day <= $3 ORDER BY day DESC`
	return r.list(ctx, query, staffID, from, to)
}

func (r *attendanceRepository) StatusCounts(ctx context.Context, facilityID string, from, to time.Time) (map[domain.AttendanceStatus]int, error) {
	const query = `
        SELECT status, COUNT(*)
        FROM attendance_records
        WHERE ($1 = '' OR facility_id = $1) AND day >= $2 AND day <= $3
        GROUP BY status`

	rows, err := r.pool.Query(ctx, query, facilityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.AttendanceStatus]int)
	for rows.Next() {
		var status domain.AttendanceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *attendanceRepository) CountByStatus(ctx context.Context, facilityID string, day time.Time, status domain.AttendanceStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_records WHERE facility_id=$1 AND day=$2 AND status=$3`
	var count int
	err := r.pool.QueryRow(ctx, query, facilityID, day, status).Scan(&count)
	return count, err
}

func (r *attendanceRepository) list(ctx context.Context, query string, args ...any) ([]domain.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func scanAttendance(row pgx.Row) (*domain.AttendanceRecord, error) {
	var rec domain.AttendanceRecord
	var checkIn, checkOut, breaks []byte
	if err := row.Scan(
		&rec.ID,
		&rec.StaffID,
		&rec.FacilityID,
		&rec.Day,
		&checkIn,
		&checkOut,
		&breaks,
		&rec.WorkHours,
		&rec.Status,
		&rec.IsLate,
		&rec.LateMinutes,
		&rec.IsEarly,
		&rec.EarlyMinutes,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(checkIn) > 0 {
		rec.CheckIn = &domain.CheckEvent{}
		if err := json.Unmarshal(checkIn, rec.CheckIn); err != nil {
			return nil, err
		}
	}
	if len(checkOut) > 0 {
		rec.CheckOut = &domain.CheckEvent{}
		if err := json.Unmarshal(checkOut, rec.CheckOut); err != nil {
			return nil, err
		}
	}
	if len(breaks) > 0 {
		if err := json.Unmarshal(breaks, &rec.Breaks); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func marshalCheckEvent(event *domain.CheckEvent) ([]byte, error) {
	if event == nil {
		return nil, nil
	}
	return json.Marshal(event)
}
