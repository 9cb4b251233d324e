package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// AlertFilter captures alert listing parameters.
type AlertFilter struct {
	FacilityID *string
	StaffID    *string
	Type       *domain.AlertType
	Severity   *domain.AlertSeverity
	Status     *domain.AlertStatus
	From       *time.Time
	To         *time.Time
	Limit      int
}

// AlertStat is one cell of the type/severity breakdown.
type AlertStat struct {
	Type     domain.AlertType
	Severity domain.AlertSeverity
	Count    int
}

// AlertRepository encapsulates alert persistence and lifecycle writes.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	GetByAggregationKey(ctx context.Context, key string) (*domain.Alert, error)
	ListWithFilter(ctx context.Context, filter AlertFilter) ([]domain.Alert, error)
	// UpdateStatus persists a lifecycle transition together with its audit
	// fields. Callers validate the transition first.
	UpdateStatus(ctx context.Context, alert *domain.Alert) error
	UpdateRecipientFlags(ctx context.Context, alertID, recipientID string, flags domain.ChannelFlags) error
	IncrementRetry(ctx context.Context, alertID string) (int, error)
	Stats(ctx context.Context, facilityID string, from, to time.Time) ([]AlertStat, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type alertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository instantiates the repository.
func NewAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &alertRepository{pool: pool}
}

func (r *alertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO alerts
            (staff_id, facility_id, alert_type, severity, title, message, payload,
             status, retry_count, max_retries, aggregation_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`

	if err := tx.QueryRow(ctx, query,
		alert.StaffID,
		alert.FacilityID,
		alert.Type,
		alert.Severity,
		alert.Title,
		alert.Message,
		payload,
		alert.Status,
		alert.RetryCount,
		alert.MaxRetries,
		alert.AggregationKey,
	).Scan(&alert.ID, &alert.CreatedAt, &alert.UpdatedAt); err != nil {
		return err
	}

	const recipientQuery = `
        INSERT INTO alert_recipients
            (alert_id, recipient_id, name, role, email, phone)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for _, rcpt := range alert.Recipients {
		if _, err := tx.Exec(ctx, recipientQuery,
			alert.ID, rcpt.ID, rcpt.Name, rcpt.Role, rcpt.Email, rcpt.Phone); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *alertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	return r.fetchSingle(ctx, `WHERE id=$1`, id)
}

func (r *alertRepository) GetByAggregationKey(ctx context.Context, key string) (*domain.Alert, error) {
	return r.fetchSingle(ctx, `WHERE aggregation_key=$1`, key)
}

const alertColumns = `
        id, staff_id, facility_id, alert_type, severity, title, message, payload,
        status, sent_at, acknowledged_at, resolved_at, acknowledged_by, resolved_by,
        resolution_notes, retry_count, max_retries, aggregation_key, created_at, updated_at`

func (r *alertRepository) fetchSingle(ctx context.Context, where string, arg any) (*domain.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts ` + where
	rows, err := r.pool.Query(ctx, query, arg)
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
	alert, err := scanAlert(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadRecipients(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (r *alertRepository) ListWithFilter(ctx context.Context, filter AlertFilter) ([]domain.Alert, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.FacilityID != nil {
		args = append(args, *filter.FacilityID)
		clauses = append(clauses, fmt.Sprintf("facility_id=$%d", len(args)))
	}
	if filter.StaffID != nil {
		args = append(args, *filter.StaffID)
		clauses = append(clauses, fmt.Sprintf("staff_id=$%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		clauses = append(clauses, fmt.Sprintf("alert_type=$%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE %s ORDER BY created_at DESC LIMIT %d`,
		alertColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range result {
		if err := r.loadRecipients(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *alertRepository) UpdateStatus(ctx context.Context, alert *domain.Alert) error {
	ackBy, err := marshalActor(alert.AcknowledgedBy)
	if err != nil {
		return err
	}
	resolvedBy, err := marshalActor(alert.ResolvedBy)
	if err != nil {
		return err
	}

	const query = `
        UPDATE alerts
        SET status=$1, sent_at=$2, acknowledged_at=$3, resolved_at=$4,
            acknowledged_by=$5, resolved_by=$6, resolution_notes=$7, updated_at=NOW()
        WHERE id=$8`

	cmd, err := r.pool.Exec(ctx, query,
		alert.Status,
		alert.SentAt,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		ackBy,
		resolvedBy,
		alert.ResolutionNotes,
		alert.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *alertRepository) UpdateRecipientFlags(ctx context.Context, alertID, recipientID string, flags domain.ChannelFlags) error {
	const query = `
        UPDATE alert_recipients
        SET sms_delivered=$1, email_delivered=$2, push_delivered=$3, dashboard_delivered=$4
        WHERE alert_id=$5 AND recipient_id=$6`

	cmd, err := r.pool.Exec(ctx, query,
		flags.SMS, flags.Email, flags.Push, flags.Dashboard, alertID, recipientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *alertRepository) IncrementRetry(ctx context.Context, alertID string) (int, error) {
	const query = `
        UPDATE alerts SET retry_count = retry_count + 1, updated_at=NOW()
        WHERE id=$1
        RETURNING retry_count`
	var count int
	err := r.pool.QueryRow(ctx, query, alertID).Scan(&count)
	return count, err
}

func (r *alertRepository) Stats(ctx context.Context, facilityID string, from, to time.Time) ([]AlertStat, error) {
	const query = `
        SELECT alert_type, severity, COUNT(*)
        FROM alerts
        WHERE facility_id=$1 AND created_at >= $2 AND created_at <= $3
        GROUP BY alert_type, severity
        ORDER BY alert_type, severity`

	rows, err := r.pool.Query(ctx, query, facilityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []AlertStat
	for rows.Next() {
		var stat AlertStat
		if err := rows.Scan(&stat.Type, &stat.Severity, &stat.Count); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (r *alertRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE created_at >= $1`, since).Scan(&count)
	return count, err
}

func (r *alertRepository) loadRecipients(ctx context.Context, alert *domain.Alert) error {
	const query = `
        SELECT recipient_id, name, role, email, phone,
               sms_delivered, email_delivered, push_delivered, dashboard_delivered
        FROM alert_recipients WHERE alert_id=$1
        ORDER BY recipient_id`

	rows, err := r.pool.Query(ctx, query, alert.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	alert.Recipients = nil
	for rows.Next() {
		var rcpt domain.AlertRecipient
		if err := rows.Scan(
			&rcpt.ID,
			&rcpt.Name,
			&rcpt.Role,
			&rcpt.Email,
			&rcpt.Phone,
			&rcpt.Delivered.SMS,
			&rcpt.Delivered.Email,
			&rcpt.Delivered.Push,
			&rcpt.Delivered.Dashboard,
		); err != nil {
			return err
		}
		alert.Recipients = append(alert.Recipients, rcpt)
	}
	return rows.Err()
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var alert domain.Alert
	var payload, ackBy, resolvedBy []byte
	if err := row.Scan(
		&alert.ID,
		&alert.StaffID,
		&alert.FacilityID,
		&alert.Type,
		&alert.Severity,
		&alert.Title,
		&alert.Message,
		&payload,
		&alert.Status,
		&alert.SentAt,
		&alert.AcknowledgedAt,
		&alert.ResolvedAt,
		&ackBy,
		&resolvedBy,
		&alert.ResolutionNotes,
		&alert.RetryCount,
		&alert.MaxRetries,
		&alert.AggregationKey,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &alert.Payload); err != nil {
			return nil, err
		}
	}
	if len(ackBy) > 0 {
		alert.AcknowledgedBy = &domain.Actor{}
		if err := json.Unmarshal(ackBy, alert.AcknowledgedBy); err != nil {
			return nil, err
		}
	}
	if len(resolvedBy) > 0 {
		alert.ResolvedBy = &domain.Actor{}
		if err := json.Unmarshal(resolvedBy, alert.ResolvedBy); err != nil {
			return nil, err
		}
	}
	return &alert, nil
}

func marshalActor(actor *domain.Actor) ([]byte, error) {
	if actor == nil {
		return nil, nil
	}
	return json.Marshal(actor)
}
