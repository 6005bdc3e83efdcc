package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-oliynyk/salonhub/libs/db"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/availability"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

// BookingRepository owns appointment rows. The insert path is the overlap
// guard: the exclusion constraint on the appointments table decides winner
// and loser under concurrency, not any availability computation done before
// the write.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts the appointment inside tx. A colliding active interval for
// the same agent makes the insert fail atomically; callers detect it with
// IsConflict.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, unit_id, agent_id, client_id, client_name, client_email, client_phone, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, appt.UnitID, appt.AgentID, appt.ClientID, appt.ClientName, appt.ClientEmail, appt.ClientPhone,
		appt.StartAt, appt.EndAt, appt.Status)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, unitID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	var reason *string
	err := tx.QueryRow(ctx, `
		SELECT id::text, unit_id::text, agent_id::text, client_id, client_name, client_email, client_phone,
			start_at, end_at, status, cancelled_at, cancellation_reason, created_at
		FROM appointments
		WHERE id = $1 AND unit_id = $2
		FOR UPDATE
	`, appointmentID, unitID).Scan(
		&appt.ID,
		&appt.UnitID,
		&appt.AgentID,
		&appt.ClientID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.StartAt,
		&appt.EndAt,
		&appt.Status,
		&appt.CancelledAt,
		&reason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if reason != nil {
		appt.CancelReason = *reason
	}
	return appt, nil
}

// Cancel flips the status in one atomic update. The exclusion constraint
// ignores cancelled rows, so the interval is free the instant this commits.
func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, unitID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND unit_id = $2
		RETURNING cancelled_at
	`, appointmentID, unitID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) SetStatus(ctx context.Context, tx pgx.Tx, unitID, appointmentID string, status model.AppointmentStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND unit_id = $2
	`, appointmentID, unitID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ActiveIntervals returns the busy [start,end) intervals of non-cancelled
// appointments for an agent intersecting [from, to).
func (r *BookingRepository) ActiveIntervals(ctx context.Context, agentID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM appointments
		WHERE agent_id = $1
			AND status <> 'cancelled'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at ASC
	`, agentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepository) ListByUnit(ctx context.Context, unitID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, unit_id::text, agent_id::text, client_id, client_name, client_email, client_phone,
			start_at, end_at, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE unit_id = $1
		ORDER BY start_at DESC
		LIMIT $2
	`, unitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(
			&appt.ID,
			&appt.UnitID,
			&appt.AgentID,
			&appt.ClientID,
			&appt.ClientName,
			&appt.ClientEmail,
			&appt.ClientPhone,
			&appt.StartAt,
			&appt.EndAt,
			&appt.Status,
			&appt.CancelledAt,
			&appt.CancelReason,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
