package storage

import (
	"context"
	"time"

	"github.com/m-oliynyk/salonhub/libs/db"
)

type Notification struct {
	ID            int64
	AppointmentID string
	UnitID        string
	Kind          string
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	Status        string
	FailureReason string
	CreatedAt     time.Time
}

const (
	KindBookingConfirmation = "booking_confirmation"
	KindCancellationNotice  = "cancellation_notice"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, unit_id, kind, channel, recipient, subject, body, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.AppointmentID, n.UnitID, n.Kind, n.Channel, n.Recipient, n.Subject, n.Body, n.Status, n.FailureReason)
	return err
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, unit_id, kind, channel, recipient, subject, body, status, COALESCE(failure_reason, ''), created_at
		FROM notifications
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.AppointmentID, &n.UnitID, &n.Kind, &n.Channel, &n.Recipient, &n.Subject, &n.Body, &n.Status, &n.FailureReason, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
