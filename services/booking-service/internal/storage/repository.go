package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/m-oliynyk/salonhub/libs/db"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

// Repository covers units, agents, services, weekly schedules, and calendar
// exceptions. Appointment writes live in BookingRepository because they need
// an explicit transaction.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (r *Repository) CreateUnit(ctx context.Context, name, timezone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO units (id, name, timezone)
		VALUES ($1, $2, $3)
	`, id, name, timezone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetUnit(ctx context.Context, unitID string) (model.Unit, error) {
	var u model.Unit
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, status, created_at
		FROM units
		WHERE id = $1
	`, unitID).Scan(&u.ID, &u.Name, &u.Timezone, &u.Status, &u.CreatedAt)
	return u, err
}

func (r *Repository) SetUnitStatus(ctx context.Context, unitID string, status model.UnitStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE units SET status = $2 WHERE id = $1
	`, unitID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CreateAgent(ctx context.Context, unitID, name string, usesCustomSchedule bool) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agents (id, unit_id, name, uses_custom_schedule)
		VALUES ($1, $2, $3, $4)
	`, id, unitID, name, usesCustomSchedule)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetAgent(ctx context.Context, agentID string) (model.Agent, error) {
	var a model.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, unit_id::text, name, uses_custom_schedule, created_at
		FROM agents
		WHERE id = $1
	`, agentID).Scan(&a.ID, &a.UnitID, &a.Name, &a.UsesCustomSchedule, &a.CreatedAt)
	return a, err
}

func (r *Repository) ListAgents(ctx context.Context, unitID string, limit int) ([]model.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, unit_id::text, name, uses_custom_schedule, created_at
		FROM agents
		WHERE unit_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, unitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.UnitID, &a.Name, &a.UsesCustomSchedule, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) SetAgentUsesCustomSchedule(ctx context.Context, agentID string, uses bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET uses_custom_schedule = $2 WHERE id = $1
	`, agentID, uses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CreateService(ctx context.Context, unitID, name string, durationMinutes int, price string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO unit_services (id, unit_id, name, duration_minutes, price)
		VALUES ($1, $2, $3, $4, $5)
	`, id, unitID, name, durationMinutes, price)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, unitID string, limit int) ([]model.UnitService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, unit_id::text, name, duration_minutes, price::text, created_at
		FROM unit_services
		WHERE unit_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, unitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UnitService
	for rows.Next() {
		var s model.UnitService
		if err := rows.Scan(&s.ID, &s.UnitID, &s.Name, &s.DurationMins, &s.Price, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetServiceDuration(ctx context.Context, unitID, serviceID string) (int, error) {
	var mins int
	err := r.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM unit_services
		WHERE unit_id = $1 AND id = $2
	`, unitID, serviceID).Scan(&mins)
	return mins, err
}

func (r *Repository) UnitWeekly(ctx context.Context, unitID string) (model.WeeklySchedule, error) {
	return r.weekly(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM unit_schedule_periods
		WHERE unit_id = $1
		ORDER BY weekday, start_minute
	`, unitID)
}

func (r *Repository) AgentWeekly(ctx context.Context, agentID string) (model.WeeklySchedule, error) {
	return r.weekly(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM agent_schedule_periods
		WHERE agent_id = $1
		ORDER BY weekday, start_minute
	`, agentID)
}

func (r *Repository) weekly(ctx context.Context, query, ownerID string) (model.WeeklySchedule, error) {
	var ws model.WeeklySchedule
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return ws, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var p model.Period
		if err := rows.Scan(&weekday, &p.StartMinute, &p.EndMinute); err != nil {
			return ws, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		ws[weekday] = append(ws[weekday], p)
	}
	return ws, rows.Err()
}

// ReplaceUnitWeekday swaps the full period list for one weekday in a single
// transaction, so readers never observe a half-written day.
func (r *Repository) ReplaceUnitWeekday(ctx context.Context, unitID string, weekday int, periods []model.Period) error {
	return r.replaceWeekday(ctx,
		`DELETE FROM unit_schedule_periods WHERE unit_id = $1 AND weekday = $2`,
		`INSERT INTO unit_schedule_periods (unit_id, weekday, start_minute, end_minute) VALUES ($1, $2, $3, $4)`,
		unitID, weekday, periods)
}

func (r *Repository) ReplaceAgentWeekday(ctx context.Context, agentID string, weekday int, periods []model.Period) error {
	return r.replaceWeekday(ctx,
		`DELETE FROM agent_schedule_periods WHERE agent_id = $1 AND weekday = $2`,
		`INSERT INTO agent_schedule_periods (agent_id, weekday, start_minute, end_minute) VALUES ($1, $2, $3, $4)`,
		agentID, weekday, periods)
}

func (r *Repository) replaceWeekday(ctx context.Context, deleteSQL, insertSQL, ownerID string, weekday int, periods []model.Period) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteSQL, ownerID, weekday); err != nil {
		return err
	}
	for _, p := range periods {
		if _, err := tx.Exec(ctx, insertSQL, ownerID, weekday, p.StartMinute, p.EndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) CreateUnitException(ctx context.Context, unitID string, exc model.CalendarException) (string, error) {
	return r.createException(ctx, `
		INSERT INTO unit_exceptions (id, unit_id, date_start, date_end, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, unitID, exc)
}

func (r *Repository) CreateAgentException(ctx context.Context, agentID string, exc model.CalendarException) (string, error) {
	return r.createException(ctx, `
		INSERT INTO agent_exceptions (id, agent_id, date_start, date_end, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, agentID, exc)
}

func (r *Repository) createException(ctx context.Context, query, ownerID string, exc model.CalendarException) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, query, id, ownerID,
		exc.DateStart, exc.DateEnd, exc.StartMinute, exc.EndMinute, exc.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UnitExceptionsForDate returns unit exceptions whose date range contains the
// given date.
func (r *Repository) UnitExceptionsForDate(ctx context.Context, unitID string, date time.Time) ([]model.CalendarException, error) {
	return r.exceptions(ctx, `
		SELECT id::text, date_start, date_end, start_minute, end_minute, reason, created_at
		FROM unit_exceptions
		WHERE unit_id = $1 AND date_start <= $2 AND date_end >= $2
		ORDER BY date_start, created_at
	`, unitID, date)
}

func (r *Repository) AgentExceptionsForDate(ctx context.Context, agentID string, date time.Time) ([]model.CalendarException, error) {
	return r.exceptions(ctx, `
		SELECT id::text, date_start, date_end, start_minute, end_minute, reason, created_at
		FROM agent_exceptions
		WHERE agent_id = $1 AND date_start <= $2 AND date_end >= $2
		ORDER BY date_start, created_at
	`, agentID, date)
}

func (r *Repository) ListUnitExceptions(ctx context.Context, unitID string, from, to time.Time) ([]model.CalendarException, error) {
	return r.exceptions(ctx, `
		SELECT id::text, date_start, date_end, start_minute, end_minute, reason, created_at
		FROM unit_exceptions
		WHERE unit_id = $1 AND date_end >= $2 AND date_start <= $3
		ORDER BY date_start, created_at
	`, unitID, from, to)
}

func (r *Repository) ListAgentExceptions(ctx context.Context, agentID string, from, to time.Time) ([]model.CalendarException, error) {
	return r.exceptions(ctx, `
		SELECT id::text, date_start, date_end, start_minute, end_minute, reason, created_at
		FROM agent_exceptions
		WHERE agent_id = $1 AND date_end >= $2 AND date_start <= $3
		ORDER BY date_start, created_at
	`, agentID, from, to)
}

func (r *Repository) exceptions(ctx context.Context, query string, args ...any) ([]model.CalendarException, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarException
	for rows.Next() {
		var exc model.CalendarException
		if err := rows.Scan(&exc.ID, &exc.DateStart, &exc.DateEnd, &exc.StartMinute, &exc.EndMinute, &exc.Reason, &exc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, exc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteUnitException(ctx context.Context, unitID, exceptionID string) error {
	return r.deleteException(ctx, `
		DELETE FROM unit_exceptions WHERE unit_id = $1 AND id = $2
	`, unitID, exceptionID)
}

func (r *Repository) DeleteAgentException(ctx context.Context, agentID, exceptionID string) error {
	return r.deleteException(ctx, `
		DELETE FROM agent_exceptions WHERE agent_id = $1 AND id = $2
	`, agentID, exceptionID)
}

func (r *Repository) deleteException(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
