package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/availability"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/outbox"
)

// DirectoryStore is the read side of the booking directory: units, agents,
// services, weekly schedules, calendar exceptions. *storage.Repository
// satisfies it.
type DirectoryStore interface {
	GetUnit(ctx context.Context, unitID string) (model.Unit, error)
	GetAgent(ctx context.Context, agentID string) (model.Agent, error)
	GetServiceDuration(ctx context.Context, unitID, serviceID string) (int, error)
	UnitWeekly(ctx context.Context, unitID string) (model.WeeklySchedule, error)
	AgentWeekly(ctx context.Context, agentID string) (model.WeeklySchedule, error)
	UnitExceptionsForDate(ctx context.Context, unitID string, date time.Time) ([]model.CalendarException, error)
	AgentExceptionsForDate(ctx context.Context, agentID string, date time.Time) ([]model.CalendarException, error)
}

// BusyStore reads the intervals already taken by active appointments.
// *storage.BookingRepository satisfies it.
type BusyStore interface {
	ActiveIntervals(ctx context.Context, agentID string, from, to time.Time) ([]availability.Interval, error)
}

// AppointmentStore is the write side for appointments. *storage.BookingRepository
// satisfies it.
type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, unitID, appointmentID string) (model.Appointment, error)
	Cancel(ctx context.Context, tx pgx.Tx, unitID, appointmentID, reason string) (time.Time, error)
	SetStatus(ctx context.Context, tx pgx.Tx, unitID, appointmentID string, status model.AppointmentStatus) error
	ListByUnit(ctx context.Context, unitID string, limit int) ([]model.Appointment, error)
}

// OutboxStore appends events to the transactional outbox inside the caller's
// transaction. *outbox.Repository satisfies it.
type OutboxStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}
