package model

import "time"

type UnitStatus string

const (
	UnitActive  UnitStatus = "active"
	UnitBlocked UnitStatus = "blocked"
	UnitDeleted UnitStatus = "deleted"
)

// Unit is a tenant location: it owns agents, a default weekly schedule, and
// unit-level calendar exceptions.
type Unit struct {
	ID        string
	Name      string
	Timezone  string
	Status    UnitStatus
	CreatedAt time.Time
}

func (u Unit) Bookable() bool {
	return u.Status == UnitActive
}

// Agent is a bookable service provider. When UsesCustomSchedule is set and
// the agent has stored weekday entries, those replace the unit default
// entirely; there is no per-day merge.
type Agent struct {
	ID                 string
	UnitID             string
	Name               string
	UsesCustomSchedule bool
	CreatedAt          time.Time
}

// UnitService is an offered service; its duration drives slot generation.
type UnitService struct {
	ID           string
	UnitID       string
	Name         string
	DurationMins int
	Price        string
	CreatedAt    time.Time
}

type AppointmentStatus string

const (
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Appointment occupies [StartAt,EndAt) for its agent unless cancelled.
// Rows are never deleted; cancellation is a status transition.
type Appointment struct {
	ID           string
	UnitID       string
	AgentID      string
	ClientID     string
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	StartAt      time.Time
	EndAt        time.Time
	Status       AppointmentStatus
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}
