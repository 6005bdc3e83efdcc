package model

import "time"

const minutesPerDay = 24 * 60

// Period is a half-open [StartMinute,EndMinute) range of minutes from
// midnight in the unit's timezone.
type Period struct {
	StartMinute int
	EndMinute   int
}

func (p Period) Valid() bool {
	return p.StartMinute >= 0 && p.EndMinute <= minutesPerDay && p.StartMinute < p.EndMinute
}

// WeeklySchedule holds the open periods per weekday (0=Sunday..6=Saturday).
// A day with no periods is closed.
type WeeklySchedule [7][]Period

func (ws WeeklySchedule) Periods(day time.Weekday) []Period {
	return ws[int(day)]
}

func (ws WeeklySchedule) IsEmpty() bool {
	for _, periods := range ws {
		if len(periods) > 0 {
			return false
		}
	}
	return true
}

// CalendarException blocks an inclusive date range. With time bounds set it
// blocks [StartMinute,EndMinute) on each covered day; without them it blocks
// the whole day. Both bounds are set or both are nil.
type CalendarException struct {
	ID          string
	DateStart   time.Time
	DateEnd     time.Time
	StartMinute *int
	EndMinute   *int
	Reason      string
	CreatedAt   time.Time
}

func (e CalendarException) FullDay() bool {
	return e.StartMinute == nil || e.EndMinute == nil
}

// Covers reports whether the exception applies to the given calendar date.
// Only the date components are compared.
func (e CalendarException) Covers(date time.Time) bool {
	d := civil(date)
	return !d.Before(civil(e.DateStart)) && !d.After(civil(e.DateEnd))
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
