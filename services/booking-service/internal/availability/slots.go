package availability

import (
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots returns slot start times within [windowStart, windowEnd)
// where a booking of length duration would not overlap any busy interval.
// Candidates step by the duration itself; when the window tail still fits one
// full-duration slot ending exactly at windowEnd, that final start is emitted
// too. Starts before now are skipped.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	last := windowStart
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		last = t
		if bookable(t, t.Add(duration), busy, now) {
			slots = append(slots, t)
		}
	}
	if tail := windowEnd.Add(-duration); tail.After(last) && bookable(tail, windowEnd, busy, now) {
		slots = append(slots, tail)
	}
	return slots
}

// DaySlots expands the open periods of one calendar day into bookable slot
// starts, in chronological order. The day and now must share loc.
func DaySlots(day time.Time, loc *time.Location, open []model.Period, durationMins int, busy []Interval, now time.Time) []time.Time {
	if durationMins <= 0 {
		return nil
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	duration := time.Duration(durationMins) * time.Minute

	var slots []time.Time
	for _, p := range open {
		start := midnight.Add(time.Duration(p.StartMinute) * time.Minute)
		end := midnight.Add(time.Duration(p.EndMinute) * time.Minute)
		slots = append(slots, AvailableSlots(start, end, duration, busy, now)...)
	}
	return slots
}

func bookable(start, end time.Time, busy []Interval, now time.Time) bool {
	if start.Before(now) {
		return false
	}
	return !overlapsAny(start, end, busy)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
