package schedule

import (
	"testing"
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func minutes(v int) *int {
	return &v
}

func TestOpenIntervals_NoExceptions(t *testing.T) {
	periods := []model.Period{{StartMinute: 480, EndMinute: 1080}}
	got := OpenIntervals(date(2026, 3, 2), periods, nil, nil)
	if len(got) != 1 || got[0] != periods[0] {
		t.Fatalf("expected periods unchanged, got %+v", got)
	}
}

func TestOpenIntervals_FullDayExceptionClosesDay(t *testing.T) {
	periods := []model.Period{{StartMinute: 480, EndMinute: 1080}}
	exc := []model.CalendarException{{
		DateStart: date(2026, 3, 1),
		DateEnd:   date(2026, 3, 3),
	}}
	got := OpenIntervals(date(2026, 3, 2), periods, exc, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty day, got %+v", got)
	}
}

func TestOpenIntervals_TimeBoundExceptionSplitsPeriod(t *testing.T) {
	// Weekly [08:00,18:00) minus agent block [12:00,13:00) leaves
	// [08:00,12:00) and [13:00,18:00).
	periods := []model.Period{{StartMinute: 480, EndMinute: 1080}}
	exc := []model.CalendarException{{
		DateStart:   date(2026, 3, 2),
		DateEnd:     date(2026, 3, 2),
		StartMinute: minutes(720),
		EndMinute:   minutes(780),
	}}
	got := OpenIntervals(date(2026, 3, 2), periods, nil, exc)
	if len(got) != 2 {
		t.Fatalf("expected 2 intervals, got %+v", got)
	}
	if got[0] != (model.Period{StartMinute: 480, EndMinute: 720}) {
		t.Fatalf("unexpected first interval %+v", got[0])
	}
	if got[1] != (model.Period{StartMinute: 780, EndMinute: 1080}) {
		t.Fatalf("unexpected second interval %+v", got[1])
	}
}

func TestOpenIntervals_OutOfRangeExceptionIgnored(t *testing.T) {
	periods := []model.Period{{StartMinute: 480, EndMinute: 1080}}
	exc := []model.CalendarException{{
		DateStart: date(2026, 3, 5),
		DateEnd:   date(2026, 3, 6),
	}}
	got := OpenIntervals(date(2026, 3, 2), periods, exc, nil)
	if len(got) != 1 {
		t.Fatalf("expected periods unchanged, got %+v", got)
	}
}

func TestOpenIntervals_UnitAndAgentBlocksCompose(t *testing.T) {
	// Overlapping unit and agent blocks subtract as a union, not by
	// overriding each other.
	periods := []model.Period{{StartMinute: 480, EndMinute: 1080}}
	unitExc := []model.CalendarException{{
		DateStart:   date(2026, 3, 2),
		DateEnd:     date(2026, 3, 2),
		StartMinute: minutes(600),
		EndMinute:   minutes(720),
	}}
	agentExc := []model.CalendarException{{
		DateStart:   date(2026, 3, 2),
		DateEnd:     date(2026, 3, 2),
		StartMinute: minutes(660),
		EndMinute:   minutes(840),
	}}
	got := OpenIntervals(date(2026, 3, 2), periods, unitExc, agentExc)
	if len(got) != 2 {
		t.Fatalf("expected 2 intervals, got %+v", got)
	}
	if got[0] != (model.Period{StartMinute: 480, EndMinute: 600}) {
		t.Fatalf("unexpected first interval %+v", got[0])
	}
	if got[1] != (model.Period{StartMinute: 840, EndMinute: 1080}) {
		t.Fatalf("unexpected second interval %+v", got[1])
	}
}

func TestOpenIntervals_CutCoveringWholePeriod(t *testing.T) {
	periods := []model.Period{
		{StartMinute: 480, EndMinute: 600},
		{StartMinute: 840, EndMinute: 1080},
	}
	exc := []model.CalendarException{{
		DateStart:   date(2026, 3, 2),
		DateEnd:     date(2026, 3, 2),
		StartMinute: minutes(420),
		EndMinute:   minutes(660),
	}}
	got := OpenIntervals(date(2026, 3, 2), periods, exc, nil)
	if len(got) != 1 || got[0] != (model.Period{StartMinute: 840, EndMinute: 1080}) {
		t.Fatalf("expected only the afternoon period, got %+v", got)
	}
}
