package availability

import (
	"testing"
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

func TestAvailableSlots_DurationStep(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(11*time.Hour), time.Hour, nil, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9*time.Hour)) || !slots[1].Equal(day.Add(10*time.Hour)) {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestAvailableSlots_TailSlotFitsExactly(t *testing.T) {
	// Window [08:00,09:50) with 60-minute duration: aligned candidate 08:00,
	// then 09:00 no longer fits, but 08:50 ends exactly at the window end.
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	slots := AvailableSlots(day.Add(8*time.Hour), day.Add(9*time.Hour+50*time.Minute), time.Hour, nil, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %v", slots)
	}
	if !slots[0].Equal(day.Add(8 * time.Hour)) {
		t.Fatalf("expected first slot 08:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(8*time.Hour + 50*time.Minute)) {
		t.Fatalf("expected second slot 08:50, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestAvailableSlots_SkipsBusy(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	busy := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)},
	}

	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(12*time.Hour), time.Hour, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %v", slots)
	}
	if !slots[0].Equal(day.Add(9*time.Hour)) || !slots[1].Equal(day.Add(11*time.Hour)) {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestAvailableSlots_PartialOverlapBlocks(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	busy := []Interval{
		{Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(10*time.Hour + 30*time.Minute)},
	}

	// 09:00 and 10:00 both intersect the busy interval; 11:00 does not.
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(12*time.Hour), time.Hour, busy, day)
	if len(slots) != 1 || !slots[0].Equal(day.Add(11*time.Hour)) {
		t.Fatalf("expected only 11:00, got %v", slots)
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	now := day.Add(9*time.Hour + 31*time.Minute)
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(12*time.Hour), time.Hour, nil, now)
	// 09:00 started already; 10:00 and 11:00 remain.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %v", slots)
	}
	if !slots[0].Equal(day.Add(10 * time.Hour)) {
		t.Fatalf("expected first slot 10:00, got %s", slots[0].Format(time.RFC3339))
	}
}

func TestAvailableSlots_WindowTooShort(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	if slots := AvailableSlots(day.Add(9*time.Hour), day.Add(9*time.Hour+30*time.Minute), time.Hour, nil, day); slots != nil {
		t.Fatalf("expected no slots, got %v", slots)
	}
	if slots := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), 0, nil, day); slots != nil {
		t.Fatalf("expected no slots for zero duration, got %v", slots)
	}
}

func TestDaySlots_MultiplePeriodsChronological(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	open := []model.Period{
		{StartMinute: 540, EndMinute: 660},  // 09:00-11:00
		{StartMinute: 840, EndMinute: 1020}, // 14:00-17:00
	}

	slots := DaySlots(day, loc, open, 60, nil, day)
	want := []time.Time{
		day.Add(9 * time.Hour),
		day.Add(10 * time.Hour),
		day.Add(14 * time.Hour),
		day.Add(15 * time.Hour),
		day.Add(16 * time.Hour),
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), slots)
	}
	for i := range want {
		if !slots[i].Equal(want[i]) {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], slots[i])
		}
	}
}

func TestDaySlots_Deterministic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	open := []model.Period{{StartMinute: 480, EndMinute: 720}}
	busy := []Interval{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}

	first := DaySlots(day, loc, open, 30, busy, day)
	second := DaySlots(day, loc, open, 30, busy, day)
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("expected identical non-empty outputs, got %v vs %v", first, second)
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("outputs diverge at %d", i)
		}
	}
}
