package schedule

import (
	"sort"
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

// OpenIntervals subtracts every exception covering the date from the day's
// weekly periods. Unit-level and agent-level exceptions are equivalent in
// effect: both only remove time, and overlapping exceptions compose by union
// of blocked time. A covering exception without time bounds closes the whole
// day regardless of anything else.
func OpenIntervals(date time.Time, periods []model.Period, unitExc, agentExc []model.CalendarException) []model.Period {
	var blocks []model.Period
	for _, exc := range append(append([]model.CalendarException{}, unitExc...), agentExc...) {
		if !exc.Covers(date) {
			continue
		}
		if exc.FullDay() {
			return nil
		}
		blocks = append(blocks, model.Period{StartMinute: *exc.StartMinute, EndMinute: *exc.EndMinute})
	}

	open := make([]model.Period, 0, len(periods))
	for _, p := range periods {
		if p.Valid() {
			open = append(open, p)
		}
	}
	if len(blocks) == 0 {
		return open
	}

	for _, b := range mergeBlocks(blocks) {
		open = subtract(open, b)
	}
	return open
}

// mergeBlocks sorts blocked ranges and coalesces overlapping or touching
// ones, so each subtraction sweeps a disjoint cut.
func mergeBlocks(blocks []model.Period) []model.Period {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].StartMinute != blocks[j].StartMinute {
			return blocks[i].StartMinute < blocks[j].StartMinute
		}
		return blocks[i].EndMinute < blocks[j].EndMinute
	})

	merged := make([]model.Period, 0, len(blocks))
	for _, b := range blocks {
		if len(merged) == 0 || b.StartMinute > merged[len(merged)-1].EndMinute {
			merged = append(merged, b)
			continue
		}
		last := &merged[len(merged)-1]
		if b.EndMinute > last.EndMinute {
			last.EndMinute = b.EndMinute
		}
	}
	return merged
}

// subtract removes the cut from every period it intersects, splitting a
// period in two when the cut is interior.
func subtract(periods []model.Period, cut model.Period) []model.Period {
	var out []model.Period
	for _, p := range periods {
		if cut.EndMinute <= p.StartMinute || cut.StartMinute >= p.EndMinute {
			out = append(out, p)
			continue
		}
		if cut.StartMinute > p.StartMinute {
			out = append(out, model.Period{StartMinute: p.StartMinute, EndMinute: cut.StartMinute})
		}
		if cut.EndMinute < p.EndMinute {
			out = append(out, model.Period{StartMinute: cut.EndMinute, EndMinute: p.EndMinute})
		}
	}
	return out
}
