package schedule

import (
	"fmt"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
)

// ErrNotConfigured marks schedule data that is malformed rather than merely
// absent. Absent rows render as closed days and are not an error.
var ErrNotConfigured = fmt.Errorf("schedule not configured")

// EffectiveWeekly picks the weekly template the agent actually works: the
// agent's own schedule when the custom flag is set and at least one weekday
// entry exists, the unit default otherwise. The two templates are never
// merged per day.
func EffectiveWeekly(agent model.Agent, agentWeekly, unitWeekly model.WeeklySchedule) (model.WeeklySchedule, error) {
	if agent.UsesCustomSchedule && !agentWeekly.IsEmpty() {
		if err := validateWeekly(agentWeekly); err != nil {
			return model.WeeklySchedule{}, fmt.Errorf("agent %s: %w", agent.ID, err)
		}
		return agentWeekly, nil
	}
	if err := validateWeekly(unitWeekly); err != nil {
		return model.WeeklySchedule{}, fmt.Errorf("unit %s: %w", agent.UnitID, err)
	}
	return unitWeekly, nil
}

func validateWeekly(ws model.WeeklySchedule) error {
	for day, periods := range ws {
		for i, p := range periods {
			if !p.Valid() {
				return fmt.Errorf("%w: weekday %d period [%d,%d)", ErrNotConfigured, day, p.StartMinute, p.EndMinute)
			}
			if i > 0 && p.StartMinute < periods[i-1].EndMinute {
				return fmt.Errorf("%w: weekday %d has overlapping periods", ErrNotConfigured, day)
			}
		}
	}
	return nil
}
