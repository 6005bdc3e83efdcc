package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/availability"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/clock"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/schedule"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/storage"
)

type AvailabilityHandler struct {
	store  DirectoryStore
	busy   BusyStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewAvailabilityHandler(store DirectoryStore, busy BusyStore, clk clock.Clock, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{store: store, busy: busy, clock: clk, logger: logger}
}

type slotsResponse struct {
	UnitID          string   `json:"unit_id"`
	AgentID         string   `json:"agent_id"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Slots           []string `json:"slots"`
}

// Slots handles GET /api/v1/public/slots. Either service_id or
// duration_minutes selects the slot length.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	unitID := q.Get("unit_id")
	agentID := q.Get("agent_id")
	dateStr := q.Get("date")
	if unitID == "" || agentID == "" || dateStr == "" {
		http.Error(w, "unit_id, agent_id and date are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	unit, agent, err := lookupUnitAgent(ctx, w, h.store, unitID, agentID)
	if err != nil {
		return
	}

	durationMins, err := resolveDuration(ctx, h.store, unit.ID, q.Get("service_id"), q.Get("duration_minutes"))
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			http.Error(w, "service not found", http.StatusNotFound)
		case errors.Is(err, errDurationRequired) || errors.Is(err, errDurationInvalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to load service duration", "unit_id", unit.ID, "err", err)
			http.Error(w, "failed to load service", http.StatusInternalServerError)
		}
		return
	}

	loc, err := time.LoadLocation(unit.Timezone)
	if err != nil {
		h.logger.Error("unit has invalid timezone", "unit_id", unit.ID, "timezone", unit.Timezone)
		http.Error(w, "unit schedule misconfigured", http.StatusUnprocessableEntity)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	open, err := openPeriods(ctx, h.store, unit, agent, day)
	if err != nil {
		if errors.Is(err, schedule.ErrNotConfigured) {
			http.Error(w, "schedule misconfigured", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("failed to resolve schedule", "unit_id", unit.ID, "agent_id", agent.ID, "err", err)
		http.Error(w, "failed to resolve schedule", http.StatusInternalServerError)
		return
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	busy, err := h.busy.ActiveIntervals(ctx, agent.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Error("failed to load busy intervals", "agent_id", agent.ID, "err", err)
		http.Error(w, "failed to load appointments", http.StatusInternalServerError)
		return
	}

	now := h.clock.Now().In(loc)
	slots := availability.DaySlots(day, loc, open, durationMins, busy, now)

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format(time.RFC3339))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(slotsResponse{
		UnitID:          unit.ID,
		AgentID:         agent.ID,
		Date:            dateStr,
		DurationMinutes: durationMins,
		Slots:           out,
	})
}

// lookupUnitAgent loads both records and writes the error response itself on
// failure. The returned error only signals the caller to stop.
func lookupUnitAgent(ctx context.Context, w http.ResponseWriter, store DirectoryStore, unitID, agentID string) (model.Unit, model.Agent, error) {
	unit, err := store.GetUnit(ctx, unitID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "unit not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to load unit", http.StatusInternalServerError)
		}
		return model.Unit{}, model.Agent{}, err
	}
	if !unit.Bookable() {
		http.Error(w, "unit is not accepting bookings", http.StatusForbidden)
		return model.Unit{}, model.Agent{}, fmt.Errorf("unit %s not bookable", unitID)
	}

	agent, err := store.GetAgent(ctx, agentID)
	if err != nil || agent.UnitID != unit.ID {
		if err != nil && !storage.IsNotFound(err) {
			http.Error(w, "failed to load agent", http.StatusInternalServerError)
			return model.Unit{}, model.Agent{}, err
		}
		http.Error(w, "agent not found", http.StatusNotFound)
		return model.Unit{}, model.Agent{}, fmt.Errorf("agent %s not in unit %s", agentID, unitID)
	}
	return unit, agent, nil
}

var (
	errDurationRequired = errors.New("service_id or duration_minutes is required")
	errDurationInvalid  = errors.New("duration_minutes must be a positive integer")
)

func resolveDuration(ctx context.Context, store DirectoryStore, unitID, serviceID, rawMinutes string) (int, error) {
	if serviceID != "" {
		return store.GetServiceDuration(ctx, unitID, serviceID)
	}
	if rawMinutes == "" {
		return 0, errDurationRequired
	}
	mins, err := strconv.Atoi(rawMinutes)
	if err != nil || mins <= 0 {
		return 0, errDurationInvalid
	}
	return mins, nil
}

// openPeriods resolves the agent's working periods for one date: effective
// weekly template minus every covering exception.
func openPeriods(ctx context.Context, store DirectoryStore, unit model.Unit, agent model.Agent, day time.Time) ([]model.Period, error) {
	unitWeekly, err := store.UnitWeekly(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	var agentWeekly model.WeeklySchedule
	if agent.UsesCustomSchedule {
		if agentWeekly, err = store.AgentWeekly(ctx, agent.ID); err != nil {
			return nil, err
		}
	}
	weekly, err := schedule.EffectiveWeekly(agent, agentWeekly, unitWeekly)
	if err != nil {
		return nil, err
	}

	unitExc, err := store.UnitExceptionsForDate(ctx, unit.ID, day)
	if err != nil {
		return nil, err
	}
	agentExc, err := store.AgentExceptionsForDate(ctx, agent.ID, day)
	if err != nil {
		return nil, err
	}
	return schedule.OpenIntervals(day, weekly.Periods(day.Weekday()), unitExc, agentExc), nil
}
