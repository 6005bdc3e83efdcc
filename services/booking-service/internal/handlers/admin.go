package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/m-oliynyk/salonhub/libs/auth"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/storage"
)

// AdminHandler covers the staff-facing directory: units, agents, services,
// weekly schedules, and calendar exceptions.
type AdminHandler struct {
	repo     *storage.Repository
	adminKey string
	logger   *slog.Logger
}

func NewAdminHandler(repo *storage.Repository, adminKey string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, adminKey: adminKey, logger: logger}
}

type createUnitRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// CreateUnit handles POST /api/v1/admin/units. It is platform-level, guarded
// by a shared key header rather than a staff token.
func (h *AdminHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := r.Header.Get("X-Admin-Key")
	if h.adminKey == "" || key != h.adminKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Timezone == "" {
		http.Error(w, "name and timezone are required", http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "timezone must be an IANA zone name", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateUnit(r.Context(), req.Name, req.Timezone)
	if err != nil {
		http.Error(w, "failed to create unit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type unitStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) UnitStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req unitStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	status := model.UnitStatus(req.Status)
	if status != model.UnitActive && status != model.UnitBlocked && status != model.UnitDeleted {
		http.Error(w, "status must be active, blocked or deleted", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetUnitStatus(r.Context(), claims.UnitID, status); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "unit not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update unit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAgentRequest struct {
	Name               string `json:"name"`
	UsesCustomSchedule bool   `json:"uses_custom_schedule"`
}

// Agents handles POST (create) and GET (list) on /api/v1/staff/agents.
func (h *AdminHandler) Agents(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		id, err := h.repo.CreateAgent(r.Context(), claims.UnitID, req.Name, req.UsesCustomSchedule)
		if err != nil {
			http.Error(w, "failed to create agent", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	case http.MethodGet:
		agents, err := h.repo.ListAgents(r.Context(), claims.UnitID, 0)
		if err != nil {
			http.Error(w, "failed to list agents", http.StatusInternalServerError)
			return
		}
		out := make([]agentPayload, 0, len(agents))
		for _, a := range agents {
			out = append(out, agentPayload{
				ID:                 a.ID,
				Name:               a.Name,
				UsesCustomSchedule: a.UsesCustomSchedule,
				CreatedAt:          a.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type agentPayload struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	UsesCustomSchedule bool      `json:"uses_custom_schedule"`
	CreatedAt          time.Time `json:"created_at"`
}

type servicePayload struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	CreatedAt       time.Time `json:"created_at"`
}

type exceptionPayload struct {
	ID          string `json:"id"`
	DateStart   string `json:"date_start"`
	DateEnd     string `json:"date_end"`
	StartMinute *int   `json:"start_minute,omitempty"`
	EndMinute   *int   `json:"end_minute,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

// Services handles POST (create) and GET (list) on /api/v1/staff/services.
func (h *AdminHandler) Services(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createServiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "name and positive duration_minutes are required", http.StatusBadRequest)
			return
		}
		if req.Price == "" {
			req.Price = "0"
		}
		id, err := h.repo.CreateService(r.Context(), claims.UnitID, req.Name, req.DurationMinutes, req.Price)
		if err != nil {
			http.Error(w, "failed to create service", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	case http.MethodGet:
		services, err := h.repo.ListServices(r.Context(), claims.UnitID, 0)
		if err != nil {
			http.Error(w, "failed to list services", http.StatusInternalServerError)
			return
		}
		out := make([]servicePayload, 0, len(services))
		for _, s := range services {
			out = append(out, servicePayload{
				ID:              s.ID,
				Name:            s.Name,
				DurationMinutes: s.DurationMins,
				Price:           s.Price,
				CreatedAt:       s.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type periodPayload struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type replaceScheduleRequest struct {
	Scope   string          `json:"scope"`
	AgentID string          `json:"agent_id"`
	Weekday int             `json:"weekday"`
	Periods []periodPayload `json:"periods"`
}

// Schedule handles PUT (replace one weekday) and GET (read the weekly
// template) on /api/v1/staff/schedule. Scope is "unit" or "agent".
func (h *AdminHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req replaceScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
			return
		}
		periods, ok := toPeriods(req.Periods)
		if !ok {
			http.Error(w, "periods must be valid, sorted and non-overlapping", http.StatusBadRequest)
			return
		}

		var err error
		switch req.Scope {
		case "unit":
			err = h.repo.ReplaceUnitWeekday(r.Context(), claims.UnitID, req.Weekday, periods)
		case "agent":
			if !h.agentInUnit(w, r, claims, req.AgentID) {
				return
			}
			err = h.repo.ReplaceAgentWeekday(r.Context(), req.AgentID, req.Weekday, periods)
		default:
			http.Error(w, "scope must be unit or agent", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to replace schedule", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		scope := r.URL.Query().Get("scope")
		agentID := r.URL.Query().Get("agent_id")

		var weekly model.WeeklySchedule
		var err error
		switch scope {
		case "unit", "":
			weekly, err = h.repo.UnitWeekly(r.Context(), claims.UnitID)
		case "agent":
			if !h.agentInUnit(w, r, claims, agentID) {
				return
			}
			weekly, err = h.repo.AgentWeekly(r.Context(), agentID)
		default:
			http.Error(w, "scope must be unit or agent", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to load schedule", http.StatusInternalServerError)
			return
		}

		out := make([][]periodPayload, 7)
		for day := 0; day < 7; day++ {
			out[day] = make([]periodPayload, 0, len(weekly[day]))
			for _, p := range weekly[day] {
				out[day] = append(out[day], periodPayload{StartMinute: p.StartMinute, EndMinute: p.EndMinute})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"weekdays": out})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type exceptionRequest struct {
	Scope       string `json:"scope"`
	AgentID     string `json:"agent_id"`
	DateStart   string `json:"date_start"`
	DateEnd     string `json:"date_end"`
	StartMinute *int   `json:"start_minute"`
	EndMinute   *int   `json:"end_minute"`
	Reason      string `json:"reason"`
}

// Exceptions handles POST (create), GET (list) and DELETE on
// /api/v1/staff/exceptions.
func (h *AdminHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.createException(w, r, claims)
	case http.MethodGet:
		h.listExceptions(w, r, claims)
	case http.MethodDelete:
		h.deleteException(w, r, claims)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) createException(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	dateStart, err1 := time.Parse("2006-01-02", req.DateStart)
	dateEnd, err2 := time.Parse("2006-01-02", req.DateEnd)
	if err1 != nil || err2 != nil || dateEnd.Before(dateStart) {
		http.Error(w, "date_start and date_end must be YYYY-MM-DD with date_start <= date_end", http.StatusBadRequest)
		return
	}
	if (req.StartMinute == nil) != (req.EndMinute == nil) {
		http.Error(w, "start_minute and end_minute must be set together", http.StatusBadRequest)
		return
	}
	if req.StartMinute != nil {
		p := model.Period{StartMinute: *req.StartMinute, EndMinute: *req.EndMinute}
		if !p.Valid() {
			http.Error(w, "start_minute and end_minute must form a valid range", http.StatusBadRequest)
			return
		}
	}

	exc := model.CalendarException{
		DateStart:   dateStart,
		DateEnd:     dateEnd,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Reason:      req.Reason,
	}

	var id string
	var err error
	switch req.Scope {
	case "unit":
		id, err = h.repo.CreateUnitException(r.Context(), claims.UnitID, exc)
	case "agent":
		if !h.agentInUnit(w, r, claims, req.AgentID) {
			return
		}
		id, err = h.repo.CreateAgentException(r.Context(), req.AgentID, exc)
	default:
		http.Error(w, "scope must be unit or agent", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "failed to create exception", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *AdminHandler) listExceptions(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	q := r.URL.Query()
	from, err1 := time.Parse("2006-01-02", q.Get("from"))
	to, err2 := time.Parse("2006-01-02", q.Get("to"))
	if err1 != nil || err2 != nil {
		http.Error(w, "from and to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var excs []model.CalendarException
	var err error
	switch q.Get("scope") {
	case "unit", "":
		excs, err = h.repo.ListUnitExceptions(r.Context(), claims.UnitID, from, to)
	case "agent":
		agentID := q.Get("agent_id")
		if !h.agentInUnit(w, r, claims, agentID) {
			return
		}
		excs, err = h.repo.ListAgentExceptions(r.Context(), agentID, from, to)
	default:
		http.Error(w, "scope must be unit or agent", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "failed to list exceptions", http.StatusInternalServerError)
		return
	}

	out := make([]exceptionPayload, 0, len(excs))
	for _, exc := range excs {
		out = append(out, exceptionPayload{
			ID:          exc.ID,
			DateStart:   exc.DateStart.Format("2006-01-02"),
			DateEnd:     exc.DateEnd.Format("2006-01-02"),
			StartMinute: exc.StartMinute,
			EndMinute:   exc.EndMinute,
			Reason:      exc.Reason,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) deleteException(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req struct {
		Scope       string `json:"scope"`
		AgentID     string `json:"agent_id"`
		ExceptionID string `json:"exception_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ExceptionID == "" {
		http.Error(w, "exception_id is required", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Scope {
	case "unit":
		err = h.repo.DeleteUnitException(r.Context(), claims.UnitID, req.ExceptionID)
	case "agent":
		if !h.agentInUnit(w, r, claims, req.AgentID) {
			return
		}
		err = h.repo.DeleteAgentException(r.Context(), req.AgentID, req.ExceptionID)
	default:
		http.Error(w, "scope must be unit or agent", http.StatusBadRequest)
		return
	}
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "exception not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete exception", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// agentInUnit verifies the agent belongs to the caller's unit and writes the
// error response itself when it does not.
func (h *AdminHandler) agentInUnit(w http.ResponseWriter, r *http.Request, claims *auth.Claims, agentID string) bool {
	if agentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return false
	}
	agent, err := h.repo.GetAgent(r.Context(), agentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return false
		}
		http.Error(w, "failed to load agent", http.StatusInternalServerError)
		return false
	}
	if agent.UnitID != claims.UnitID {
		http.Error(w, "agent not found", http.StatusNotFound)
		return false
	}
	return true
}

func toPeriods(raw []periodPayload) ([]model.Period, bool) {
	periods := make([]model.Period, 0, len(raw))
	for i, p := range raw {
		mp := model.Period{StartMinute: p.StartMinute, EndMinute: p.EndMinute}
		if !mp.Valid() {
			return nil, false
		}
		if i > 0 && mp.StartMinute < periods[i-1].EndMinute {
			return nil, false
		}
		periods = append(periods, mp)
	}
	return periods, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
