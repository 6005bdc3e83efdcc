package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-oliynyk/salonhub/services/booking-service/internal/clock"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/outbox"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/schedule"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/storage"
)

// bookingGrace tolerates the delay between fetching a slot and submitting
// it; a start this far in the past is still accepted.
const bookingGrace = 2 * time.Minute

type BookingHandler struct {
	store    DirectoryStore
	bookings AppointmentStore
	outbox   OutboxStore
	clock    clock.Clock
	logger   *slog.Logger
}

func NewBookingHandler(store DirectoryStore, bookings AppointmentStore, outboxRepo OutboxStore, clk clock.Clock, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		store:    store,
		bookings: bookings,
		outbox:   outboxRepo,
		clock:    clk,
		logger:   logger,
	}
}

type bookRequest struct {
	UnitID      string `json:"unit_id"`
	AgentID     string `json:"agent_id"`
	ServiceID   string `json:"service_id"`
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	StartAt     string `json:"start_at"`
}

type appointmentResponse struct {
	ID          string     `json:"id"`
	UnitID      string     `json:"unit_id"`
	AgentID     string     `json:"agent_id"`
	ClientName  string     `json:"client_name"`
	ClientEmail string     `json:"client_email"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       time.Time  `json:"end_at"`
	Status      string     `json:"status"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Book handles POST /api/v1/public/book. The availability check here is
// advisory; the database exclusion constraint is what actually prevents two
// clients from taking the same interval.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.UnitID == "" || req.AgentID == "" || req.ServiceID == "" || req.ClientName == "" || req.ClientEmail == "" || req.StartAt == "" {
		http.Error(w, "unit_id, agent_id, service_id, client_name, client_email and start_at are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	unit, agent, err := lookupUnitAgent(ctx, w, h.store, req.UnitID, req.AgentID)
	if err != nil {
		return
	}

	durationMins, err := resolveDuration(ctx, h.store, unit.ID, req.ServiceID, "")
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load service", http.StatusInternalServerError)
		return
	}

	loc, err := time.LoadLocation(unit.Timezone)
	if err != nil {
		http.Error(w, "unit schedule misconfigured", http.StatusUnprocessableEntity)
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		http.Error(w, "start_at must be RFC3339", http.StatusBadRequest)
		return
	}
	startAt = startAt.In(loc)
	endAt := startAt.Add(time.Duration(durationMins) * time.Minute)

	if h.clock.Now().In(loc).Sub(startAt) > bookingGrace {
		http.Error(w, "start_at is in the past", http.StatusUnprocessableEntity)
		return
	}

	open, err := openPeriods(ctx, h.store, unit, agent, startAt)
	if err != nil {
		if errors.Is(err, schedule.ErrNotConfigured) {
			http.Error(w, "schedule misconfigured", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("failed to resolve schedule", "unit_id", unit.ID, "agent_id", agent.ID, "err", err)
		http.Error(w, "failed to resolve schedule", http.StatusInternalServerError)
		return
	}
	if !withinOpenPeriods(open, loc, startAt, endAt) {
		http.Error(w, "requested time is outside working hours", http.StatusUnprocessableEntity)
		return
	}

	appt := model.Appointment{
		UnitID:      unit.ID,
		AgentID:     agent.ID,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		StartAt:     startAt,
		EndAt:       endAt,
		Status:      model.AppointmentApproved,
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.bookings.Create(ctx, tx, &appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot is no longer available", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create appointment", "unit_id", unit.ID, "agent_id", agent.ID, "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}
	appt.ID = id

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"unit_id":        appt.UnitID,
		"unit_name":      unit.Name,
		"unit_timezone":  unit.Timezone,
		"agent_id":       appt.AgentID,
		"service_id":     req.ServiceID,
		"client_id":      appt.ClientID,
		"client_name":    appt.ClientName,
		"client_email":   appt.ClientEmail,
		"client_phone":   appt.ClientPhone,
		"start_at":       appt.StartAt.UTC(),
		"end_at":         appt.EndAt.UTC(),
		"booked_at":      h.clock.Now().UTC(),
	})
	if err != nil {
		http.Error(w, "failed to marshal booking event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue booking event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot is no longer available", http.StatusConflict)
			return
		}
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// Cancel handles POST /api/v1/staff/appointments/cancel. Cancelling an
// already cancelled appointment is a no-op and does not emit a second event.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.bookings.GetForUpdate(ctx, tx, claims.UnitID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.AppointmentCancelled {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
		return
	}
	if appt.Status != model.AppointmentApproved {
		http.Error(w, "only approved appointments can be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.bookings.Cancel(ctx, tx, claims.UnitID, req.AppointmentID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	appt.Status = model.AppointmentCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = req.Reason

	unitName, unitTimezone := "", ""
	if unit, uerr := h.store.GetUnit(ctx, appt.UnitID); uerr == nil {
		unitName, unitTimezone = unit.Name, unit.Timezone
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"unit_id":        appt.UnitID,
		"unit_name":      unitName,
		"unit_timezone":  unitTimezone,
		"agent_id":       appt.AgentID,
		"client_name":    appt.ClientName,
		"client_email":   appt.ClientEmail,
		"client_phone":   appt.ClientPhone,
		"start_at":       appt.StartAt.UTC(),
		"cancelled_at":   cancelledAt.UTC(),
		"reason":         req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to marshal cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue cancellation event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// UpdateStatus handles POST /api/v1/staff/appointments/status for the
// approved -> completed / no_show transitions. Cancellation has its own
// endpoint because it emits an event and frees the interval.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	status := model.AppointmentStatus(req.Status)
	if req.AppointmentID == "" || (status != model.AppointmentCompleted && status != model.AppointmentNoShow) {
		http.Error(w, "appointment_id and status (completed or no_show) are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.bookings.GetForUpdate(ctx, tx, claims.UnitID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if appt.Status != model.AppointmentApproved {
		http.Error(w, "only approved appointments can change status", http.StatusConflict)
		return
	}

	if err := h.bookings.SetStatus(ctx, tx, claims.UnitID, req.AppointmentID, status); err != nil {
		http.Error(w, "failed to update status", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	appt.Status = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toAppointmentResponse(appt))
}

// List handles GET /api/v1/staff/appointments.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFrom(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	appts, err := h.bookings.ListByUnit(r.Context(), claims.UnitID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	out := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		out = append(out, toAppointmentResponse(appt))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          appt.ID,
		UnitID:      appt.UnitID,
		AgentID:     appt.AgentID,
		ClientName:  appt.ClientName,
		ClientEmail: appt.ClientEmail,
		StartAt:     appt.StartAt,
		EndAt:       appt.EndAt,
		Status:      string(appt.Status),
		CancelledAt: appt.CancelledAt,
	}
}

// withinOpenPeriods reports whether [startAt,endAt) fits entirely inside one
// open period of startAt's calendar day.
func withinOpenPeriods(open []model.Period, loc *time.Location, startAt, endAt time.Time) bool {
	midnight := time.Date(startAt.Year(), startAt.Month(), startAt.Day(), 0, 0, 0, 0, loc)
	startMin := int(startAt.Sub(midnight) / time.Minute)
	endMin := int(endAt.Sub(midnight) / time.Minute)
	for _, p := range open {
		if startMin >= p.StartMinute && endMin <= p.EndMinute {
			return true
		}
	}
	return false
}
