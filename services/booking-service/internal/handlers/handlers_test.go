package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/m-oliynyk/salonhub/libs/auth"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/availability"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/clock"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/model"
	"github.com/m-oliynyk/salonhub/services/booking-service/internal/outbox"
)

type fakeDirectory struct {
	units       map[string]model.Unit
	agents      map[string]model.Agent
	durations   map[string]int
	durationErr error
	unitWeekly  model.WeeklySchedule
	agentWeekly model.WeeklySchedule
	unitExc     []model.CalendarException
	agentExc    []model.CalendarException
}

func (f *fakeDirectory) GetUnit(_ context.Context, unitID string) (model.Unit, error) {
	u, ok := f.units[unitID]
	if !ok {
		return model.Unit{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeDirectory) GetAgent(_ context.Context, agentID string) (model.Agent, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return model.Agent{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeDirectory) GetServiceDuration(_ context.Context, _, serviceID string) (int, error) {
	if f.durationErr != nil {
		return 0, f.durationErr
	}
	d, ok := f.durations[serviceID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeDirectory) UnitWeekly(context.Context, string) (model.WeeklySchedule, error) {
	return f.unitWeekly, nil
}

func (f *fakeDirectory) AgentWeekly(context.Context, string) (model.WeeklySchedule, error) {
	return f.agentWeekly, nil
}

func (f *fakeDirectory) UnitExceptionsForDate(context.Context, string, time.Time) ([]model.CalendarException, error) {
	return f.unitExc, nil
}

func (f *fakeDirectory) AgentExceptionsForDate(context.Context, string, time.Time) ([]model.CalendarException, error) {
	return f.agentExc, nil
}

type fakeBusy struct {
	intervals []availability.Interval
}

func (f *fakeBusy) ActiveIntervals(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return f.intervals, nil
}

// fakeTx satisfies pgx.Tx for the methods the handlers touch; anything else
// panics, which is what a test should do anyway.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeAppointments struct {
	appts       map[string]model.Appointment
	cancelCalls int
}

func (f *fakeAppointments) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeAppointments) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	stored := *appt
	stored.ID = "appt-new"
	f.appts[stored.ID] = stored
	return stored.ID, nil
}

func (f *fakeAppointments) GetForUpdate(_ context.Context, _ pgx.Tx, unitID, id string) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.UnitID != unitID {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, _ pgx.Tx, _, id, reason string) (time.Time, error) {
	f.cancelCalls++
	cancelledAt := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	a := f.appts[id]
	a.Status = model.AppointmentCancelled
	a.CancelledAt = &cancelledAt
	a.CancelReason = reason
	f.appts[id] = a
	return cancelledAt, nil
}

func (f *fakeAppointments) SetStatus(_ context.Context, _ pgx.Tx, _, id string, status model.AppointmentStatus) error {
	a := f.appts[id]
	a.Status = status
	f.appts[id] = a
	return nil
}

func (f *fakeAppointments) ListByUnit(context.Context, string, int) ([]model.Appointment, error) {
	return nil, nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

// staffRequest builds a request carrying verified unit-1 staff claims.
func staffRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	claims := &auth.Claims{Sub: "staff-1", UnitID: "unit-1", Role: "manager"}
	return req.WithContext(context.WithValue(req.Context(), ctxKeyClaims, claims))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDirectory() *fakeDirectory {
	var weekly model.WeeklySchedule
	// Mondays 09:00-12:00.
	weekly[1] = []model.Period{{StartMinute: 540, EndMinute: 720}}
	return &fakeDirectory{
		units: map[string]model.Unit{
			"unit-1": {ID: "unit-1", Name: "Main", Timezone: "UTC", Status: model.UnitActive},
			"unit-2": {ID: "unit-2", Name: "Closed", Timezone: "UTC", Status: model.UnitBlocked},
		},
		agents: map[string]model.Agent{
			"agent-1": {ID: "agent-1", UnitID: "unit-1", Name: "Anna"},
		},
		durations:  map[string]int{"svc-60": 60},
		unitWeekly: weekly,
	}
}

func slotsURL(params string) string {
	return "/api/v1/public/slots?" + params
}

func TestSlotsRequiresParams(t *testing.T) {
	h := NewAvailabilityHandler(testDirectory(), &fakeBusy{}, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1"), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSlotsUnknownUnit(t *testing.T) {
	h := NewAvailabilityHandler(testDirectory(), &fakeBusy{}, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=nope&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSlotsBlockedUnit(t *testing.T) {
	h := NewAvailabilityHandler(testDirectory(), &fakeBusy{}, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-2&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSlotsAgentFromAnotherUnit(t *testing.T) {
	dir := testDirectory()
	dir.agents["agent-x"] = model.Agent{ID: "agent-x", UnitID: "unit-2", Name: "Other"}
	h := NewAvailabilityHandler(dir, &fakeBusy{}, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-x&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSlotsHappyPath(t *testing.T) {
	// 2026-09-07 is a Monday.
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewAvailabilityHandler(testDirectory(), &fakeBusy{}, clock.Fixed(now), testLogger())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	want := []string{
		"2026-09-07T09:00:00Z",
		"2026-09-07T10:00:00Z",
		"2026-09-07T11:00:00Z",
	}
	if len(resp.Slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), resp.Slots)
	}
	for i, s := range want {
		if resp.Slots[i] != s {
			t.Fatalf("slot %d: expected %s, got %s", i, s, resp.Slots[i])
		}
	}
	if resp.DurationMinutes != 60 {
		t.Fatalf("expected duration 60, got %d", resp.DurationMinutes)
	}
}

func TestSlotsFullDayException(t *testing.T) {
	dir := testDirectory()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	dir.unitExc = []model.CalendarException{{DateStart: day, DateEnd: day}}
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewAvailabilityHandler(dir, &fakeBusy{}, clock.Fixed(now), testLogger())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if len(resp.Slots) != 0 {
		t.Fatalf("expected no slots on a closed day, got %v", resp.Slots)
	}
}

func TestSlotsBusyIntervalRemovesSlot(t *testing.T) {
	busy := &fakeBusy{intervals: []availability.Interval{{
		Start: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC),
	}}}
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewAvailabilityHandler(testDirectory(), busy, clock.Fixed(now), testLogger())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	for _, s := range resp.Slots {
		if s == "2026-09-07T10:00:00Z" {
			t.Fatalf("busy slot still offered: %v", resp.Slots)
		}
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %v", resp.Slots)
	}
}

func TestSlotsDurationMinutesFallback(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewAvailabilityHandler(testDirectory(), &fakeBusy{}, clock.Fixed(now), testLogger())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-1&date=2026-09-07&duration_minutes=90"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	// [09:00,12:00) stepping by 90m: 09:00 and 10:30.
	if len(resp.Slots) != 2 || resp.Slots[0] != "2026-09-07T09:00:00Z" || resp.Slots[1] != "2026-09-07T10:30:00Z" {
		t.Fatalf("unexpected slots: %v", resp.Slots)
	}
}

func bookBody(t *testing.T, overrides map[string]string) *strings.Reader {
	t.Helper()
	body := map[string]string{
		"unit_id":      "unit-1",
		"agent_id":     "agent-1",
		"service_id":   "svc-60",
		"client_name":  "Olena",
		"client_email": "olena@example.com",
		"start_at":     "2026-09-07T09:00:00Z",
	}
	for k, v := range overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return strings.NewReader(string(raw))
}

func TestBookRejectsMissingFields(t *testing.T) {
	h := NewBookingHandler(testDirectory(), nil, nil, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t, map[string]string{"client_email": ""})))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBookRejectsPastStart(t *testing.T) {
	now := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	h := NewBookingHandler(testDirectory(), nil, nil, clock.Fixed(now), testLogger())
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t, nil)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestBookRejectsOutsideWorkingHours(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewBookingHandler(testDirectory(), nil, nil, clock.Fixed(now), testLogger())
	rec := httptest.NewRecorder()
	// Monday 11:30 + 60m runs past the 12:00 close.
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t, map[string]string{"start_at": "2026-09-07T11:30:00Z"})))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestBookRejectsUnknownService(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	h := NewBookingHandler(testDirectory(), nil, nil, clock.Fixed(now), testLogger())
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t, map[string]string{"service_id": "nope"})))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequireStaff(t *testing.T) {
	secret := "test-secret"
	mw := RequireStaff(secret)

	var got *auth.Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := auth.SignHS256(auth.Claims{
		Sub:    "staff-1",
		UnitID: "unit-1",
		Role:   "manager",
		Iat:    time.Now().Unix(),
		Exp:    time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if got == nil || got.UnitID != "unit-1" || got.Role != "manager" {
		t.Fatalf("claims not propagated: %+v", got)
	}

	noUnit, err := auth.SignHS256(auth.Claims{Sub: "staff-2", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+noUnit)
	rec = httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for token without unit scope, got %d", rec.Code)
	}
}

func TestSlotsServiceLookupFailure(t *testing.T) {
	dir := testDirectory()
	dir.durationErr = errors.New("connection reset by peer")
	h := NewAvailabilityHandler(dir, &fakeBusy{}, clock.System(), testLogger())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, slotsURL("unit_id=unit-1&agent_id=agent-1&date=2026-09-07&service_id=svc-60"), nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("storage error leaked to client: %s", rec.Body.String())
	}
}

func TestBookWithinGraceWindow(t *testing.T) {
	// The slot started a minute ago; a submit this close behind the start
	// still books.
	now := time.Date(2026, 9, 7, 9, 1, 0, 0, time.UTC)
	appts := &fakeAppointments{appts: map[string]model.Appointment{}}
	events := &fakeOutbox{}
	h := NewBookingHandler(testDirectory(), appts, events, clock.Fixed(now), testLogger())

	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t, nil)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("expected one booked event, got %+v", events.events)
	}
}

func testAppointment(status model.AppointmentStatus) model.Appointment {
	return model.Appointment{
		ID:          "appt-1",
		UnitID:      "unit-1",
		AgentID:     "agent-1",
		ClientName:  "Olena",
		ClientEmail: "olena@example.com",
		StartAt:     time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		EndAt:       time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		Status:      status,
	}
}

func TestCancelApprovedEmitsEvent(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]model.Appointment{
		"appt-1": testAppointment(model.AppointmentApproved),
	}}
	events := &fakeOutbox{}
	h := NewBookingHandler(testDirectory(), appts, events, clock.System(), testLogger())

	rec := httptest.NewRecorder()
	h.Cancel(rec, staffRequest(http.MethodPost, "/api/v1/staff/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1","reason":"client asked"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if appts.cancelCalls != 1 {
		t.Fatalf("expected one cancel write, got %d", appts.cancelCalls)
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventAppointmentCancelled {
		t.Fatalf("expected one cancelled event, got %+v", events.events)
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.Status != string(model.AppointmentCancelled) || resp.CancelledAt == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCancelAlreadyCancelledIsIdempotent(t *testing.T) {
	cancelledAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	appt := testAppointment(model.AppointmentCancelled)
	appt.CancelledAt = &cancelledAt
	appts := &fakeAppointments{appts: map[string]model.Appointment{"appt-1": appt}}
	events := &fakeOutbox{}
	h := NewBookingHandler(testDirectory(), appts, events, clock.System(), testLogger())

	rec := httptest.NewRecorder()
	h.Cancel(rec, staffRequest(http.MethodPost, "/api/v1/staff/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if appts.cancelCalls != 0 {
		t.Fatalf("cancel must not run again, got %d writes", appts.cancelCalls)
	}
	if len(events.events) != 0 {
		t.Fatalf("no second event expected, got %+v", events.events)
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.CancelledAt == nil || !resp.CancelledAt.Equal(cancelledAt) {
		t.Fatalf("expected the original cancellation time %s, got %v", cancelledAt, resp.CancelledAt)
	}
}

func TestCancelCompletedOrNoShowRejected(t *testing.T) {
	for _, status := range []model.AppointmentStatus{model.AppointmentCompleted, model.AppointmentNoShow} {
		appts := &fakeAppointments{appts: map[string]model.Appointment{
			"appt-1": testAppointment(status),
		}}
		events := &fakeOutbox{}
		h := NewBookingHandler(testDirectory(), appts, events, clock.System(), testLogger())

		rec := httptest.NewRecorder()
		h.Cancel(rec, staffRequest(http.MethodPost, "/api/v1/staff/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1"}`)))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status %s: expected 409, got %d", status, rec.Code)
		}
		if appts.cancelCalls != 0 || len(events.events) != 0 {
			t.Fatalf("status %s: appointment must stay untouched", status)
		}
	}
}

func TestCancelRequiresClaims(t *testing.T) {
	h := NewBookingHandler(testDirectory(), nil, nil, clock.System(), testLogger())
	rec := httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/staff/appointments/cancel", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWithinOpenPeriods(t *testing.T) {
	open := []model.Period{{StartMinute: 540, EndMinute: 720}}
	loc := time.UTC
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, loc)

	if !withinOpenPeriods(open, loc, start, start.Add(time.Hour)) {
		t.Fatal("expected 09:00-10:00 to fit [09:00,12:00)")
	}
	if !withinOpenPeriods(open, loc, start.Add(2*time.Hour), start.Add(3*time.Hour)) {
		t.Fatal("expected 11:00-12:00 to fit flush against the close")
	}
	if withinOpenPeriods(open, loc, start.Add(2*time.Hour+30*time.Minute), start.Add(3*time.Hour+30*time.Minute)) {
		t.Fatal("expected 11:30-12:30 to be rejected")
	}
	if withinOpenPeriods(open, loc, start.Add(-time.Hour), start) {
		t.Fatal("expected 08:00-09:00 to be rejected")
	}
}
