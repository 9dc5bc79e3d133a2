package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/events"
	"github.com/worldofdoors/doorline/internal/flow"
	"github.com/worldofdoors/doorline/internal/schedule"
)

// stubGateway scripts the scheduling backend for call-level tests.
type stubGateway struct {
	availability *schedule.Availability
	appointment  *schedule.Appointment
	byConf       *schedule.Appointment
}

func (g *stubGateway) LookupContact(ctx context.Context, phone string) *schedule.Contact {
	return nil
}

func (g *stubGateway) CreateContact(ctx context.Context, fields schedule.NewContact) *schedule.Contact {
	return &schedule.Contact{ID: "c-1", FirstName: fields.FirstName, LastName: fields.LastName, Phone: fields.Phone}
}

func (g *stubGateway) CheckAvailability(ctx context.Context, date string, durationHours int, serviceType schedule.ServiceType) *schedule.Availability {
	return g.availability
}

func (g *stubGateway) CreateAppointment(ctx context.Context, fields schedule.NewAppointment) *schedule.Appointment {
	return g.appointment
}

func (g *stubGateway) GetAppointmentByConfirmation(ctx context.Context, code string) *schedule.Appointment {
	return g.byConf
}

func (g *stubGateway) UpcomingAppointments(ctx context.Context) []schedule.Appointment {
	return nil
}

func (g *stubGateway) UpdateAppointment(ctx context.Context, id string, fields schedule.AppointmentUpdate) *schedule.Appointment {
	return &schedule.Appointment{ID: id, ScheduledTime: fields.ScheduledTime}
}

func (g *stubGateway) CancelAppointment(ctx context.Context, id string) *schedule.Appointment {
	return &schedule.Appointment{ID: id, Status: "CANCELLED"}
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.CallOutcome
}

func (p *capturingPublisher) PublishOutcome(ctx context.Context, ev events.CallOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) all() []events.CallOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.CallOutcome(nil), p.events...)
}

func newTestManager(gw flow.SchedulingAPI) (*Manager, *callstore.MemoryStore, *capturingPublisher) {
	store := callstore.NewMemoryStore()
	pub := &capturingPublisher{}
	m := NewManager(ManagerConfig{
		Gateway:           gw,
		Store:             store,
		Publisher:         pub,
		InactivityTimeout: time.Minute,
		DurationHours:     2,
	})
	return m, store, pub
}

func mustDispatch(t *testing.T, s *Session, action string, args flow.Args) *flow.Node {
	t.Helper()
	_, next, err := s.HandleAction(context.Background(), action, args)
	if err != nil {
		t.Fatalf("action %q failed: %v", action, err)
	}
	return next
}

func TestFullCallEndsBooked(t *testing.T) {
	gw := &stubGateway{
		availability: &schedule.Availability{
			Available: true,
			Slots:     []schedule.Slot{{Start: "2025-10-25T14:00:00Z", End: "2025-10-25T16:00:00Z"}},
		},
		appointment: &schedule.Appointment{ID: "appt-1", ConfirmationNumber: "WOD-99"},
	}
	m, store, pub := newTestManager(gw)
	ctx := context.Background()

	s := m.Create(ctx, "+15550100", false)
	if got := s.ActiveNode().Name; got != "greeting" {
		t.Fatalf("expected greeting node, got %q", got)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("active count %d", m.ActiveCount())
	}

	mustDispatch(t, s, "new_appointment", nil)
	mustDispatch(t, s, "collect_service_type", flow.Args{"service_type": "repair"})
	mustDispatch(t, s, "collect_customer_info", flow.Args{
		"customer_name":   "Dana Webb",
		"phone_number":    "+15550100",
		"service_address": "12 Elm St",
	})
	mustDispatch(t, s, "check_availability", flow.Args{
		"preferred_date": "2025-10-25",
		"preferred_time": "2:00 PM",
	})
	mustDispatch(t, s, "confirm_booking", flow.Args{"appointment_time": "2025-10-25 2 PM"})
	mustDispatch(t, s, "end_conversation", nil)

	if !s.FlowEnded() {
		t.Fatal("flow should be ended")
	}

	snap, err := m.End(ctx, s.ID, EndReasonCompleted)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if snap.Outcome != OutcomeBooked {
		t.Fatalf("outcome %q, want BOOKED", snap.Outcome)
	}

	rec, err := store.GetCall(ctx, s.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Outcome != "BOOKED" || rec.ConfirmationNumber != "WOD-99" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	published := pub.all()
	if len(published) != 1 || published[0].Outcome != "BOOKED" {
		t.Fatalf("unexpected events: %#v", published)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("active count after end %d", m.ActiveCount())
	}
}

func TestKeepAppointmentEndsNoChange(t *testing.T) {
	apptTime := time.Now().Add(72 * time.Hour).Format(time.RFC3339)
	gw := &stubGateway{
		byConf: &schedule.Appointment{ID: "appt-2", ScheduledTime: apptTime, ConfirmationNumber: "WOD-7"},
	}
	m, store, _ := newTestManager(gw)
	ctx := context.Background()

	s := m.Create(ctx, "+15550111", false)
	mustDispatch(t, s, "cancel_appointment", flow.Args{"customer_name": "Ben Ortiz", "phone_number": "+15550111"})
	mustDispatch(t, s, "lookup_cancel", flow.Args{
		"customer_name":       "Ben Ortiz",
		"phone_number":        "+15550111",
		"confirmation_number": "WOD-7",
	})
	mustDispatch(t, s, "keep_appointment", nil)
	mustDispatch(t, s, "end_conversation", nil)

	snap, err := m.End(ctx, s.ID, EndReasonCompleted)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if snap.Outcome != OutcomeNoChange {
		t.Fatalf("outcome %q, want NO_CHANGE", snap.Outcome)
	}

	// The record still names the appointment the caller asked about.
	rec, err := store.GetCall(ctx, s.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.ConfirmationNumber != "WOD-7" {
		t.Fatalf("record confirmation %q", rec.ConfirmationNumber)
	}
}

func TestHangUpAfterLookupEndsNoResponse(t *testing.T) {
	apptTime := time.Now().Add(72 * time.Hour).Format(time.RFC3339)
	gw := &stubGateway{
		byConf: &schedule.Appointment{ID: "appt-3", ScheduledTime: apptTime, ConfirmationNumber: "WOD-3"},
	}
	m, _, _ := newTestManager(gw)
	ctx := context.Background()

	s := m.Create(ctx, "+15550177", false)
	mustDispatch(t, s, "cancel_appointment", flow.Args{"customer_name": "Dana Webb", "phone_number": "+15550177"})
	mustDispatch(t, s, "lookup_cancel", flow.Args{
		"customer_name":       "Dana Webb",
		"phone_number":        "+15550177",
		"confirmation_number": "WOD-3",
	})

	snap, err := m.End(ctx, s.ID, EndReasonDisconnected)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if snap.Outcome != OutcomeNoResponse {
		t.Fatalf("outcome %q, want NO_RESPONSE", snap.Outcome)
	}
}

func TestDisconnectMidFlowEndsNoResponse(t *testing.T) {
	m, store, _ := newTestManager(&stubGateway{})
	ctx := context.Background()

	s := m.Create(ctx, "+15550122", false)
	mustDispatch(t, s, "new_appointment", nil)

	snap, err := m.End(ctx, s.ID, EndReasonDisconnected)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if snap.Outcome != OutcomeNoResponse {
		t.Fatalf("outcome %q, want NO_RESPONSE", snap.Outcome)
	}
	rec, err := store.GetCall(ctx, s.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.EndReason != string(EndReasonDisconnected) || rec.FinalNode != "service_type" {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	m, _, pub := newTestManager(&stubGateway{})
	ctx := context.Background()

	s := m.Create(ctx, "+15550133", false)
	if _, err := m.End(ctx, s.ID, EndReasonCompleted); err != nil {
		t.Fatalf("first end failed: %v", err)
	}
	if _, err := m.End(ctx, s.ID, EndReasonDisconnected); err != nil {
		t.Fatalf("second end failed: %v", err)
	}
	if len(pub.all()) != 1 {
		t.Fatalf("outcome published %d times", len(pub.all()))
	}

	snap, _ := m.End(ctx, s.ID, EndReasonExpired)
	if snap.EndReason != EndReasonCompleted {
		t.Fatalf("first end reason must win, got %q", snap.EndReason)
	}
}

func TestContextClearedAfterEnd(t *testing.T) {
	m, _, _ := newTestManager(&stubGateway{})
	ctx := context.Background()

	s := m.Create(ctx, "+15550144", false)
	s.sctx.Set(flow.KeyConfirmationNumber, "WOD-55")

	if _, err := m.End(ctx, s.ID, EndReasonCompleted); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if s.sctx.Len() != 0 {
		t.Fatalf("context should be empty after end, has %d keys", s.sctx.Len())
	}
	if got := s.sctx.GetString(flow.KeyConfirmationNumber, "absent"); got != "absent" {
		t.Fatalf("cleared key still readable: %q", got)
	}
}

func TestActionAfterEndRejected(t *testing.T) {
	m, _, _ := newTestManager(&stubGateway{})
	ctx := context.Background()

	s := m.Create(ctx, "+15550155", false)
	if _, err := m.End(ctx, s.ID, EndReasonCompleted); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	_, _, err := s.HandleAction(ctx, "new_appointment", nil)
	if !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestJanitorExpiresInactiveSessions(t *testing.T) {
	store := callstore.NewMemoryStore()
	pub := &capturingPublisher{}
	m := NewManager(ManagerConfig{
		Gateway:           &stubGateway{},
		Store:             store,
		Publisher:         pub,
		InactivityTimeout: 10 * time.Millisecond,
	})
	ctx := context.Background()

	s := m.Create(ctx, "+15550166", false)
	time.Sleep(20 * time.Millisecond)
	m.expireInactive(ctx)

	snap := s.Snapshot()
	if snap.Status != StatusEnded || snap.EndReason != EndReasonExpired {
		t.Fatalf("session not expired: %#v", snap)
	}
	if snap.Outcome != OutcomeNoResponse {
		t.Fatalf("outcome %q, want NO_RESPONSE", snap.Outcome)
	}
	rec, err := store.GetCall(ctx, s.ID)
	if err != nil || rec.EndReason != string(EndReasonExpired) {
		t.Fatalf("expired record: %#v err=%v", rec, err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(&stubGateway{})
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
