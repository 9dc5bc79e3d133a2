package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second, nil, nil)
}

func TestLookupContactFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/contacts/lookup" {
			t.Errorf("path = %s, want /contacts/lookup", r.URL.Path)
		}
		if got := r.URL.Query().Get("phone"); got != "+15551234567" {
			t.Errorf("phone = %q", got)
		}
		_ = json.NewEncoder(w).Encode(Contact{ID: "c-1", FirstName: "Dana", LastName: "Reyes", Phone: "+15551234567"})
	})

	contact := c.LookupContact(context.Background(), "+15551234567")
	if contact == nil {
		t.Fatalf("LookupContact() = nil, want contact")
	}
	if contact.ID != "c-1" || contact.FirstName != "Dana" {
		t.Fatalf("unexpected contact: %+v", contact)
	}
}

func TestLookupContactNullBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	})
	if got := c.LookupContact(context.Background(), "+15550000000"); got != nil {
		t.Fatalf("LookupContact() = %+v, want nil for null body", got)
	}
}

func TestAbsentOnNonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if got := c.CreateContact(context.Background(), NewContact{FirstName: "A", Phone: "+1"}); got != nil {
		t.Fatalf("CreateContact() = %+v, want nil on 500", got)
	}
}

func TestAbsentOnNonJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	if got := c.GetAppointmentByConfirmation(context.Background(), "WOD123"); got != nil {
		t.Fatalf("GetAppointmentByConfirmation() = %+v, want nil on non-JSON", got)
	}
}

func TestAbsentOnUnreachableBackend(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil, nil)
	if got := c.CheckAvailability(context.Background(), "2025-10-25", 2, ""); got != nil {
		t.Fatalf("CheckAvailability() = %+v, want nil when unreachable", got)
	}
}

func TestCheckAvailabilityRequestShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendar/check-availability" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["date"] != "2025-10-25" || body["durationHours"] != float64(2) || body["serviceType"] != "REPAIR" {
			t.Errorf("unexpected body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(Availability{
			Available: true,
			Slots:     []Slot{{Start: "2025-10-25T14:00:00Z", End: "2025-10-25T16:00:00Z"}},
		})
	})

	avail := c.CheckAvailability(context.Background(), "2025-10-25", 2, ServiceRepair)
	if avail == nil || !avail.Available || len(avail.Slots) != 1 {
		t.Fatalf("unexpected availability: %+v", avail)
	}
}

func TestUpdateAndCancelUseIDPath(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewEncoder(w).Encode(Appointment{ID: "a-9", ConfirmationNumber: "WOD9"})
	})

	if appt := c.UpdateAppointment(context.Background(), "a-9", AppointmentUpdate{ScheduledTime: "2025-11-01T09:00:00Z"}); appt == nil {
		t.Fatalf("UpdateAppointment() = nil")
	}
	if gotMethod != http.MethodPatch || gotPath != "/appointments/a-9" {
		t.Fatalf("update request = %s %s", gotMethod, gotPath)
	}

	if appt := c.CancelAppointment(context.Background(), "a-9"); appt == nil {
		t.Fatalf("CancelAppointment() = nil")
	}
	if gotMethod != http.MethodDelete || gotPath != "/appointments/a-9" {
		t.Fatalf("cancel request = %s %s", gotMethod, gotPath)
	}
}

func TestUpcomingAppointmentsList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/appointments/upcoming" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Appointment{
			{ID: "a-1", ContactID: "c-1", ConfirmationNumber: "WOD1"},
			{ID: "a-2", ContactID: "c-2", ConfirmationNumber: "WOD2"},
		})
	})

	appts := c.UpcomingAppointments(context.Background())
	if len(appts) != 2 || appts[1].ID != "a-2" {
		t.Fatalf("unexpected appointments: %+v", appts)
	}
}

func TestCreateAppointmentCarriesContactID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["contactId"] != "c-7" {
			t.Errorf("contactId = %v, want c-7", body["contactId"])
		}
		if _, ok := body["customerName"]; ok {
			t.Errorf("customerName should be omitted when contactId is set")
		}
		_ = json.NewEncoder(w).Encode(Appointment{ID: "a-1", ConfirmationNumber: "WOD20251025"})
	})

	appt := c.CreateAppointment(context.Background(), NewAppointment{
		ContactID:     "c-7",
		ScheduledTime: "2025-10-25T14:00:00Z",
		EndTime:       "2025-10-25T16:00:00Z",
		ServiceType:   ServiceRepair,
	})
	if appt == nil || appt.ConfirmationNumber != "WOD20251025" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
}
