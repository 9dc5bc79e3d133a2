package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldofdoors/doorline/internal/call"
	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/config"
	"github.com/worldofdoors/doorline/internal/schedule"
)

type stubGateway struct{}

func (stubGateway) LookupContact(ctx context.Context, phone string) *schedule.Contact { return nil }

func (stubGateway) CreateContact(ctx context.Context, fields schedule.NewContact) *schedule.Contact {
	return &schedule.Contact{ID: "c-1"}
}

func (stubGateway) CheckAvailability(ctx context.Context, date string, durationHours int, serviceType schedule.ServiceType) *schedule.Availability {
	return &schedule.Availability{
		Available: true,
		Slots:     []schedule.Slot{{Start: date + "T14:00:00Z", End: date + "T16:00:00Z"}},
	}
}

func (stubGateway) CreateAppointment(ctx context.Context, fields schedule.NewAppointment) *schedule.Appointment {
	return &schedule.Appointment{ID: "appt-1", ConfirmationNumber: "WOD-77"}
}

func (stubGateway) GetAppointmentByConfirmation(ctx context.Context, code string) *schedule.Appointment {
	return nil
}

func (stubGateway) UpcomingAppointments(ctx context.Context) []schedule.Appointment { return nil }

func (stubGateway) UpdateAppointment(ctx context.Context, id string, fields schedule.AppointmentUpdate) *schedule.Appointment {
	return nil
}

func (stubGateway) CancelAppointment(ctx context.Context, id string) *schedule.Appointment {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *call.Manager, *callstore.MemoryStore) {
	t.Helper()
	store := callstore.NewMemoryStore()
	calls := call.NewManager(call.ManagerConfig{
		Gateway:           stubGateway{},
		Store:             store,
		InactivityTimeout: time.Minute,
	})
	srv := New(config.Config{AllowAnyOrigin: true}, calls, store, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, calls, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createCall(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	res := postJSON(t, ts.URL+"/v1/calls", map[string]any{"caller_phone": "+15550100"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var created struct {
		Call call.Snapshot `json:"call"`
		Node struct {
			Node      string `json:"node"`
			Functions []struct {
				Name string `json:"name"`
			} `json:"functions"`
		} `json:"node"`
	}
	decodeBody(t, res, &created)
	if created.Call.ID == "" {
		t.Fatal("missing call id in create response")
	}
	if created.Node.Node != "greeting" || len(created.Node.Functions) != 4 {
		t.Fatalf("unexpected initial node: %+v", created.Node)
	}
	return created.Call.ID
}

func dispatchAction(t *testing.T, ts *httptest.Server, callID, action string, args map[string]any) actionResponse {
	t.Helper()
	res := postJSON(t, ts.URL+"/v1/calls/"+callID+"/actions", map[string]any{
		"action":    action,
		"arguments": args,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("action %q status = %d", action, res.StatusCode)
	}
	var out actionResponse
	decodeBody(t, res, &out)
	return out
}

func TestFullCallOverREST(t *testing.T) {
	ts, _, store := newTestServer(t)
	callID := createCall(t, ts)

	dispatchAction(t, ts, callID, "new_appointment", nil)
	dispatchAction(t, ts, callID, "collect_service_type", map[string]any{"service_type": "repair"})
	dispatchAction(t, ts, callID, "collect_customer_info", map[string]any{
		"customer_name":   "Dana Webb",
		"phone_number":    "+15550100",
		"service_address": "12 Elm St",
	})
	out := dispatchAction(t, ts, callID, "check_availability", map[string]any{
		"preferred_date": "2025-10-25",
		"preferred_time": "2:00 PM",
	})
	if out.Node == nil || out.Node.Node != "confirm_appointment" {
		t.Fatalf("expected confirm_appointment node, got %+v", out.Node)
	}

	dispatchAction(t, ts, callID, "confirm_booking", map[string]any{"appointment_time": "2025-10-25 2 PM"})
	out = dispatchAction(t, ts, callID, "end_conversation", nil)
	if out.Node != nil {
		t.Fatalf("terminated call should carry no next node, got %+v", out.Node)
	}
	if out.Call.Status != call.StatusEnded || out.Call.Outcome != call.OutcomeBooked {
		t.Fatalf("unexpected final snapshot: %+v", out.Call)
	}

	rec, err := store.GetCall(context.Background(), callID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.ConfirmationNumber != "WOD-77" {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestActionOutsideNodeEndsCall(t *testing.T) {
	ts, calls, _ := newTestServer(t)
	callID := createCall(t, ts)

	res := postJSON(t, ts.URL+"/v1/calls/"+callID+"/actions", map[string]any{
		"action": "confirm_booking",
		"arguments": map[string]any{
			"appointment_time": "2025-10-25T10:00:00",
		},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	sess, err := calls.Get(callID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	snap := sess.Snapshot()
	if snap.Status != call.StatusEnded || snap.EndReason != call.EndReasonError {
		t.Fatalf("protocol violation must end the call: %+v", snap)
	}
}

func TestEndCallAndGetRecord(t *testing.T) {
	ts, _, _ := newTestServer(t)
	callID := createCall(t, ts)

	res := postJSON(t, ts.URL+"/v1/calls/"+callID+"/end", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", res.StatusCode)
	}
	var snap call.Snapshot
	decodeBody(t, res, &snap)
	if snap.Status != call.StatusEnded || snap.Outcome != call.OutcomeNoResponse {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.EndReason != call.EndReasonDisconnected {
		t.Fatalf("default end reason should be disconnected, got %q", snap.EndReason)
	}

	getRes, err := http.Get(ts.URL + "/v1/calls/" + callID)
	if err != nil {
		t.Fatalf("GET call error = %v", err)
	}
	defer getRes.Body.Close()
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getRes.StatusCode)
	}

	listRes, err := http.Get(ts.URL + "/v1/calls?limit=5")
	if err != nil {
		t.Fatalf("GET calls error = %v", err)
	}
	var records []callstore.Record
	decodeBody(t, listRes, &records)
	if len(records) != 1 || records[0].ID != callID {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestUnknownCall(t *testing.T) {
	ts, _, _ := newTestServer(t)

	res := postJSON(t, ts.URL+"/v1/calls/nope/end", nil)
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestCallWebSocket(t *testing.T) {
	ts, _, _ := newTestServer(t)
	callID := createCall(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/calls/ws?call_id=" + callID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	readFrame := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	frame := readFrame()
	if frame["type"] != "node_active" || frame["node"] != "greeting" {
		t.Fatalf("expected greeting announcement, got %v", frame)
	}

	err = conn.WriteJSON(map[string]any{
		"type":          "function_call",
		"call_id":       callID,
		"invocation_id": "inv-1",
		"action":        "new_appointment",
	})
	if err != nil {
		t.Fatalf("write error = %v", err)
	}

	frame = readFrame()
	if frame["type"] != "action_result" || frame["invocation_id"] != "inv-1" {
		t.Fatalf("expected action_result, got %v", frame)
	}
	frame = readFrame()
	if frame["type"] != "node_active" || frame["node"] != "service_type" {
		t.Fatalf("expected service_type announcement, got %v", frame)
	}

	err = conn.WriteJSON(map[string]any{
		"type":    "client_control",
		"call_id": callID,
		"action":  "hangup",
	})
	if err != nil {
		t.Fatalf("write error = %v", err)
	}

	frame = readFrame()
	if frame["type"] != "call_ended" || frame["outcome"] != "NO_RESPONSE" {
		t.Fatalf("expected call_ended NO_RESPONSE, got %v", frame)
	}
}

func TestCallWebSocketPingsIdleConnection(t *testing.T) {
	store := callstore.NewMemoryStore()
	calls := call.NewManager(call.ManagerConfig{
		Gateway:           stubGateway{},
		Store:             store,
		InactivityTimeout: time.Minute,
	})
	srv := New(config.Config{AllowAnyOrigin: true}, calls, store, nil, nil)
	srv.pingInterval = 20 * time.Millisecond
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	callID := createCall(t, ts)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/calls/ws?call_id=" + callID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ping on an idle connection")
	}
}
