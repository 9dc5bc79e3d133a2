package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worldofdoors/doorline/internal/observability"
)

// Client is a contract-typed facade over the scheduling backend. Every
// operation degrades uniformly: a transport error, a non-2xx status or a
// non-JSON body all yield a nil result, never a distinct error. The handler
// layer decides how to keep the conversation moving.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// LookupContact finds a contact by phone number. A nil result means not
// found or backend unavailable.
func (c *Client) LookupContact(ctx context.Context, phone string) *Contact {
	var out Contact
	endpoint := "/contacts/lookup?phone=" + url.QueryEscape(phone)
	if !c.do(ctx, http.MethodGet, endpoint, nil, &out) {
		return nil
	}
	if out.ID == "" {
		// Backend returns a JSON null for unknown numbers.
		return nil
	}
	return &out
}

func (c *Client) CreateContact(ctx context.Context, fields NewContact) *Contact {
	var out Contact
	if !c.do(ctx, http.MethodPost, "/contacts", fields, &out) {
		return nil
	}
	return &out
}

// CheckAvailability asks the calendar for open slots on a date.
func (c *Client) CheckAvailability(ctx context.Context, date string, durationHours int, serviceType ServiceType) *Availability {
	var out Availability
	req := availabilityRequest{
		Date:          date,
		DurationHours: durationHours,
		ServiceType:   serviceType,
	}
	if !c.do(ctx, http.MethodPost, "/calendar/check-availability", req, &out) {
		return nil
	}
	return &out
}

func (c *Client) CreateAppointment(ctx context.Context, fields NewAppointment) *Appointment {
	var out Appointment
	if !c.do(ctx, http.MethodPost, "/appointments", fields, &out) {
		return nil
	}
	return &out
}

func (c *Client) GetAppointmentByConfirmation(ctx context.Context, code string) *Appointment {
	var out Appointment
	endpoint := "/appointments/by-confirmation/" + url.PathEscape(strings.TrimSpace(code))
	if !c.do(ctx, http.MethodGet, endpoint, nil, &out) {
		return nil
	}
	if out.ID == "" {
		return nil
	}
	return &out
}

func (c *Client) UpdateAppointment(ctx context.Context, id string, fields AppointmentUpdate) *Appointment {
	var out Appointment
	endpoint := "/appointments/" + url.PathEscape(id)
	if !c.do(ctx, http.MethodPatch, endpoint, fields, &out) {
		return nil
	}
	return &out
}

func (c *Client) CancelAppointment(ctx context.Context, id string) *Appointment {
	var out Appointment
	endpoint := "/appointments/" + url.PathEscape(id)
	if !c.do(ctx, http.MethodDelete, endpoint, nil, &out) {
		return nil
	}
	return &out
}

// UpcomingAppointments lists all future appointments.
func (c *Client) UpcomingAppointments(ctx context.Context) []Appointment {
	var out []Appointment
	if !c.do(ctx, http.MethodGet, "/appointments/upcoming", nil, &out) {
		return nil
	}
	return out
}

// do performs one request and decodes a 2xx JSON body into out. It reports
// false for every failure mode so callers treat them identically.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) bool {
	metricEndpoint := endpoint
	if i := strings.IndexByte(metricEndpoint, '?'); i >= 0 {
		metricEndpoint = metricEndpoint[:i]
	}
	log := c.logger.With("method", method, "endpoint", metricEndpoint)
	log.Info("scheduling api call")

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Error("scheduling api request marshal failed", "error", err)
			c.metrics.IncGatewayRequest(method, metricEndpoint, "marshal_error")
			return false
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		log.Error("scheduling api request build failed", "error", err)
		c.metrics.IncGatewayRequest(method, metricEndpoint, "request_error")
		return false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		log.Error("scheduling api unreachable", "error", err)
		c.metrics.IncGatewayRequest(method, metricEndpoint, "transport_error")
		return false
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		log.Warn("scheduling api non-success status",
			"status", res.StatusCode, "body", strings.TrimSpace(string(snippet)))
		c.metrics.IncGatewayRequest(method, metricEndpoint, fmt.Sprintf("status_%d", res.StatusCode))
		return false
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		log.Warn("scheduling api body read failed", "error", err)
		c.metrics.IncGatewayRequest(method, metricEndpoint, "read_error")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn("scheduling api non-json response", "error", err)
		c.metrics.IncGatewayRequest(method, metricEndpoint, "decode_error")
		return false
	}

	c.metrics.IncGatewayRequest(method, metricEndpoint, "ok")
	return true
}
