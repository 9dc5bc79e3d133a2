// Package flow implements the conversation flow state machine that drives an
// appointment call: the node catalog, the per-call session context, the
// action dispatch engine and the action handlers.
package flow

import "sync"

// Context keys written by handlers and read by later handlers, prompt
// rendering and outcome classification.
const (
	KeyCallerPhone        = "caller_phone"
	KeyContactID          = "contact_id"
	KeyKnownCustomerName  = "known_customer_name"
	KeyServiceType        = "service_type"
	KeyIssueDescription   = "issue_description"
	KeyCustomerName       = "customer_name"
	KeyPhoneNumber        = "phone_number"
	KeyEmail              = "email"
	KeyServiceAddress     = "service_address"
	KeySelectedDatetime   = "selected_datetime"
	KeyAppointmentID      = "appointment_id"
	KeyConfirmationNumber = "confirmation_number"
	KeyAppointmentTime    = "current_appointment_time"
	KeyWithinWindow       = "within_cancellation_window"
	KeyLookupName         = "lookup_name"
	KeyLookupPhone        = "lookup_phone"
	KeyLookupConfirmation = "lookup_confirmation_number"
	KeyLastDomainAction   = "last_domain_action"
	KeyRescheduled        = "rescheduled"
	KeyCancelled          = "cancelled"
	KeyKeptAppointment    = "kept_appointment"
	KeyProductInfoOnly    = "product_info_only"
)

// Values for KeyLastDomainAction.
const (
	ActionBooking      = "booking"
	ActionReschedule   = "reschedule"
	ActionCancellation = "cancellation"
)

// Context is the per-call key/value store surviving across node transitions.
// One handler writes at a time (utterances for a call arrive in order), but
// the mutex keeps concurrent reads from the transport layer safe.
type Context struct {
	mu     sync.Mutex
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value for key if it is a non-empty string, otherwise
// fallback. Absence means "not yet collected".
func (c *Context) GetString(key, fallback string) string {
	v, ok := c.Get(key)
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

func (c *Context) GetBool(key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Clear drops every key. Calling it again is a no-op.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]any)
}

// Len reports how many keys are set.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
