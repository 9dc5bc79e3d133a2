package flow

// Args carries the named arguments of one model-invoked action.
type Args map[string]any

// String returns the argument as a string, reporting whether it was present
// and string-typed.
func (a Args) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// StringOr returns the argument or fallback when absent or not a string.
func (a Args) StringOr(key, fallback string) string {
	if s, ok := a.String(key); ok {
		return s
	}
	return fallback
}

// Result describes what a handler did, for observability and the
// model-facing layer. It never carries control flow; NextNode does.
type Result interface {
	Kind() string
}

// IntentResult reports the detected caller intent at the greeting or
// product-info fork.
type IntentResult struct {
	Intent       string `json:"intent"`
	CustomerName string `json:"customer_name,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

func (IntentResult) Kind() string { return "intent" }

type ServiceTypeResult struct {
	ServiceType      string `json:"service_type"`
	IssueDescription string `json:"issue_description,omitempty"`
}

func (ServiceTypeResult) Kind() string { return "service_type" }

type CustomerInfoResult struct {
	CustomerName   string `json:"customer_name"`
	PhoneNumber    string `json:"phone_number"`
	Email          string `json:"email,omitempty"`
	ServiceAddress string `json:"service_address"`
	ContactID      string `json:"contact_id,omitempty"`
}

func (CustomerInfoResult) Kind() string { return "customer_info" }

type AvailabilityResult struct {
	Available        bool     `json:"available"`
	PreferredDate    string   `json:"preferred_date"`
	PreferredTime    string   `json:"preferred_time"`
	SelectedDatetime string   `json:"selected_datetime,omitempty"`
	AlternativeTimes []string `json:"alternative_times,omitempty"`
}

func (AvailabilityResult) Kind() string { return "availability" }

type BookingResult struct {
	Booked             bool   `json:"booked"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
	AppointmentTime    string `json:"appointment_time"`
	Detail             string `json:"detail,omitempty"`
}

func (BookingResult) Kind() string { return "booking" }

type RescheduleCheckResult struct {
	WithinWindow           bool   `json:"within_24_hours"`
	CurrentAppointmentTime string `json:"current_appointment_time"`
	Proceed                bool   `json:"proceed"`
}

func (RescheduleCheckResult) Kind() string { return "reschedule_check" }

type CancelCheckResult struct {
	WithinWindow           bool   `json:"within_24_hours"`
	CurrentAppointmentTime string `json:"current_appointment_time"`
	FeeUSD                 int    `json:"fee_usd,omitempty"`
	Decision               string `json:"decision"`
}

func (CancelCheckResult) Kind() string { return "cancel_check" }

type CancelResult struct {
	Cancelled     bool   `json:"cancelled"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

func (CancelResult) Kind() string { return "cancel" }
