package schedule

// ServiceType enumerates the backend's appointment categories.
type ServiceType string

const (
	ServiceRepair       ServiceType = "REPAIR"
	ServiceInstallation ServiceType = "INSTALLATION"
	ServiceMaintenance  ServiceType = "MAINTENANCE"
	ServiceEmergency    ServiceType = "EMERGENCY"
)

// ServiceTypes lists every valid service type, in schema order.
func ServiceTypes() []ServiceType {
	return []ServiceType{ServiceRepair, ServiceInstallation, ServiceMaintenance, ServiceEmergency}
}

// Contact is a customer record owned by the scheduling backend.
type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// NewContact is the payload for creating a contact.
type NewContact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Appointment is an appointment record owned by the scheduling backend.
type Appointment struct {
	ID                 string      `json:"id"`
	ScheduledTime      string      `json:"scheduledTime"`
	EndTime            string      `json:"endTime"`
	ServiceType        ServiceType `json:"serviceType"`
	IssueDescription   string      `json:"issueDescription,omitempty"`
	ConfirmationNumber string      `json:"confirmationNumber"`
	ContactID          string      `json:"contactId,omitempty"`
	Status             string      `json:"status,omitempty"`
}

// NewAppointment is the payload for creating an appointment. Either
// ContactID or the raw customer fields must be present.
type NewAppointment struct {
	ContactID        string      `json:"contactId,omitempty"`
	CustomerName     string      `json:"customerName,omitempty"`
	CustomerPhone    string      `json:"customerPhone,omitempty"`
	CustomerEmail    string      `json:"customerEmail,omitempty"`
	ScheduledTime    string      `json:"scheduledTime"`
	EndTime          string      `json:"endTime"`
	ServiceType      ServiceType `json:"serviceType"`
	IssueDescription string      `json:"issueDescription,omitempty"`
}

// AppointmentUpdate carries partial fields for PATCH.
type AppointmentUpdate struct {
	ScheduledTime string      `json:"scheduledTime,omitempty"`
	EndTime       string      `json:"endTime,omitempty"`
	ServiceType   ServiceType `json:"serviceType,omitempty"`
	Status        string      `json:"status,omitempty"`
}

// Slot is an open window on the calendar.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is the calendar check response.
type Availability struct {
	Available bool   `json:"available"`
	Slots     []Slot `json:"slots"`
}

type availabilityRequest struct {
	Date          string      `json:"date"`
	DurationHours int         `json:"durationHours"`
	ServiceType   ServiceType `json:"serviceType,omitempty"`
}
