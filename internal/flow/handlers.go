package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/worldofdoors/doorline/internal/observability"
	"github.com/worldofdoors/doorline/internal/policy"
	"github.com/worldofdoors/doorline/internal/schedule"
)

// SchedulingAPI is the gateway surface the handlers consume. A nil result
// from any method means the backend could not serve the request; handlers
// recover locally instead of failing the call.
type SchedulingAPI interface {
	LookupContact(ctx context.Context, phone string) *schedule.Contact
	CreateContact(ctx context.Context, fields schedule.NewContact) *schedule.Contact
	CheckAvailability(ctx context.Context, date string, durationHours int, serviceType schedule.ServiceType) *schedule.Availability
	CreateAppointment(ctx context.Context, fields schedule.NewAppointment) *schedule.Appointment
	GetAppointmentByConfirmation(ctx context.Context, code string) *schedule.Appointment
	UpcomingAppointments(ctx context.Context) []schedule.Appointment
	UpdateAppointment(ctx context.Context, id string, fields schedule.AppointmentUpdate) *schedule.Appointment
	CancelAppointment(ctx context.Context, id string) *schedule.Appointment
}

// Handlers owns the action handlers and node constructors for one call. All
// state is explicit: the gateway handle, the session context and the clock
// are injected, nothing is ambient.
type Handlers struct {
	api           SchedulingAPI
	sctx          *Context
	logger        *slog.Logger
	metrics       *observability.Metrics
	durationHours int

	// Now is the clock used for prompts, policy checks and synthetic
	// confirmation numbers. Tests pin it.
	Now func() time.Time
}

func NewHandlers(api SchedulingAPI, sctx *Context, logger *slog.Logger, metrics *observability.Metrics, durationHours int) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if durationHours <= 0 {
		durationHours = 2
	}
	return &Handlers{
		api:           api,
		sctx:          sctx,
		logger:        logger,
		metrics:       metrics,
		durationHours: durationHours,
		Now:           time.Now,
	}
}

// SessionContext exposes the per-call context for outcome classification.
func (h *Handlers) SessionContext() *Context {
	return h.sctx
}

// InitializeCallerContext seeds the session with the caller's phone number
// and, when the backend knows the number, their contact record. Called once
// when the call starts.
func (h *Handlers) InitializeCallerContext(ctx context.Context, callerPhone string) {
	h.sctx.Set(KeyCallerPhone, callerPhone)
	if h.api == nil || callerPhone == "" {
		return
	}
	contact := h.api.LookupContact(ctx, callerPhone)
	if contact == nil {
		h.logger.Info("new caller, contact will be created after info collection", "phone", callerPhone)
		return
	}
	h.sctx.Set(KeyContactID, contact.ID)
	name := strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	if name != "" {
		h.sctx.Set(KeyKnownCustomerName, name)
	}
	h.logger.Info("caller recognized", "contact_id", contact.ID)
}

func (h *Handlers) handleNewAppointment(ctx context.Context, args Args) (Result, NextNode, error) {
	return IntentResult{Intent: "new_appointment"}, To(h.ServiceTypeNode()), nil
}

func (h *Handlers) handleRescheduleRequest(ctx context.Context, args Args) (Result, NextNode, error) {
	name, _ := args.String("customer_name")
	phone, _ := args.String("phone_number")
	return IntentResult{Intent: "reschedule", CustomerName: name, PhoneNumber: phone}, To(h.RescheduleLookupNode()), nil
}

func (h *Handlers) handleCancelRequest(ctx context.Context, args Args) (Result, NextNode, error) {
	name, _ := args.String("customer_name")
	phone, _ := args.String("phone_number")
	return IntentResult{Intent: "cancel", CustomerName: name, PhoneNumber: phone}, To(h.CancelLookupNode()), nil
}

func (h *Handlers) handleProductInfoRequest(ctx context.Context, args Args) (Result, NextNode, error) {
	h.sctx.Set(KeyProductInfoOnly, true)
	return IntentResult{Intent: "product_info"}, To(h.ProductInfoNode()), nil
}

func (h *Handlers) collectServiceType(ctx context.Context, args Args) (Result, NextNode, error) {
	serviceType := strings.ToUpper(args.StringOr("service_type", ""))
	issue := args.StringOr("issue_description", "")

	h.sctx.Set(KeyServiceType, serviceType)
	if issue != "" {
		h.sctx.Set(KeyIssueDescription, issue)
	}
	h.logger.Info("service type collected", "service_type", serviceType)

	result := ServiceTypeResult{ServiceType: serviceType, IssueDescription: issue}
	return result, To(h.CustomerInfoNode()), nil
}

func (h *Handlers) collectCustomerInfo(ctx context.Context, args Args) (Result, NextNode, error) {
	name := args.StringOr("customer_name", "")
	phone := args.StringOr("phone_number", "")
	email := args.StringOr("email", "")
	address := args.StringOr("service_address", "")

	h.sctx.Set(KeyCustomerName, name)
	h.sctx.Set(KeyPhoneNumber, phone)
	if email != "" {
		h.sctx.Set(KeyEmail, email)
	}
	h.sctx.Set(KeyServiceAddress, address)

	result := CustomerInfoResult{
		CustomerName:   name,
		PhoneNumber:    phone,
		Email:          email,
		ServiceAddress: address,
	}

	if contact := h.resolveContact(ctx, phone, name, email, address); contact != nil {
		h.sctx.Set(KeyContactID, contact.ID)
		result.ContactID = contact.ID
	} else {
		// Booking still works without a contact record, the appointment
		// carries the raw customer fields instead.
		h.logger.Warn("contact unavailable, booking will use customer fields", "phone", phone)
	}

	return result, To(h.ScheduleAppointmentNode()), nil
}

// resolveContact reuses an existing contact for the phone number or creates
// one. Nil means the backend could not serve either request.
func (h *Handlers) resolveContact(ctx context.Context, phone, name, email, address string) *schedule.Contact {
	if h.api == nil || phone == "" {
		return nil
	}
	if existing := h.api.LookupContact(ctx, phone); existing != nil {
		return existing
	}
	first, last := splitName(name)
	return h.api.CreateContact(ctx, schedule.NewContact{
		FirstName: first,
		LastName:  last,
		Phone:     phone,
		Email:     email,
		Address:   address,
	})
}

func splitName(full string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

var fallbackAlternatives = []string{"9:00 AM", "10:00 AM", "2:00 PM", "3:00 PM"}

func (h *Handlers) checkAvailability(ctx context.Context, args Args) (Result, NextNode, error) {
	preferredDate := args.StringOr("preferred_date", "")
	preferredTime := args.StringOr("preferred_time", "")
	serviceType := schedule.ServiceType(h.sctx.GetString(KeyServiceType, string(schedule.ServiceRepair)))

	h.logger.Info("checking availability", "date", preferredDate, "time", preferredTime)

	var availability *schedule.Availability
	if h.api != nil {
		availability = h.api.CheckAvailability(ctx, preferredDate, h.durationHours, serviceType)
	}

	if availability != nil {
		if availability.Available && len(availability.Slots) > 0 {
			slot := pickSlot(availability.Slots, preferredTime)
			h.sctx.Set(KeySelectedDatetime, slot.Start)
			result := AvailabilityResult{
				Available:        true,
				PreferredDate:    preferredDate,
				PreferredTime:    preferredTime,
				SelectedDatetime: slot.Start,
			}
			return result, To(h.ConfirmAppointmentNode()), nil
		}
		result := AvailabilityResult{
			Available:        false,
			PreferredDate:    preferredDate,
			PreferredTime:    preferredTime,
			AlternativeTimes: fallbackAlternatives,
		}
		return result, To(h.NoAvailabilityNode(fallbackAlternatives)), nil
	}

	// Backend absent. Local mock keeps the conversation moving: everything
	// is open except the evening slots.
	h.logger.Warn("scheduling backend unavailable, using local availability")
	booked := map[string]bool{"7:00 PM": true, "8:00 PM": true, "19:00": true, "20:00": true}
	if !booked[preferredTime] {
		selected := localDatetime(preferredDate, preferredTime)
		h.sctx.Set(KeySelectedDatetime, selected)
		result := AvailabilityResult{
			Available:        true,
			PreferredDate:    preferredDate,
			PreferredTime:    preferredTime,
			SelectedDatetime: selected,
		}
		return result, To(h.ConfirmAppointmentNode()), nil
	}
	alternatives := append(append([]string(nil), fallbackAlternatives...), "5:00 PM")
	result := AvailabilityResult{
		Available:        false,
		PreferredDate:    preferredDate,
		PreferredTime:    preferredTime,
		AlternativeTimes: alternatives,
	}
	return result, To(h.NoAvailabilityNode(alternatives)), nil
}

// pickSlot prefers a slot whose start contains the caller's requested clock
// time, otherwise the first open slot.
func pickSlot(slots []schedule.Slot, preferredTime string) schedule.Slot {
	if hhmm, ok := normalizeClock(preferredTime); ok {
		for _, s := range slots {
			if strings.Contains(s.Start, hhmm) {
				return s
			}
		}
	}
	for _, s := range slots {
		if strings.Contains(s.Start, preferredTime) {
			return s
		}
	}
	return slots[0]
}

// normalizeClock converts spoken clock forms ("2:00 PM", "10 AM", "14:00")
// to 24-hour HH:MM.
func normalizeClock(v string) (string, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, layout := range []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// localDatetime builds a synthetic slot timestamp for the mock availability
// path.
func localDatetime(date, clock string) string {
	if hhmm, ok := normalizeClock(clock); ok {
		return fmt.Sprintf("%sT%s:00", date, hhmm)
	}
	return fmt.Sprintf("%sT%s:00", date, strings.ReplaceAll(clock, " ", ""))
}

func (h *Handlers) confirmBooking(ctx context.Context, args Args) (Result, NextNode, error) {
	customerName := h.sctx.GetString(KeyCustomerName, "")
	phoneNumber := h.sctx.GetString(KeyPhoneNumber, "")
	selected := h.sctx.GetString(KeySelectedDatetime, args.StringOr("appointment_time", ""))

	if customerName == "" || phoneNumber == "" || selected == "" {
		h.logger.Warn("booking attempted with incomplete details",
			"have_name", customerName != "", "have_phone", phoneNumber != "", "have_time", selected != "")
		result := BookingResult{Booked: false, AppointmentTime: "TBD", Detail: "missing booking details"}
		return result, To(h.ScheduleAppointmentNode()), nil
	}

	start, err := policy.ParseTimestamp(selected)
	if err != nil {
		h.logger.Warn("selected datetime unparseable, re-collecting", "value", selected)
		result := BookingResult{Booked: false, AppointmentTime: "TBD", Detail: "could not read the selected time"}
		return result, To(h.ScheduleAppointmentNode()), nil
	}
	end := start.Add(time.Duration(h.durationHours) * time.Hour)

	fields := schedule.NewAppointment{
		ScheduledTime:    start.Format(time.RFC3339),
		EndTime:          end.Format(time.RFC3339),
		ServiceType:      schedule.ServiceType(h.sctx.GetString(KeyServiceType, string(schedule.ServiceRepair))),
		IssueDescription: h.sctx.GetString(KeyIssueDescription, ""),
	}
	if contactID := h.sctx.GetString(KeyContactID, ""); contactID != "" {
		fields.ContactID = contactID
	} else {
		fields.CustomerName = customerName
		fields.CustomerPhone = phoneNumber
		fields.CustomerEmail = h.sctx.GetString(KeyEmail, "")
	}

	var appointment *schedule.Appointment
	if h.api != nil {
		appointment = h.api.CreateAppointment(ctx, fields)
	}

	confirmation := ""
	if appointment != nil {
		confirmation = appointment.ConfirmationNumber
		h.sctx.Set(KeyAppointmentID, appointment.ID)
	} else {
		// Synthetic confirmation keeps the caller's booking promise even
		// when the backend is down. Ops reconciles from the call record.
		confirmation = "WOD" + h.Now().Format("20060102150405")
		h.logger.Warn("appointment created locally, backend unavailable", "confirmation", confirmation)
	}

	h.sctx.Set(KeyConfirmationNumber, confirmation)
	h.sctx.Set(KeyAppointmentTime, selected)
	h.sctx.Set(KeyLastDomainAction, ActionBooking)
	h.metrics.IncCallEvent("booking")

	result := BookingResult{Booked: true, ConfirmationNumber: confirmation, AppointmentTime: selected}
	return result, To(h.AppointmentConfirmedNode()), nil
}

func (h *Handlers) lookupReschedule(ctx context.Context, args Args) (Result, NextNode, error) {
	within, appointmentTime := h.lookupExisting(ctx, args)
	result := RescheduleCheckResult{
		WithinWindow:           within,
		CurrentAppointmentTime: appointmentTime,
		Proceed:                true,
	}
	return result, To(h.RescheduleNewTimeNode(within)), nil
}

func (h *Handlers) lookupCancel(ctx context.Context, args Args) (Result, NextNode, error) {
	within, appointmentTime := h.lookupExisting(ctx, args)
	result := CancelCheckResult{
		WithinWindow:           within,
		CurrentAppointmentTime: appointmentTime,
		Decision:               "pending",
	}
	if within {
		result.FeeUSD = policy.CancellationFeeUSD
	}
	return result, To(h.CancelDecisionNode(within, appointmentTime)), nil
}

// lookupExisting finds the caller's appointment, preferring an explicit
// confirmation number over the session's booking, then scanning upcoming
// appointments for the recognized contact, and evaluates the cancellation
// window against it. Without any match it synthesizes a safely distant
// appointment so the conversation can proceed. A looked-up confirmation is
// stored under its own key; KeyConfirmationNumber only ever means a booking
// made in this call.
func (h *Handlers) lookupExisting(ctx context.Context, args Args) (within bool, appointmentTime string) {
	if name, ok := args.String("customer_name"); ok {
		h.sctx.Set(KeyLookupName, name)
	}
	if phone, ok := args.String("phone_number"); ok {
		h.sctx.Set(KeyLookupPhone, phone)
	}

	if code, ok := args.String("confirmation_number"); ok && h.api != nil {
		if appt := h.api.GetAppointmentByConfirmation(ctx, code); appt != nil {
			h.sctx.Set(KeyAppointmentID, appt.ID)
			h.sctx.Set(KeyLookupConfirmation, appt.ConfirmationNumber)
			appointmentTime = appt.ScheduledTime
		}
	}
	if appointmentTime == "" {
		appointmentTime = h.sctx.GetString(KeyAppointmentTime, "")
	}
	if appointmentTime == "" && h.api != nil {
		if contactID := h.sctx.GetString(KeyContactID, ""); contactID != "" {
			for _, appt := range h.api.UpcomingAppointments(ctx) {
				if appt.ContactID != contactID {
					continue
				}
				h.sctx.Set(KeyAppointmentID, appt.ID)
				h.sctx.Set(KeyLookupConfirmation, appt.ConfirmationNumber)
				appointmentTime = appt.ScheduledTime
				break
			}
		}
	}
	if appointmentTime == "" {
		appointmentTime = h.Now().Add(48 * time.Hour).Format(time.RFC3339)
		h.logger.Warn("no appointment on record, assuming one outside the cancellation window")
	}

	h.sctx.Set(KeyAppointmentTime, appointmentTime)
	within = policy.WithinCancellationWindowAt(h.Now(), appointmentTime)
	h.sctx.Set(KeyWithinWindow, within)
	return within, appointmentTime
}

func (h *Handlers) rescheduleToNewTime(ctx context.Context, args Args) (Result, NextNode, error) {
	newDatetime := args.StringOr("new_datetime", "")
	within := h.sctx.GetBool(KeyWithinWindow)

	start, err := policy.ParseTimestamp(newDatetime)
	if err != nil {
		h.logger.Warn("new datetime unparseable", "value", newDatetime)
		result := AvailabilityResult{
			Available:        false,
			AlternativeTimes: []string{"9:00 AM", "11:00 AM", "2:00 PM"},
		}
		return result, To(h.RescheduleNewTimeNode(within)), nil
	}
	end := start.Add(time.Duration(h.durationHours) * time.Hour)

	if id := h.sctx.GetString(KeyAppointmentID, ""); id != "" && h.api != nil {
		updated := h.api.UpdateAppointment(ctx, id, schedule.AppointmentUpdate{
			ScheduledTime: start.Format(time.RFC3339),
			EndTime:       end.Format(time.RFC3339),
		})
		if updated == nil {
			h.logger.Warn("reschedule not persisted, backend unavailable", "appointment_id", id)
		}
	} else {
		h.logger.Warn("rescheduling without a persisted appointment")
	}

	h.sctx.Set(KeySelectedDatetime, newDatetime)
	h.sctx.Set(KeyAppointmentTime, newDatetime)
	h.sctx.Set(KeyRescheduled, true)
	h.sctx.Set(KeyLastDomainAction, ActionReschedule)
	h.metrics.IncCallEvent("reschedule")

	result := AvailabilityResult{
		Available:        true,
		PreferredDate:    start.Format("2006-01-02"),
		PreferredTime:    start.Format("3:04 PM"),
		SelectedDatetime: newDatetime,
	}
	return result, To(h.AppointmentConfirmedNode()), nil
}

func (h *Handlers) proceedWithCancel(ctx context.Context, args Args) (Result, NextNode, error) {
	id := h.sctx.GetString(KeyAppointmentID, "")
	if id != "" && h.api != nil {
		if cancelled := h.api.CancelAppointment(ctx, id); cancelled == nil {
			h.logger.Warn("cancellation not persisted, backend unavailable", "appointment_id", id)
		}
	} else {
		h.logger.Warn("cancelling without a persisted appointment")
	}

	h.sctx.Set(KeyCancelled, true)
	h.sctx.Set(KeyLastDomainAction, ActionCancellation)
	h.metrics.IncCallEvent("cancellation")

	return CancelResult{Cancelled: true, AppointmentID: id}, To(h.AppointmentConfirmedNode()), nil
}

func (h *Handlers) keepAppointment(ctx context.Context, args Args) (Result, NextNode, error) {
	h.sctx.Set(KeyKeptAppointment, true)
	return nil, To(h.AppointmentConfirmedNode()), nil
}

func (h *Handlers) productInquiry(ctx context.Context, args Args) (Result, NextNode, error) {
	nextAction := args.StringOr("next_action", "done")
	result := IntentResult{Intent: nextAction}
	switch nextAction {
	case "schedule":
		return result, To(h.ServiceTypeNode()), nil
	case "more_questions":
		return result, To(h.ProductInfoNode()), nil
	default:
		return result, To(h.EndNode()), nil
	}
}

func (h *Handlers) endConversation(ctx context.Context, args Args) (Result, NextNode, error) {
	return nil, End(), nil
}
