package flow

import (
	"fmt"
	"strings"

	"github.com/worldofdoors/doorline/internal/policy"
	"github.com/worldofdoors/doorline/internal/schedule"
)

// Node constructors. Prompts are rendered at construction time with the
// live clock so relative dates resolve correctly for the model.

// GreetingNode is the entry node: greet, detect intent. With waitForUser
// false the assistant speaks first.
func (h *Handlers) GreetingNode(waitForUser bool) *Node {
	now := h.Now()
	roleMessage := fmt.Sprintf(`You are Jordan, an inbound customer service representative for World of Doors, a garage door service company.

IMPORTANT CONTEXT:
- Today's date is: %s
- Current time is: %s
- Use this information when discussing appointment dates and times
- When the customer says "tomorrow", you know what date that is

Speak clearly, professionally and naturally. Use contractions and be conversational, but avoid excessive filler words. This is a voice conversation, so avoid special characters, emojis and overly formal language.`,
		now.Format("Monday, January 2, 2006"), now.Format("3:04 PM"))

	prompt := `Warmly greet the customer and ask how you can help them today.

Listen for:
- New appointment scheduling
- Rescheduling an existing appointment
- Cancelling an appointment
- Questions about products or services

Example greeting: "Hey! Thanks for calling World of Doors, this is Jordan. How can I help you today?"

Keep it brief and natural.`

	if known := h.sctx.GetString(KeyKnownCustomerName, ""); known != "" {
		prompt += fmt.Sprintf("\n\nThe caller's number matches an existing customer named %s. Greet them by first name.", known)
	}

	return &Node{
		Name:               "greeting",
		RoleMessage:        roleMessage,
		Prompt:             prompt,
		RespondImmediately: !waitForUser,
		Actions: []Action{
			{
				Name:        "new_appointment",
				Description: "Customer wants to schedule a new appointment",
				Handler:     h.handleNewAppointment,
			},
			h.rescheduleRequestAction(),
			{
				Name:        "cancel_appointment",
				Description: "Customer wants to cancel an appointment",
				Params:      lookupParams(),
				Handler:     h.handleCancelRequest,
			},
			{
				Name:        "product_info",
				Description: "Customer has questions about products or services",
				Handler:     h.handleProductInfoRequest,
			},
		},
	}
}

func (h *Handlers) rescheduleRequestAction() Action {
	return Action{
		Name:        "reschedule_appointment",
		Description: "Customer wants to reschedule an existing appointment",
		Params:      lookupParams(),
		Handler:     h.handleRescheduleRequest,
	}
}

func lookupParams() []Param {
	return []Param{
		{Name: "customer_name", Type: "string", Description: "Customer's name for lookup", Required: true},
		{Name: "phone_number", Type: "string", Description: "Customer's phone number for lookup", Required: true},
	}
}

func (h *Handlers) ServiceTypeNode() *Node {
	return &Node{
		Name: "service_type",
		Prompt: `Ask briefly what's going on with their garage door.

Example: "Okay, what's going on with the door?"

Once they describe the issue, call collect_service_type with the details.`,
		Actions: []Action{
			{
				Name:        "collect_service_type",
				Description: "Call this IMMEDIATELY after the customer tells you what service they need. This saves their service type and moves to the next step.",
				Params: []Param{
					{
						Name:        "service_type",
						Type:        "string",
						Description: "Type of garage door service needed",
						Enum:        serviceTypeEnum(),
						Required:    true,
					},
					{
						Name:        "issue_description",
						Type:        "string",
						Description: "Brief description of the garage door issue",
					},
				},
				Handler: h.collectServiceType,
			},
		},
	}
}

// serviceTypeEnum renders the backend's service catalog in the lowercase
// form the model speaks.
func serviceTypeEnum() []string {
	types := schedule.ServiceTypes()
	out := make([]string, 0, len(types))
	for _, st := range types {
		out = append(out, strings.ToLower(string(st)))
	}
	return out
}

func (h *Handlers) CustomerInfoNode() *Node {
	return &Node{
		Name: "customer_info",
		Prompt: `Get name, phone, email (optional) and service address efficiently.

Example: "Great. Can I get your name, phone number, and the service address?"

Call collect_customer_info once you have the details.`,
		Actions: []Action{
			{
				Name:        "collect_customer_info",
				Description: "Call this IMMEDIATELY after collecting the customer's name, phone and address. This saves their information and moves to scheduling.",
				Params: []Param{
					{Name: "customer_name", Type: "string", Description: "Customer's full name", Required: true},
					{Name: "phone_number", Type: "string", Description: "Customer's contact phone number", Required: true},
					{Name: "email", Type: "string", Description: "Customer's email address (optional)"},
					{Name: "service_address", Type: "string", Description: "Address where service is needed", Required: true},
				},
				Handler: h.collectCustomerInfo,
			},
		},
	}
}

func (h *Handlers) ScheduleAppointmentNode() *Node {
	now := h.Now()
	return &Node{
		Name: "schedule_appointment",
		Prompt: fmt.Sprintf(`Ask when they'd like to schedule.

Today is: %s
Tomorrow is: %s
Hours: 9 AM - 6 PM, Mon-Sat

Example: "When works best for you?"

Call check_availability with their preferred date and time.`,
			now.Format("Monday, January 2, 2006"),
			now.AddDate(0, 0, 1).Format("Monday, January 2, 2006")),
		Actions: []Action{h.checkAvailabilityAction()},
	}
}

func (h *Handlers) checkAvailabilityAction() Action {
	return Action{
		Name:        "check_availability",
		Description: "Call this IMMEDIATELY after the customer tells you their preferred date and time. This checks calendar availability. Do not wait or say anything else, call this function right away.",
		Params: []Param{
			{
				Name:        "preferred_date",
				Type:        "string",
				Description: "Preferred date in YYYY-MM-DD format (e.g. '2025-10-25'). Convert relative dates like 'tomorrow' or 'next Monday' to this format.",
				Required:    true,
			},
			{
				Name:        "preferred_time",
				Type:        "string",
				Description: "Preferred time (e.g. '2:00 PM', '14:00', '10 AM'). Must be between 9 AM and 6 PM.",
				Required:    true,
			},
		},
		Handler: h.checkAvailability,
	}
}

func (h *Handlers) ConfirmAppointmentNode() *Node {
	return &Node{
		Name: "confirm_appointment",
		Prompt: `Quickly confirm the key details:

Example: "Okay, so {{service_type}} on {{date}} at {{time}}. Sound good?"

When they confirm, call confirm_booking.`,
		Actions: []Action{
			{
				Name:        "confirm_booking",
				Description: "Call this IMMEDIATELY when the customer confirms the appointment is correct (says yes, looks good, that's right, etc). This creates the appointment in the system.",
				Params: []Param{
					{Name: "appointment_time", Type: "string", Description: "The confirmed appointment date and time", Required: true},
				},
				Handler: h.confirmBooking,
			},
		},
	}
}

// AppointmentConfirmedNode wraps up the call. Its prompt reflects what
// actually happened in this session: a cancellation, a kept appointment or
// a booking.
func (h *Handlers) AppointmentConfirmedNode() *Node {
	var prompt string
	switch {
	case h.sctx.GetBool(KeyCancelled):
		prompt = `Confirm the cancellation warmly.

Say: "Done. Your appointment is cancelled. If you need anything in the future, just give us a call. Anything else I can help with?"

Be understanding and positive.`
	case h.sctx.GetBool(KeyKeptAppointment):
		prompt = fmt.Sprintf(`The customer is keeping their appointment at %s.

Say: "Great, your appointment stays exactly as it was. We'll see you then. Anything else I can help with?"

Keep it short and friendly.`, h.sctx.GetString(KeyAppointmentTime, "the scheduled time"))
	default:
		prompt = fmt.Sprintf(`Briefly confirm and wrap up.

Example: "Perfect! Your confirmation number is %s. You'll get an email, and we'll call 30 minutes before. Anything else?"

Keep it short and friendly.`, h.sctx.GetString(KeyConfirmationNumber, "{{confirmation_number}}"))
	}

	return &Node{
		Name:    "appointment_confirmed",
		Prompt:  prompt,
		Actions: []Action{h.endConversationAction()},
	}
}

func (h *Handlers) NoAvailabilityNode(alternatives []string) *Node {
	return &Node{
		Name: "no_availability",
		Prompt: fmt.Sprintf(`Apologize that the requested time isn't available and suggest alternatives.

Say something like: "That time's booked, but I have these slots open: %s. Would any of those work?"

Be positive and helpful. Once they choose an alternative, use check_availability again.`,
			strings.Join(alternatives, ", ")),
		Actions: []Action{h.checkAvailabilityAction(), h.endConversationAction()},
	}
}

func (h *Handlers) RescheduleLookupNode() *Node {
	return &Node{
		Name: "reschedule_lookup",
		Prompt: `Look up the customer's existing appointment using the information they provided.

Say something like: "No problem. Let me pull up your appointment..."

If they have their confirmation number handy, include it. Use the lookup_reschedule function to find their appointment and check the 24-hour policy.`,
		Actions: []Action{
			{
				Name:        "lookup_reschedule",
				Description: "Look up the appointment and check if rescheduling is allowed",
				Params:      lookupParamsWithConfirmation(),
				Handler:     h.lookupReschedule,
			},
		},
	}
}

func lookupParamsWithConfirmation() []Param {
	return append(lookupParams(), Param{
		Name:        "confirmation_number",
		Type:        "string",
		Description: "Appointment confirmation number, if the customer has it",
	})
}

func (h *Handlers) RescheduleNewTimeNode(withinWindow bool) *Node {
	now := h.Now()
	prompt := fmt.Sprintf(`Help the customer choose a new date and time.

IMPORTANT DATE CONTEXT:
- Today is: %s
- Tomorrow is: %s
- Business hours: 9 AM to 6 PM, Monday through Saturday
`,
		now.Format("Monday, January 2, 2006"),
		now.AddDate(0, 0, 1).Format("Monday, January 2, 2006"))

	if withinWindow {
		prompt += `
The appointment is within 24 hours. Mention: "Just so you know, since it's within 24 hours, there might be a rescheduling fee. Still want to reschedule?"
`
	}

	prompt += `
Then ask: "Okay, when works better for you?"

Once they provide it, use reschedule_to_new_time to update the appointment.`

	return &Node{
		Name:   "reschedule_new_time",
		Prompt: prompt,
		Actions: []Action{
			{
				Name:        "reschedule_to_new_time",
				Description: "Reschedule the appointment to a new date and time",
				Params: []Param{
					{Name: "new_datetime", Type: "string", Description: "New appointment date and time", Required: true},
				},
				Handler: h.rescheduleToNewTime,
			},
		},
	}
}

func (h *Handlers) CancelLookupNode() *Node {
	return &Node{
		Name: "cancel_lookup",
		Prompt: `Look up the customer's appointment for cancellation.

Be understanding: "I understand. Let me look that up for you..."

Use the lookup_cancel function to find their appointment.`,
		Actions: []Action{
			{
				Name:        "lookup_cancel",
				Description: "Look up the appointment for cancellation",
				Params:      lookupParamsWithConfirmation(),
				Handler:     h.lookupCancel,
			},
		},
	}
}

func (h *Handlers) CancelDecisionNode(withinWindow bool, appointmentTime string) *Node {
	var prompt string
	if withinWindow {
		prompt = fmt.Sprintf(`The appointment is within 24 hours. Explain the cancellation fee.

Say: "Your appointment's coming up soon at %s, so there's a $%d cancellation fee. Do you still want to cancel, or would you prefer to reschedule?"

Listen for their decision.`, appointmentTime, policy.CancellationFeeUSD)
	} else {
		prompt = fmt.Sprintf(`The appointment is not within 24 hours.

Say: "I found your appointment for %s. I can cancel that for you. Should I go ahead, or would you rather reschedule?"

Listen for their decision.`, appointmentTime)
	}

	return &Node{
		Name:   "cancel_decision",
		Prompt: prompt,
		Actions: []Action{
			{
				Name:        "proceed_with_cancel",
				Description: "Customer confirms they want to cancel",
				Handler:     h.proceedWithCancel,
			},
			h.rescheduleRequestAction(),
			{
				Name:        "keep_appointment",
				Description: "Customer decides to keep their appointment",
				Handler:     h.keepAppointment,
			},
		},
	}
}

func (h *Handlers) ProductInfoNode() *Node {
	return &Node{
		Name: "product_info",
		Prompt: `Provide information about World of Doors services confidently and naturally.

Say something like: "Sure! We handle garage door repair, installation, maintenance, and emergency call-outs. We're known for quality work and reliable service with competitive pricing. We usually have same-day or next-day appointments available. Would you like to schedule a service?"

Be helpful and conversational.`,
		Actions: []Action{
			{
				Name:        "product_inquiry_action",
				Description: "What the customer wants to do after getting product info",
				Params: []Param{
					{
						Name:        "next_action",
						Type:        "string",
						Description: "Customer's next desired action",
						Enum:        []string{"schedule", "more_questions", "done"},
						Required:    true,
					},
				},
				Handler: h.productInquiry,
			},
		},
	}
}

// EndNode is the farewell. Activating it terminates the flow.
func (h *Handlers) EndNode() *Node {
	return &Node{
		Name: "end",
		Prompt: `Thank them warmly and end the conversation.

Say something like: "Perfect! Alright, we'll see you then... have a great day!"

Be warm and genuine.`,
		Terminal: true,
	}
}

func (h *Handlers) endConversationAction() Action {
	return Action{
		Name:        "end_conversation",
		Description: "End the conversation",
		Handler:     h.endConversation,
	}
}
