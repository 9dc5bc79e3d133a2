package call

import "github.com/worldofdoors/doorline/internal/flow"

// Outcome is the final classification of a call, computed once at
// termination.
type Outcome string

const (
	OutcomeBooked        Outcome = "BOOKED"
	OutcomeRescheduled   Outcome = "RESCHEDULED"
	OutcomeCancelled     Outcome = "CANCELLED"
	OutcomeNoChange      Outcome = "NO_CHANGE"
	OutcomeNotInterested Outcome = "NOT_INTERESTED"
	OutcomeNoResponse    Outcome = "NO_RESPONSE"
)

// DetermineOutcome classifies a finished call from its session context.
// Priority matters: a cancel followed by a re-booking in the same call must
// read as BOOKED, because the booking was the last domain action.
func DetermineOutcome(sctx *flow.Context) Outcome {
	last := sctx.GetString(flow.KeyLastDomainAction, "")
	switch {
	case sctx.GetBool(flow.KeyCancelled) && last == flow.ActionCancellation:
		return OutcomeCancelled
	case sctx.GetBool(flow.KeyRescheduled):
		return OutcomeRescheduled
	case sctx.GetString(flow.KeyConfirmationNumber, "") != "":
		return OutcomeBooked
	case sctx.GetBool(flow.KeyKeptAppointment):
		return OutcomeNoChange
	case sctx.GetBool(flow.KeyProductInfoOnly):
		return OutcomeNotInterested
	default:
		return OutcomeNoResponse
	}
}
