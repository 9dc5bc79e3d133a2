// Package call binds one phone call to its flow engine, session context and
// lifecycle: creation, action dispatch, termination with outcome
// classification and cleanup.
package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/flow"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// EndReason records why a call terminated.
type EndReason string

const (
	EndReasonCompleted    EndReason = "completed"
	EndReasonDisconnected EndReason = "disconnected"
	EndReasonExpired      EndReason = "expired"
	EndReasonError        EndReason = "error"
)

var ErrSessionEnded = errors.New("call session already ended")

// Session is one live call. The session context and active-node pointer are
// owned exclusively by it; utterances for a call arrive in order, so at most
// one handler runs at a time, but status reads may come from other
// goroutines.
type Session struct {
	ID          string
	CallerPhone string
	StartedAt   time.Time

	mu             sync.Mutex
	status         Status
	outcome        Outcome
	endReason      EndReason
	endedAt        time.Time
	lastActivityAt time.Time
	finalNode      string

	engine   *flow.Engine
	handlers *flow.Handlers
	sctx     *flow.Context
	logger   *slog.Logger
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID             string    `json:"call_id"`
	CallerPhone    string    `json:"caller_phone,omitempty"`
	Status         Status    `json:"status"`
	Outcome        Outcome   `json:"outcome,omitempty"`
	EndReason      EndReason `json:"end_reason,omitempty"`
	ActiveNode     string    `json:"active_node,omitempty"`
	FlowEnded      bool      `json:"flow_ended"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:             s.ID,
		CallerPhone:    s.CallerPhone,
		Status:         s.status,
		Outcome:        s.outcome,
		EndReason:      s.endReason,
		FlowEnded:      s.engine.Ended(),
		StartedAt:      s.StartedAt,
		LastActivityAt: s.lastActivityAt,
	}
	if s.status == StatusActive {
		if node := s.engine.Current(); node != nil {
			snap.ActiveNode = node.Name
		}
	} else {
		snap.ActiveNode = s.finalNode
	}
	return snap
}

// ActiveNode returns the current node, nil once the flow terminated on the
// bare sentinel.
func (s *Session) ActiveNode() *flow.Node {
	return s.engine.Current()
}

// FlowEnded reports whether the conversation graph reached its terminal
// state. The session itself stays open until End runs cleanup.
func (s *Session) FlowEnded() bool {
	return s.engine.Ended()
}

// HandleAction dispatches one model-invoked action. Engine sentinel errors
// pass through unwrapped so the transport can classify protocol violations.
func (s *Session) HandleAction(ctx context.Context, name string, args flow.Args) (flow.Result, *flow.Node, error) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return nil, nil, ErrSessionEnded
	}
	s.lastActivityAt = time.Now().UTC()
	s.mu.Unlock()

	return s.engine.Dispatch(ctx, name, args)
}

// end classifies the outcome, snapshots the durable record and clears the
// session context. Idempotent: only the first call wins.
func (s *Session) end(reason EndReason) (callstore.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return callstore.Record{}, false
	}

	s.status = StatusEnded
	s.endReason = reason
	s.endedAt = time.Now().UTC()
	s.outcome = DetermineOutcome(s.sctx)
	if node := s.engine.Current(); node != nil {
		s.finalNode = node.Name
	}

	rec := callstore.Record{
		ID:                 s.ID,
		CallerPhone:        s.CallerPhone,
		Outcome:            string(s.outcome),
		EndReason:          string(reason),
		FinalNode:          s.finalNode,
		ServiceType:        s.sctx.GetString(flow.KeyServiceType, ""),
		ConfirmationNumber: s.sctx.GetString(flow.KeyConfirmationNumber, s.sctx.GetString(flow.KeyLookupConfirmation, "")),
		AppointmentTime:    s.sctx.GetString(flow.KeyAppointmentTime, ""),
		StartedAt:          s.StartedAt,
		EndedAt:            s.endedAt,
	}

	// Context is cleared on every exit path, after the record snapshot.
	s.sctx.Clear()

	s.logger.Info("call ended", "outcome", s.outcome, "reason", reason, "final_node", s.finalNode)
	return rec, true
}
