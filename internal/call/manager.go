package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldofdoors/doorline/internal/callstore"
	"github.com/worldofdoors/doorline/internal/events"
	"github.com/worldofdoors/doorline/internal/flow"
	"github.com/worldofdoors/doorline/internal/observability"
)

var ErrNotFound = errors.New("call session not found")

// Manager owns every live call session. Sessions share nothing but the
// gateway's connection pool, which is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	gateway           flow.SchedulingAPI
	store             callstore.Store
	publisher         events.Publisher
	logger            *slog.Logger
	metrics           *observability.Metrics
	inactivityTimeout time.Duration
	durationHours     int
}

type ManagerConfig struct {
	Gateway           flow.SchedulingAPI
	Store             callstore.Store
	Publisher         events.Publisher
	Logger            *slog.Logger
	Metrics           *observability.Metrics
	InactivityTimeout time.Duration
	DurationHours     int
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 3 * time.Minute
	}
	if cfg.DurationHours <= 0 {
		cfg.DurationHours = 2
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		gateway:           cfg.Gateway,
		store:             cfg.Store,
		publisher:         cfg.Publisher,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		inactivityTimeout: cfg.InactivityTimeout,
		durationHours:     cfg.DurationHours,
	}
}

// Create starts a new call session: fresh context, fresh engine, greeting
// node active. With waitForUser false the assistant speaks first.
func (m *Manager) Create(ctx context.Context, callerPhone string, waitForUser bool) *Session {
	id := uuid.NewString()
	logger := m.logger.With("call_id", id)

	sctx := flow.NewContext()
	handlers := flow.NewHandlers(m.gateway, sctx, logger, m.metrics, m.durationHours)
	engine := flow.NewEngine(m.metrics)

	s := &Session{
		ID:             id,
		CallerPhone:    callerPhone,
		StartedAt:      time.Now().UTC(),
		status:         StatusActive,
		lastActivityAt: time.Now().UTC(),
		engine:         engine,
		handlers:       handlers,
		sctx:           sctx,
		logger:         logger,
	}

	handlers.InitializeCallerContext(ctx, callerPhone)
	engine.Activate(handlers.GreetingNode(waitForUser))

	m.mu.Lock()
	m.sessions[id] = s
	active := m.activeCountLocked()
	m.mu.Unlock()

	m.metrics.IncCallEvent("started")
	m.metrics.SetActiveCalls(active)
	logger.Info("call started", "caller_phone", callerPhone, "wait_for_user", waitForUser)
	return s
}

func (m *Manager) Get(callID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End terminates a session: outcome classification, context clear, durable
// record, outcome event. Safe to call more than once.
func (m *Manager) End(ctx context.Context, callID string, reason EndReason) (Snapshot, error) {
	s, err := m.Get(callID)
	if err != nil {
		return Snapshot{}, err
	}
	m.finish(ctx, s, reason)
	return s.Snapshot(), nil
}

func (m *Manager) finish(ctx context.Context, s *Session, reason EndReason) {
	rec, first := s.end(reason)
	if !first {
		return
	}

	m.metrics.IncCallEvent("ended")
	m.metrics.IncCallOutcome(rec.Outcome)

	if m.store != nil {
		if err := m.store.SaveCall(ctx, rec); err != nil {
			s.logger.Error("call record not persisted", "error", err)
		}
	}
	err := m.publisher.PublishOutcome(ctx, events.CallOutcome{
		CallID:             rec.ID,
		CallerPhone:        rec.CallerPhone,
		Outcome:            rec.Outcome,
		EndReason:          rec.EndReason,
		ConfirmationNumber: rec.ConfirmationNumber,
		AppointmentTime:    rec.AppointmentTime,
		EndedAt:            rec.EndedAt,
	})
	if err != nil {
		s.logger.Error("outcome event not published", "error", err)
	}

	m.mu.RLock()
	active := m.activeCountLocked()
	m.mu.RUnlock()
	m.metrics.SetActiveCalls(active)
}

// Remove drops an ended session from the registry once the transport is
// done with it.
func (m *Manager) Remove(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	count := 0
	for _, s := range m.sessions {
		if s.Snapshot().Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor expires sessions with no activity past the inactivity
// timeout. An expired caller most likely hung up without the transport
// telling us.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive(ctx)
			}
		}
	}()
}

func (m *Manager) expireInactive(ctx context.Context) {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.RLock()
	for _, s := range m.sessions {
		snap := s.Snapshot()
		if snap.Status != StatusActive {
			continue
		}
		if now.Sub(snap.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		expired = append(expired, s)
	}
	m.mu.RUnlock()

	for _, s := range expired {
		s.logger.Warn("call expired after inactivity")
		m.finish(ctx, s, EndReasonExpired)
	}
}
