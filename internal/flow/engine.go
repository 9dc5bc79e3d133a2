package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/worldofdoors/doorline/internal/observability"
)

var (
	// ErrActionNotAllowed marks a dispatch of an action outside the active
	// node's declared set. It is a contract violation: fatal to the call,
	// never silently routed.
	ErrActionNotAllowed = errors.New("action not available on active node")

	// ErrCallEnded marks a dispatch after the flow reached its terminal
	// state.
	ErrCallEnded = errors.New("call flow already ended")

	// ErrMissingArgument marks a dispatch that omitted a required argument
	// declared by the action's schema.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrNoActiveNode marks a dispatch before the flow was activated.
	ErrNoActiveNode = errors.New("no active node")
)

// Engine drives the conversation state machine. Exactly one node is active
// at a time; the engine holds no domain state beyond that pointer, all
// domain data lives in the session Context.
type Engine struct {
	mu      sync.Mutex
	current *Node
	ended   bool
	metrics *observability.Metrics
}

func NewEngine(metrics *observability.Metrics) *Engine {
	return &Engine{metrics: metrics}
}

// Activate replaces the active node. Activating a terminal node ends the
// flow while keeping the node's prompt available for the farewell.
func (e *Engine) Activate(n *Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = n
	if n != nil && n.Terminal {
		e.ended = true
	}
}

// Current returns the active node, nil before activation or after the bare
// terminal sentinel.
func (e *Engine) Current() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Ended reports whether the flow reached its terminal state.
func (e *Engine) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Dispatch runs the named action against the active node and advances to
// the node the handler returns. It returns the handler's result and the new
// active node (nil once the flow terminates).
func (e *Engine) Dispatch(ctx context.Context, name string, args Args) (Result, *Node, error) {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return nil, nil, ErrCallEnded
	}
	node := e.current
	e.mu.Unlock()

	if node == nil {
		return nil, nil, ErrNoActiveNode
	}

	action, ok := node.Action(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q on node %q", ErrActionNotAllowed, name, node.Name)
	}
	for _, p := range action.Params {
		if !p.Required {
			continue
		}
		if _, ok := args.String(p.Name); !ok {
			return nil, nil, fmt.Errorf("%w: %q for action %q", ErrMissingArgument, p.Name, name)
		}
	}

	start := time.Now()
	result, next, err := action.Handler(ctx, args)
	e.metrics.ObserveHandlerLatency(time.Since(start))
	if err != nil {
		e.metrics.IncHandlerError(name)
		return nil, nil, fmt.Errorf("action %q: %w", name, err)
	}

	e.metrics.IncFlowTransition(node.Name, name)

	e.mu.Lock()
	defer e.mu.Unlock()
	if next.Terminal() {
		e.ended = true
		e.current = next.Node()
		return result, e.current, nil
	}
	e.current = next.Node()
	return result, e.current, nil
}
