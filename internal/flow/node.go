package flow

import "context"

// HandlerFunc executes one model-invoked action and names where the
// conversation goes next. A non-nil error is an unexpected failure; expected
// degradation (backend absent, bad input) is expressed through the Result
// and a recovery transition instead.
type HandlerFunc func(ctx context.Context, args Args) (Result, NextNode, error)

// Param declares one named argument of an action.
type Param struct {
	Name        string
	Type        string
	Description string
	Enum        []string
	Required    bool
}

// Action is a named, schema-typed callable available while its node is
// active.
type Action struct {
	Name        string
	Description string
	Params      []Param
	Handler     HandlerFunc
}

// RequiredParams returns the names of the action's required arguments.
func (a *Action) RequiredParams() []string {
	var out []string
	for _, p := range a.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Node is a vertex in the conversation graph: a prompt rendered with live
// date context at construction time, and the set of actions legal while the
// node is active. A Terminal node ends the call once activated.
type Node struct {
	Name        string
	RoleMessage string
	Prompt      string
	Actions     []Action
	Terminal    bool

	// RespondImmediately makes the assistant speak first on activation
	// (greeting-first mode) instead of waiting for the caller.
	RespondImmediately bool
}

// Action finds an action by name in this node's legal set.
func (n *Node) Action(name string) (*Action, bool) {
	for i := range n.Actions {
		if n.Actions[i].Name == name {
			return &n.Actions[i], true
		}
	}
	return nil, false
}

// NextNode is the tagged result of a handler: either a concrete node or the
// terminal sentinel. The zero value is invalid; construct with To or End.
type NextNode struct {
	node *Node
	end  bool
}

// To continues the conversation at node n.
func To(n *Node) NextNode {
	return NextNode{node: n}
}

// End terminates the call.
func End() NextNode {
	return NextNode{end: true}
}

// Terminal reports whether this transition ends the call, either via the
// sentinel or by targeting a terminal node.
func (n NextNode) Terminal() bool {
	return n.end || (n.node != nil && n.node.Terminal)
}

// Node returns the target node, nil for the bare sentinel.
func (n NextNode) Node() *Node {
	return n.node
}
