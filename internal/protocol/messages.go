// Package protocol defines the websocket payloads exchanged with the
// model-facing voice pipeline driving a call.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/worldofdoors/doorline/internal/flow"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeFunctionCall  MessageType = "function_call"
	TypeClientControl MessageType = "client_control"
	TypeNodeActive    MessageType = "node_active"
	TypeActionResult  MessageType = "action_result"
	TypeCallEnded     MessageType = "call_ended"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// FunctionCall is the pipeline relaying a model function invocation.
type FunctionCall struct {
	Type         MessageType    `json:"type"`
	CallID       string         `json:"call_id"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Action       string         `json:"action"`
	Arguments    map[string]any `json:"arguments,omitempty"`
}

// ClientControl carries out-of-band transport signals, "hangup" above all.
type ClientControl struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Action string      `json:"action"`
}

// NodeActive announces the newly active node: its prompt and the function
// schemas the model may call while it holds.
type NodeActive struct {
	Type               MessageType           `json:"type"`
	CallID             string                `json:"call_id"`
	Node               string                `json:"node"`
	Prompt             string                `json:"prompt"`
	RoleMessage        string                `json:"role_message,omitempty"`
	RespondImmediately bool                  `json:"respond_immediately"`
	Functions          []flow.FunctionSchema `json:"functions"`
}

// ActionResult reports what a dispatched action did.
type ActionResult struct {
	Type         MessageType `json:"type"`
	CallID       string      `json:"call_id"`
	InvocationID string      `json:"invocation_id,omitempty"`
	Action       string      `json:"action"`
	Result       any         `json:"result,omitempty"`
}

type CallEnded struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Outcome   string      `json:"outcome"`
	EndReason string      `json:"end_reason"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// NewNodeActive renders the outbound announcement for a node.
func NewNodeActive(callID string, node *flow.Node) NodeActive {
	return NodeActive{
		Type:               TypeNodeActive,
		CallID:             callID,
		Node:               node.Name,
		Prompt:             node.Prompt,
		RoleMessage:        node.RoleMessage,
		RespondImmediately: node.RespondImmediately,
		Functions:          node.Schemas(),
	}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeFunctionCall:
		var msg FunctionCall
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Action == "" {
			return nil, errors.New("invalid function_call")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
