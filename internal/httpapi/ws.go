package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldofdoors/doorline/internal/call"
	"github.com/worldofdoors/doorline/internal/flow"
	"github.com/worldofdoors/doorline/internal/protocol"
)

// handleCallWS attaches the voice pipeline to a call. The pipeline sends
// function_call and client_control frames; the server answers with
// node_active, action_result, call_ended and error_event frames. Frames for
// one call are processed strictly in order.
func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id", "query parameter call_id is required")
		return
	}

	sess, err := s.calls.Get(callID)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.IncCallEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pings := time.NewTicker(s.pingInterval)
		defer pings.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pings.C:
				_ = conn.SetWriteDeadline(writeDeadline())
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(writeDeadline())
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the outbound
			// queue is saturated.
			s.logger.Warn("outbound queue full, dropping frame", "call_id", callID)
		}
	}

	// Announce the active node so the pipeline can prompt the model.
	if node := sess.ActiveNode(); node != nil {
		send(protocol.NewNodeActive(callID, node))
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Pipeline dropped: treat as the caller hanging up.
			s.endOverWS(ctx, sess, call.EndReasonDisconnected, send)
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				CallID:    callID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.Action == "hangup" {
				s.endOverWS(ctx, sess, call.EndReasonDisconnected, send)
				break readLoop
			}
		case protocol.FunctionCall:
			if done := s.dispatchOverWS(ctx, sess, msg, send); done {
				break readLoop
			}
		}
	}

	// Let the writer drain queued frames (the final call_ended above all)
	// before tearing down.
	close(outbound)
	<-writerDone
	s.metrics.IncCallEvent("ws_disconnected")
}

// dispatchOverWS runs one function call and reports back. It returns true
// once the call is over and the socket should wind down.
func (s *Server) dispatchOverWS(ctx context.Context, sess *call.Session, msg protocol.FunctionCall, send func(any)) bool {
	result, node, err := sess.HandleAction(ctx, msg.Action, flow.Args(msg.Arguments))
	if err != nil {
		retryable := false
		code := "handler_failed"
		reason := call.EndReasonError
		switch {
		case errors.Is(err, call.ErrSessionEnded) || errors.Is(err, flow.ErrCallEnded):
			code = "call_ended"
			reason = call.EndReasonCompleted
		case errors.Is(err, flow.ErrActionNotAllowed) || errors.Is(err, flow.ErrMissingArgument):
			code = "action_not_allowed"
			s.logger.Error("protocol violation", "call_id", sess.ID, "action", msg.Action, "error", err)
		default:
			s.logger.Error("action handler failed", "call_id", sess.ID, "action", msg.Action, "error", err)
		}
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    sess.ID,
			Code:      code,
			Source:    "flow",
			Retryable: retryable,
			Detail:    err.Error(),
		})
		s.endOverWS(ctx, sess, reason, send)
		return true
	}

	send(protocol.ActionResult{
		Type:         protocol.TypeActionResult,
		CallID:       sess.ID,
		InvocationID: msg.InvocationID,
		Action:       msg.Action,
		Result:       result,
	})

	if sess.FlowEnded() {
		// The farewell node's prompt still goes out before the end signal.
		if node != nil {
			send(protocol.NewNodeActive(sess.ID, node))
		}
		s.endOverWS(ctx, sess, call.EndReasonCompleted, send)
		return true
	}

	send(protocol.NewNodeActive(sess.ID, node))
	return false
}

func (s *Server) endOverWS(ctx context.Context, sess *call.Session, reason call.EndReason, send func(any)) {
	snap, err := s.calls.End(ctx, sess.ID, reason)
	if err != nil {
		s.logger.Error("call teardown failed", "call_id", sess.ID, "error", err)
		return
	}
	send(protocol.CallEnded{
		Type:      protocol.TypeCallEnded,
		CallID:    sess.ID,
		Outcome:   string(snap.Outcome),
		EndReason: string(snap.EndReason),
	})
}
