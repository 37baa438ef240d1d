// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tandem-editor/tandem/lib/clock"
	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
	"github.com/tandem-editor/tandem/transport"
)

// Engine is the collaboration session engine. One Engine corresponds
// to one editor window: it owns one logical server connection and at
// most one active room.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
	dialer transport.Dialer

	mu sync.Mutex

	connState ConnState
	conn      transport.Conn

	// generation is the connection epoch. It advances on explicit
	// disconnect and on connection loss; dial and reconnect loops
	// tagged with an older generation abandon their result, and async
	// replies from an earlier epoch are discarded on arrival. Leaving
	// a room does not bump it: leave invalidates room-scoped requests
	// through pending-reply cancellation so a concurrent reconnect
	// keeps running.
	generation uint64

	selfID ref.ParticipantID

	// displayName is remembered from the last create/join so the
	// reconnect replay can re-join under the same name.
	displayName string

	room         *Room
	participants map[ref.ParticipantID]*Participant

	chatLog    []ChatMessage
	chatUnread int
	chatActive bool
	chatSeq    uint64

	followTarget ref.ParticipantID

	call localCallState

	outbox presenceOutbox

	pending map[string]*pendingReply

	stateFuncs  []func(ConnState)
	changeFuncs []func()
	scrollFunc  func(ScrollIntent)
}

// pendingReply is an in-flight request awaiting its correlated server
// reply. The channel is buffered so dispatch never blocks; it is
// closed (without a value) when the request is invalidated.
type pendingReply struct {
	generation uint64
	ch         chan *protocol.Envelope
}

// New creates an Engine. The configuration must carry a ServerURL;
// every other field has a default.
func New(config Config) (*Engine, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("collab: ServerURL is required")
	}
	config = config.withDefaults()
	return &Engine{
		config:       config,
		logger:       config.Logger,
		clock:        config.Clock,
		dialer:       config.Dialer,
		connState:    StateDisconnected,
		participants: make(map[ref.ParticipantID]*Participant),
		pending:      make(map[string]*pendingReply),
	}, nil
}

// OnStateChange registers a callback invoked on every connection state
// transition.
func (e *Engine) OnStateChange(fn func(ConnState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateFuncs = append(e.stateFuncs, fn)
}

// OnChange registers a callback invoked after any session state
// mutation (membership, presence, chat, permissions, files, calls).
// Consumers re-read the snapshot accessors from it instead of polling.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changeFuncs = append(e.changeFuncs, fn)
}

// OnScroll registers the scroll-intent consumer for follow mode. Only
// one consumer is supported; a second call replaces the first.
func (e *Engine) OnScroll(fn func(ScrollIntent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrollFunc = fn
}

// notifier accumulates observer callbacks while the engine lock is
// held and runs them after it is released, so callbacks can call back
// into the engine without deadlocking.
type notifier struct {
	fns []func()
}

func (n *notifier) add(fn func()) { n.fns = append(n.fns, fn) }

func (n *notifier) run() {
	for _, fn := range n.fns {
		fn()
	}
}

// setStateLocked transitions the connection state machine and queues
// the observer notifications.
func (e *Engine) setStateLocked(state ConnState, notify *notifier) {
	if e.connState == state {
		return
	}
	e.connState = state
	funcs := append([]func(ConnState){}, e.stateFuncs...)
	notify.add(func() {
		for _, fn := range funcs {
			fn(state)
		}
	})
	e.queueChangeLocked(notify)
}

// queueChangeLocked queues the generic session-changed notification.
func (e *Engine) queueChangeLocked(notify *notifier) {
	funcs := append([]func(){}, e.changeFuncs...)
	notify.add(func() {
		for _, fn := range funcs {
			fn()
		}
	})
}

// request sends a correlated request and blocks until the matching
// reply, an error reply, a timeout, or invalidation by leave or
// connection loss.
func (e *Engine) request(ctx context.Context, messageType protocol.MessageType, payload any, timeout time.Duration) (*protocol.Envelope, error) {
	requestID := uuid.NewString()

	e.mu.Lock()
	if e.connState != StateConnected {
		e.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := e.conn
	reply := &pendingReply{
		generation: e.generation,
		ch:         make(chan *protocol.Envelope, 1),
	}
	e.pending[requestID] = reply
	e.mu.Unlock()

	envelope, err := protocol.NewEnvelope(messageType, requestID, payload)
	if err != nil {
		e.dropPending(requestID)
		return nil, err
	}

	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.Write(requestCtx, envelope); err != nil {
		e.dropPending(requestID)
		return nil, fmt.Errorf("collab: sending %s: %w", messageType, err)
	}

	select {
	case replyEnvelope, ok := <-reply.ch:
		if !ok {
			return nil, ErrCanceled
		}
		if replyEnvelope.Type == protocol.TypeError {
			var errorPayload protocol.ErrorPayload
			if err := replyEnvelope.DecodePayload(&errorPayload); err != nil {
				return nil, err
			}
			return nil, errorFromReply(errorPayload)
		}
		return replyEnvelope, nil
	case <-requestCtx.Done():
		e.dropPending(requestID)
		return nil, fmt.Errorf("collab: %s: %w", messageType, requestCtx.Err())
	}
}

// send transmits a fire-and-forget control message.
func (e *Engine) send(ctx context.Context, messageType protocol.MessageType, payload any) error {
	e.mu.Lock()
	if e.connState != StateConnected {
		e.mu.Unlock()
		return ErrNotConnected
	}
	conn := e.conn
	e.mu.Unlock()

	envelope, err := protocol.NewEnvelope(messageType, "", payload)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, envelope); err != nil {
		return fmt.Errorf("collab: sending %s: %w", messageType, err)
	}
	return nil
}

// dropPending removes a pending entry without delivering anything.
func (e *Engine) dropPending(requestID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, requestID)
}

// takePendingLocked removes and returns the pending entry for a reply,
// or nil when the request is unknown or belongs to an earlier session
// epoch (in which case the reply is stale and must be discarded).
func (e *Engine) takePendingLocked(requestID string) *pendingReply {
	reply, ok := e.pending[requestID]
	if !ok {
		return nil
	}
	delete(e.pending, requestID)
	if reply.generation != e.generation {
		close(reply.ch)
		return nil
	}
	return reply
}

// cancelPendingLocked invalidates every in-flight request. Waiters
// observe ErrCanceled.
func (e *Engine) cancelPendingLocked() {
	for requestID, reply := range e.pending {
		close(reply.ch)
		delete(e.pending, requestID)
	}
}

// readLoop pumps inbound envelopes for one connection. It exits when
// the connection fails or is replaced.
func (e *Engine) readLoop(conn transport.Conn) {
	for {
		envelope, err := conn.Read(context.Background())
		if err != nil {
			e.handleReadError(conn, err)
			return
		}
		e.handleEnvelope(conn, envelope)
	}
}

// handleEnvelope applies one inbound envelope to session state.
func (e *Engine) handleEnvelope(conn transport.Conn, envelope *protocol.Envelope) {
	var notify notifier
	e.mu.Lock()
	if e.conn != conn {
		// A reply raced a reconnect; this connection is no longer
		// current.
		e.mu.Unlock()
		return
	}
	e.dispatchLocked(envelope, &notify)
	e.mu.Unlock()
	notify.run()
}

// dispatchLocked routes an envelope to its handler. Request replies
// resolve their pending waiter; broadcasts mutate session state.
func (e *Engine) dispatchLocked(envelope *protocol.Envelope, notify *notifier) {
	switch envelope.Type {
	case protocol.TypeRoomJoined:
		reply := e.takePendingLocked(envelope.RequestID)
		if reply == nil {
			e.logger.Debug("discarding stale room_joined reply", "request_id", envelope.RequestID)
			return
		}
		var payload protocol.RoomJoinedPayload
		if err := envelope.DecodePayload(&payload); err != nil {
			e.logger.Warn("malformed room_joined payload", "error", err)
			close(reply.ch)
			return
		}
		e.applyRoomJoinedLocked(payload, notify)
		reply.ch <- envelope

	case protocol.TypeInviteCreated, protocol.TypeError:
		reply := e.takePendingLocked(envelope.RequestID)
		if reply == nil {
			if envelope.Type == protocol.TypeError {
				e.logUnmatchedErrorLocked(envelope)
			}
			return
		}
		reply.ch <- envelope

	case protocol.TypeParticipantJoined:
		e.applyParticipantJoinedLocked(envelope, notify)
	case protocol.TypeParticipantLeft:
		e.applyParticipantLeftLocked(envelope, notify)
	case protocol.TypePresenceUpdate:
		e.applyPresenceUpdateLocked(envelope, notify)
	case protocol.TypeChatMessage:
		e.applyChatMessageLocked(envelope, notify)
	case protocol.TypePermissionChanged:
		e.applyPermissionChangedLocked(envelope, notify)
	case protocol.TypeSharedFilesChanged:
		e.applySharedFilesChangedLocked(envelope, notify)
	case protocol.TypeCallState:
		e.applyCallStateLocked(envelope, notify)

	default:
		e.logger.Debug("ignoring unknown message type", "type", envelope.Type)
	}
}

// logUnmatchedErrorLocked surfaces server errors that no request is
// waiting for (e.g., a rejected fire-and-forget set_permission).
func (e *Engine) logUnmatchedErrorLocked(envelope *protocol.Envelope) {
	var payload protocol.ErrorPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed server error", "error", err)
		return
	}
	e.logger.Warn("server rejected operation",
		"code", payload.Code,
		"message", payload.Message,
		"request_id", envelope.RequestID,
	)
}
