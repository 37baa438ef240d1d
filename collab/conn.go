// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
	"github.com/tandem-editor/tandem/transport"
)

// Connect establishes the server connection and performs the
// hello/welcome handshake. It blocks until connected or until the
// bounded retry budget is exhausted, in which case it returns a
// *ConnectionError and the state machine settles into StateError.
//
// Calling Connect while already connected is a no-op. Calling it while
// a connect or reconnect is in progress is rejected with ErrBusy.
func (e *Engine) Connect(ctx context.Context) error {
	var notify notifier
	e.mu.Lock()
	switch e.connState {
	case StateConnected:
		e.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		e.mu.Unlock()
		return ErrBusy
	}
	generation := e.generation
	e.setStateLocked(StateConnecting, &notify)
	e.mu.Unlock()
	notify.run()

	conn, selfID, err := e.dialWithRetry(ctx, generation)
	if err != nil {
		notify = notifier{}
		e.mu.Lock()
		if e.generation == generation {
			e.setStateLocked(StateError, &notify)
		}
		e.mu.Unlock()
		notify.run()
		return err
	}

	notify = notifier{}
	e.mu.Lock()
	if e.generation != generation {
		// Disconnect raced the dial; discard the fresh connection.
		e.mu.Unlock()
		conn.Close()
		return ErrCanceled
	}
	e.conn = conn
	e.selfID = selfID
	e.setStateLocked(StateConnected, &notify)
	e.mu.Unlock()
	notify.run()

	go e.readLoop(conn)

	e.logger.Info("connected to collaboration server",
		"server_url", e.config.ServerURL,
		"participant_id", selfID,
	)
	return nil
}

// Disconnect closes the connection gracefully and resets the session
// to empty. Idempotent: disconnecting while disconnected is a no-op.
func (e *Engine) Disconnect() {
	var notify notifier
	e.mu.Lock()
	e.generation++
	e.cancelPendingLocked()
	conn := e.conn
	e.conn = nil
	e.resetSessionLocked()
	e.stopPresenceTimerLocked()
	e.selfID = ref.ParticipantID{}
	if e.connState != StateDisconnected {
		e.setStateLocked(StateDisconnected, &notify)
	}
	e.mu.Unlock()
	notify.run()

	if conn != nil {
		conn.Close()
	}
}

// dialWithRetry runs bounded dial attempts with exponential backoff.
// The generation guard aborts the loop if the session epoch moves on
// (Disconnect was called mid-retry).
func (e *Engine) dialWithRetry(ctx context.Context, generation uint64) (transport.Conn, ref.ParticipantID, error) {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxConnectAttempts; attempt++ {
		if attempt > 1 {
			delay := e.backoffDelay(attempt - 1)
			select {
			case <-e.clock.After(delay):
			case <-ctx.Done():
				return nil, ref.ParticipantID{}, &ConnectionError{Attempts: attempt - 1, Err: ctx.Err()}
			}
		}

		e.mu.Lock()
		stale := e.generation != generation
		e.mu.Unlock()
		if stale {
			return nil, ref.ParticipantID{}, ErrCanceled
		}

		conn, selfID, err := e.dialOnce(ctx)
		if err == nil {
			return conn, selfID, nil
		}
		lastErr = err
		e.logger.Warn("connection attempt failed",
			"attempt", attempt,
			"max_attempts", e.config.MaxConnectAttempts,
			"error", err,
		)
	}
	return nil, ref.ParticipantID{}, &ConnectionError{Attempts: e.config.MaxConnectAttempts, Err: lastErr}
}

// backoffDelay grows the base delay exponentially with the number of
// completed attempts, capped at the configured maximum.
func (e *Engine) backoffDelay(failures int) time.Duration {
	delay := e.config.ReconnectBaseDelay << (failures - 1)
	if delay > e.config.ReconnectMaxDelay || delay <= 0 {
		return e.config.ReconnectMaxDelay
	}
	return delay
}

// dialOnce performs one dial plus handshake, bounded by
// HandshakeTimeout.
func (e *Engine) dialOnce(ctx context.Context) (transport.Conn, ref.ParticipantID, error) {
	handshakeCtx, cancel := context.WithTimeout(ctx, e.config.HandshakeTimeout)
	defer cancel()

	conn, err := e.dialer.Dial(handshakeCtx, e.config.ServerURL)
	if err != nil {
		return nil, ref.ParticipantID{}, err
	}

	helloPayload := protocol.HelloPayload{Version: protocol.ProtocolVersion}
	if self := e.SelfID(); !self.IsZero() {
		helloPayload.Resume = self.String()
	}
	hello, err := protocol.NewEnvelope(protocol.TypeHello, "", helloPayload)
	if err != nil {
		conn.Close()
		return nil, ref.ParticipantID{}, err
	}
	if err := conn.Write(handshakeCtx, hello); err != nil {
		conn.Close()
		return nil, ref.ParticipantID{}, fmt.Errorf("sending hello: %w", err)
	}

	reply, err := conn.Read(handshakeCtx)
	if err != nil {
		conn.Close()
		return nil, ref.ParticipantID{}, fmt.Errorf("awaiting welcome: %w", err)
	}
	switch reply.Type {
	case protocol.TypeWelcome:
		var welcome protocol.WelcomePayload
		if err := reply.DecodePayload(&welcome); err != nil {
			conn.Close()
			return nil, ref.ParticipantID{}, err
		}
		if welcome.ParticipantID.IsZero() {
			conn.Close()
			return nil, ref.ParticipantID{}, fmt.Errorf("welcome missing participant ID")
		}
		return conn, welcome.ParticipantID, nil
	case protocol.TypeError:
		var errorPayload protocol.ErrorPayload
		if err := reply.DecodePayload(&errorPayload); err != nil {
			conn.Close()
			return nil, ref.ParticipantID{}, err
		}
		conn.Close()
		return nil, ref.ParticipantID{}, errorFromReply(errorPayload)
	default:
		conn.Close()
		return nil, ref.ParticipantID{}, fmt.Errorf("unexpected %s during handshake", reply.Type)
	}
}

// handleReadError reacts to a read-loop failure. Deliberate teardowns
// (Disconnect, reconnect replacement) already detached the connection,
// so a mismatch means this loop is obsolete; anything else is an
// unexpected drop that starts the reconnect sequence.
func (e *Engine) handleReadError(conn transport.Conn, err error) {
	var notify notifier
	e.mu.Lock()
	if e.conn != conn {
		e.mu.Unlock()
		return
	}

	if !errors.Is(err, transport.ErrClosed) {
		e.logger.Warn("connection read failed", "error", err)
	}

	e.generation++
	newGeneration := e.generation
	e.cancelPendingLocked()
	e.conn = nil
	e.stopPresenceTimerLocked()

	// Remote presence is considered stale the moment the connection
	// drops: positions may point into documents that changed while we
	// weren't listening. Chat history already received is kept.
	e.clearPresenceLocked()

	e.setStateLocked(StateReconnecting, &notify)
	e.mu.Unlock()
	notify.run()

	go e.reconnectLoop(newGeneration)
}

// reconnectLoop re-dials with the same bounded backoff as Connect and,
// on success, replays the room join so membership is rebuilt from a
// fresh server snapshot. Exhaustion settles into StateError.
func (e *Engine) reconnectLoop(generation uint64) {
	conn, selfID, err := e.dialWithRetry(context.Background(), generation)
	if err != nil {
		var notify notifier
		e.mu.Lock()
		if e.generation == generation {
			e.setStateLocked(StateError, &notify)
		}
		e.mu.Unlock()
		notify.run()
		e.logger.Error("reconnection failed; giving up", "error", err)
		return
	}

	var notify notifier
	e.mu.Lock()
	if e.generation != generation {
		e.mu.Unlock()
		conn.Close()
		return
	}
	e.conn = conn
	e.selfID = selfID
	var rejoinRoom ref.RoomID
	if e.room != nil {
		rejoinRoom = e.room.ID
	}
	displayName := e.displayName
	e.setStateLocked(StateConnected, &notify)
	e.mu.Unlock()
	notify.run()

	go e.readLoop(conn)
	e.logger.Info("reconnected to collaboration server", "participant_id", selfID)

	if rejoinRoom.IsZero() {
		return
	}
	if err := e.rejoin(rejoinRoom, displayName); err != nil {
		e.logger.Error("room rejoin after reconnect failed", "room_id", rejoinRoom, "error", err)
		var roomErr *RoomError
		if errors.As(err, &roomErr) {
			// The room is gone (closed server-side while we were
			// away). Drop the local copy rather than presenting a
			// room the server no longer tracks.
			var notify notifier
			e.mu.Lock()
			e.resetSessionLocked()
			e.queueChangeLocked(&notify)
			e.mu.Unlock()
			notify.run()
		}
	}
}

// rejoin replays the room join after a reconnect. The server's
// room_joined reply replaces the participant set wholesale — never the
// pre-drop cache.
func (e *Engine) rejoin(roomID ref.RoomID, displayName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.JoinTimeout)
	defer cancel()
	_, err := e.request(ctx, protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		Target:      roomID.String(),
		DisplayName: displayName,
	}, e.config.JoinTimeout)
	return err
}

// clearPresenceLocked drops cursor/selection state for every
// participant.
func (e *Engine) clearPresenceLocked() {
	for _, p := range e.participants {
		p.Cursor = nil
		p.Selection = nil
		p.cursorSeq = 0
		p.selectionSeq = 0
	}
}

// resetSessionLocked clears all room-scoped state: room, participants,
// chat, follow target, and call flags. Connection identity survives.
func (e *Engine) resetSessionLocked() {
	e.room = nil
	e.participants = make(map[ref.ParticipantID]*Participant)
	e.chatLog = nil
	e.chatUnread = 0
	e.chatSeq = 0
	e.followTarget = ref.ParticipantID{}
	e.call = localCallState{}
	e.outbox.pendingCursor = nil
	e.outbox.pendingSelection = nil
}
