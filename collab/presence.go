// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"time"

	"github.com/tandem-editor/tandem/lib/clock"
	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
	"github.com/tandem-editor/tandem/transport"
)

// Presence staleness tiers. Derived on read as pure functions of
// (now, event time) — never cached, so they cannot themselves go
// stale. The tiering degrades presence gracefully under network jitter
// instead of flipping participants in and out of view.
const (
	// cursorFreshAge: cursors younger than this render fully opaque.
	cursorFreshAge = 10 * time.Second
	// cursorFadedAge: cursors older than cursorFreshAge but younger
	// than this render partially faded; beyond it, maximally faded.
	cursorFadedAge = 30 * time.Second

	// onlineWindow/awayWindow bound the activity tiers for list
	// display.
	onlineWindow = 5 * time.Second
	awayWindow   = 30 * time.Second
)

// Cursor opacity levels per staleness tier.
const (
	opacityFresh = 1.0
	opacityFaded = 0.6
	opacityStale = 0.25
)

// CursorOpacity returns the rendering opacity for a presence element
// observed at the given time.
func CursorOpacity(now, at time.Time) float64 {
	age := now.Sub(at)
	switch {
	case age < cursorFreshAge:
		return opacityFresh
	case age < cursorFadedAge:
		return opacityFaded
	default:
		return opacityStale
	}
}

// ActivityStatus is a participant's liveness tier for list display.
type ActivityStatus int

const (
	ActivityOnline ActivityStatus = iota
	ActivityAway
	ActivityOffline
)

func (s ActivityStatus) String() string {
	switch s {
	case ActivityOnline:
		return "online"
	case ActivityAway:
		return "away"
	case ActivityOffline:
		return "offline"
	}
	return "unknown"
}

// Activity returns the liveness tier for a participant whose most
// recent event arrived at lastActive. A zero lastActive is offline.
func Activity(now, lastActive time.Time) ActivityStatus {
	if lastActive.IsZero() {
		return ActivityOffline
	}
	age := now.Sub(lastActive)
	switch {
	case age < onlineWindow:
		return ActivityOnline
	case age < awayWindow:
		return ActivityAway
	default:
		return ActivityOffline
	}
}

// presenceOutbox coalesces outbound cursor/selection updates. The
// first update in a quiet period goes out immediately; updates inside
// the throttle window overwrite the pending slot, so the newest local
// position always wins over any unsent older one. Nothing queues.
type presenceOutbox struct {
	timer       clock.Timer
	timerActive bool

	pendingCursor    *protocol.CursorInfo
	pendingSelection *protocol.SelectionInfo
}

// UpdateCursor records the local cursor position and broadcasts it,
// throttled. Outside a room (or while not connected) it is a silent
// no-op — cursor moves in a private window are not an error.
func (e *Engine) UpdateCursor(fileID ref.FileID, line, column int) {
	cursor := protocol.CursorInfo{FileID: fileID, Line: line, Column: column}

	var notify notifier
	e.mu.Lock()
	if e.connState != StateConnected || e.room == nil {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	if self, ok := e.participants[e.selfID]; ok {
		self.Cursor = &Cursor{FileID: fileID, Line: line, Column: column, At: now}
		self.LastActive = now
	}
	conn, sendNow := e.throttleLocked(&cursor, nil)
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()

	if sendNow {
		e.writePresence(conn, &cursor, nil)
	}
}

// UpdateSelection records the local selection range and broadcasts it,
// throttled like UpdateCursor.
func (e *Engine) UpdateSelection(fileID ref.FileID, startLine, startColumn, endLine, endColumn int) {
	selection := protocol.SelectionInfo{
		FileID:      fileID,
		StartLine:   startLine,
		StartColumn: startColumn,
		EndLine:     endLine,
		EndColumn:   endColumn,
	}

	var notify notifier
	e.mu.Lock()
	if e.connState != StateConnected || e.room == nil {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	if self, ok := e.participants[e.selfID]; ok {
		self.Selection = &Selection{
			FileID:      fileID,
			StartLine:   startLine,
			StartColumn: startColumn,
			EndLine:     endLine,
			EndColumn:   endColumn,
			At:          now,
		}
		self.LastActive = now
	}
	conn, sendNow := e.throttleLocked(nil, &selection)
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()

	if sendNow {
		e.writePresence(conn, nil, &selection)
	}
}

// throttleLocked decides whether an update goes out now or parks in
// the pending slot until the window timer fires.
func (e *Engine) throttleLocked(cursor *protocol.CursorInfo, selection *protocol.SelectionInfo) (transport.Conn, bool) {
	if e.outbox.timerActive {
		if cursor != nil {
			e.outbox.pendingCursor = cursor
		}
		if selection != nil {
			e.outbox.pendingSelection = selection
		}
		return nil, false
	}
	e.outbox.timerActive = true
	e.outbox.timer = e.clock.AfterFunc(e.config.PresenceThrottle, e.presenceWindowElapsed)
	return e.conn, true
}

// presenceWindowElapsed flushes whatever accumulated during the
// throttle window. An empty window closes the outbox; a non-empty one
// re-arms for the next window, keeping sends spaced at the throttle
// interval under sustained movement.
func (e *Engine) presenceWindowElapsed() {
	e.mu.Lock()
	cursor := e.outbox.pendingCursor
	selection := e.outbox.pendingSelection
	e.outbox.pendingCursor = nil
	e.outbox.pendingSelection = nil

	if cursor == nil && selection == nil {
		e.outbox.timerActive = false
		e.mu.Unlock()
		return
	}
	if e.connState != StateConnected {
		e.outbox.timerActive = false
		e.mu.Unlock()
		return
	}
	e.outbox.timer = e.clock.AfterFunc(e.config.PresenceThrottle, e.presenceWindowElapsed)
	conn := e.conn
	e.mu.Unlock()

	e.writePresence(conn, cursor, selection)
}

// writePresence sends cursor and/or selection updates on the wire.
// Failures are logged, not surfaced: presence is lossy by design and
// the connection state machine handles a dead transport.
func (e *Engine) writePresence(conn transport.Conn, cursor *protocol.CursorInfo, selection *protocol.SelectionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cursor != nil {
		envelope, err := protocol.NewEnvelope(protocol.TypeCursorUpdate, "", protocol.CursorUpdatePayload{Cursor: *cursor})
		if err == nil {
			err = conn.Write(ctx, envelope)
		}
		if err != nil {
			e.logger.Debug("cursor update dropped", "error", err)
		}
	}
	if selection != nil {
		envelope, err := protocol.NewEnvelope(protocol.TypeSelectionUpdate, "", protocol.SelectionUpdatePayload{Selection: *selection})
		if err == nil {
			err = conn.Write(ctx, envelope)
		}
		if err != nil {
			e.logger.Debug("selection update dropped", "error", err)
		}
	}
}

// stopPresenceTimerLocked shuts the outbox down on disconnect/leave.
func (e *Engine) stopPresenceTimerLocked() {
	if e.outbox.timerActive {
		e.outbox.timer.Stop()
		e.outbox.timerActive = false
	}
	e.outbox.pendingCursor = nil
	e.outbox.pendingSelection = nil
}

// applyPresenceUpdateLocked folds a remote participant's cursor or
// selection into their record. Updates for unknown participants are
// dropped, not errored: the membership event may still be in flight on
// its own channel. Sequence numbers guard against out-of-order
// overwrites — only strictly newer updates apply.
func (e *Engine) applyPresenceUpdateLocked(envelope *protocol.Envelope, notify *notifier) {
	var payload protocol.PresenceUpdatePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed presence_update payload", "error", err)
		return
	}
	participant, ok := e.participants[payload.ParticipantID]
	if !ok {
		e.logger.Debug("presence update for unknown participant dropped",
			"participant_id", payload.ParticipantID)
		return
	}

	now := e.clock.Now()
	changed := false

	if payload.Cursor != nil && payload.Seq > participant.cursorSeq {
		participant.cursorSeq = payload.Seq
		participant.Cursor = &Cursor{
			FileID: payload.Cursor.FileID,
			Line:   payload.Cursor.Line,
			Column: payload.Cursor.Column,
			At:     now,
		}
		participant.LastActive = now
		changed = true

		if e.followTarget == payload.ParticipantID && e.scrollFunc != nil {
			intent := ScrollIntent{
				ParticipantID: payload.ParticipantID,
				FileID:        payload.Cursor.FileID,
				Line:          payload.Cursor.Line,
				Column:        payload.Cursor.Column,
			}
			fn := e.scrollFunc
			notify.add(func() { fn(intent) })
		}
	}

	if payload.Selection != nil && payload.Seq > participant.selectionSeq {
		participant.selectionSeq = payload.Seq
		participant.Selection = &Selection{
			FileID:      payload.Selection.FileID,
			StartLine:   payload.Selection.StartLine,
			StartColumn: payload.Selection.StartColumn,
			EndLine:     payload.Selection.EndLine,
			EndColumn:   payload.Selection.EndColumn,
			At:          now,
		}
		participant.LastActive = now
		changed = true
	}

	if changed {
		e.queueChangeLocked(notify)
	}
}
