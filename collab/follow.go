// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"github.com/tandem-editor/tandem/lib/ref"
)

// FollowUser sets the follow target. Only one participant can be
// followed at a time; a new target silently replaces the old one.
// While following, every cursor update from the target is surfaced
// through the OnScroll callback — the engine emits the intent and
// never scrolls anything itself.
func (e *Engine) FollowUser(participantID ref.ParticipantID) error {
	var notify notifier
	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	if participantID == e.selfID {
		e.mu.Unlock()
		return &ValidationError{Field: "participant", Reason: "cannot follow yourself"}
	}
	target, ok := e.participants[participantID]
	if !ok {
		e.mu.Unlock()
		return &ValidationError{Field: "participant", Reason: "not in the room"}
	}
	e.followTarget = participantID

	// Jump to the target's last known position right away when one
	// exists, rather than waiting for their next move.
	if target.Cursor != nil && e.scrollFunc != nil {
		intent := ScrollIntent{
			ParticipantID: participantID,
			FileID:        target.Cursor.FileID,
			Line:          target.Cursor.Line,
			Column:        target.Cursor.Column,
		}
		fn := e.scrollFunc
		notify.add(func() { fn(intent) })
	}
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()
	return nil
}

// UnfollowUser clears the follow target. No-op when not following.
func (e *Engine) UnfollowUser() {
	var notify notifier
	e.mu.Lock()
	if e.followTarget.IsZero() {
		e.mu.Unlock()
		return
	}
	e.followTarget = ref.ParticipantID{}
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()
}
