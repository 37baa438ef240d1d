// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"

	"github.com/tandem-editor/tandem/protocol"
)

// localCallState is the local user's call-control flags. Pure
// signaling: no media streams or codecs live here, only the booleans
// other clients render as mic/camera indicators.
type localCallState struct {
	audioActive bool
	videoActive bool

	// audioMuted/videoMuted persist across call start/stop so a user
	// who muted before joining a call enters it muted. Flipping them
	// outside a call is allowed and has no observable effect until the
	// call starts.
	audioMuted bool
	videoMuted bool
}

// StartAudioCall activates the local audio channel and broadcasts it.
// Idempotent: starting an already active call is a no-op.
func (e *Engine) StartAudioCall(ctx context.Context) error {
	return e.setCallActive(ctx, protocol.CallAudio, true)
}

// StopAudioCall deactivates the local audio channel and broadcasts it.
func (e *Engine) StopAudioCall(ctx context.Context) error {
	return e.setCallActive(ctx, protocol.CallAudio, false)
}

// StartVideoCall activates the local video channel and broadcasts it.
func (e *Engine) StartVideoCall(ctx context.Context) error {
	return e.setCallActive(ctx, protocol.CallVideo, true)
}

// StopVideoCall deactivates the local video channel and broadcasts it.
func (e *Engine) StopVideoCall(ctx context.Context) error {
	return e.setCallActive(ctx, protocol.CallVideo, false)
}

// ToggleAudio flips the local mute flag. Broadcast only while an audio
// call is active; outside one the flip is remembered silently.
func (e *Engine) ToggleAudio(ctx context.Context) error {
	return e.toggleMute(ctx, protocol.CallAudio)
}

// ToggleVideo flips the local camera flag, with the same in-call
// broadcast rule as ToggleAudio.
func (e *Engine) ToggleVideo(ctx context.Context) error {
	return e.toggleMute(ctx, protocol.CallVideo)
}

func (e *Engine) setCallActive(ctx context.Context, kind protocol.CallKind, active bool) error {
	var notify notifier
	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	var muted bool
	switch kind {
	case protocol.CallAudio:
		if e.call.audioActive == active {
			e.mu.Unlock()
			return nil
		}
		e.call.audioActive = active
		muted = e.call.audioMuted
	case protocol.CallVideo:
		if e.call.videoActive == active {
			e.mu.Unlock()
			return nil
		}
		e.call.videoActive = active
		muted = e.call.videoMuted
	}
	e.applySelfCallFlagsLocked(kind, active, muted)
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()

	return e.send(ctx, protocol.TypeCallState, protocol.CallStatePayload{
		Kind:   kind,
		Active: active,
		Muted:  muted,
	})
}

func (e *Engine) toggleMute(ctx context.Context, kind protocol.CallKind) error {
	var notify notifier
	e.mu.Lock()
	var active, muted bool
	switch kind {
	case protocol.CallAudio:
		e.call.audioMuted = !e.call.audioMuted
		active, muted = e.call.audioActive, e.call.audioMuted
	case protocol.CallVideo:
		e.call.videoMuted = !e.call.videoMuted
		active, muted = e.call.videoActive, e.call.videoMuted
	}
	if active {
		e.applySelfCallFlagsLocked(kind, active, muted)
		e.queueChangeLocked(&notify)
	}
	e.mu.Unlock()
	notify.run()

	if !active {
		return nil
	}
	return e.send(ctx, protocol.TypeCallState, protocol.CallStatePayload{
		Kind:   kind,
		Active: active,
		Muted:  muted,
	})
}

// applySelfCallFlagsLocked mirrors local call state onto the local
// participant record so the UI renders the local user exactly as peers
// will once the broadcast lands.
func (e *Engine) applySelfCallFlagsLocked(kind protocol.CallKind, active, muted bool) {
	self, ok := e.participants[e.selfID]
	if !ok {
		return
	}
	switch kind {
	case protocol.CallAudio:
		self.AudioActive = active
		self.Muted = muted
		if !active {
			self.Speaking = false
		}
	case protocol.CallVideo:
		self.VideoActive = active && !muted
	}
}

// applyCallStateLocked folds a call_state broadcast into the named
// participant's flags.
func (e *Engine) applyCallStateLocked(envelope *protocol.Envelope, notify *notifier) {
	var payload protocol.CallStatePayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed call_state payload", "error", err)
		return
	}
	participant, ok := e.participants[payload.ParticipantID]
	if !ok {
		e.logger.Debug("call state for unknown participant dropped",
			"participant_id", payload.ParticipantID)
		return
	}

	switch payload.Kind {
	case protocol.CallAudio:
		participant.AudioActive = payload.Active
		participant.Muted = payload.Muted
		participant.Speaking = payload.Active && payload.Speaking
	case protocol.CallVideo:
		participant.VideoActive = payload.Active && !payload.Muted
	default:
		e.logger.Debug("ignoring unknown call kind", "kind", payload.Kind)
		return
	}
	participant.LastActive = e.clock.Now()
	e.queueChangeLocked(notify)
}
