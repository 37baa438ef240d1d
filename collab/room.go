// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"strings"
	"time"

	"github.com/tandem-editor/tandem/lib/palette"
	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
)

// CreateRoom creates a new room with the local user as owner and
// returns the server-assigned room ID. The engine must be connected
// and not already in a room.
func (e *Engine) CreateRoom(ctx context.Context, displayName string) (ref.RoomID, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ref.RoomID{}, &ValidationError{Field: "display name", Reason: "must not be empty"}
	}
	e.mu.Lock()
	if e.room != nil {
		e.mu.Unlock()
		return ref.RoomID{}, ErrInRoom
	}
	e.displayName = displayName
	e.mu.Unlock()

	reply, err := e.request(ctx, protocol.TypeCreateRoom, protocol.CreateRoomPayload{
		DisplayName: displayName,
	}, e.config.JoinTimeout)
	if err != nil {
		return ref.RoomID{}, err
	}

	var payload protocol.RoomJoinedPayload
	if err := reply.DecodePayload(&payload); err != nil {
		return ref.RoomID{}, err
	}
	return payload.Room.ID, nil
}

// JoinRoom joins an existing room. Target is a raw room ID, an invite
// token, or a share/invite URL (resolved locally to its embedded room
// ID or token — never decoded for trust decisions; the server
// re-derives the granted permission).
func (e *Engine) JoinRoom(ctx context.Context, target, displayName string) (ref.RoomID, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return ref.RoomID{}, &ValidationError{Field: "display name", Reason: "must not be empty"}
	}
	target, err := ParseJoinTarget(target)
	if err != nil {
		return ref.RoomID{}, err
	}

	e.mu.Lock()
	if e.room != nil {
		e.mu.Unlock()
		return ref.RoomID{}, ErrInRoom
	}
	e.displayName = displayName
	e.mu.Unlock()

	reply, err := e.request(ctx, protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		Target:      target,
		DisplayName: displayName,
	}, e.config.JoinTimeout)
	if err != nil {
		return ref.RoomID{}, err
	}

	var payload protocol.RoomJoinedPayload
	if err := reply.DecodePayload(&payload); err != nil {
		return ref.RoomID{}, err
	}
	return payload.Room.ID, nil
}

// LeaveRoom notifies the server and clears all room-scoped state. Safe
// to call when not in a room (no-op). Any join or create still in
// flight is invalidated: its late reply cannot resurrect the room.
// Only room-scoped requests are cancelled; a reconnect loop running
// concurrently keeps its epoch and carries on (it finds no room to
// rejoin).
func (e *Engine) LeaveRoom(ctx context.Context) error {
	var notify notifier
	e.mu.Lock()
	// A join or create may be in flight before e.room is set; those
	// waiters must still be cancelled so the late reply is discarded.
	if e.room == nil && len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.cancelPendingLocked()
	e.stopPresenceTimerLocked()
	e.resetSessionLocked()
	connected := e.connState == StateConnected
	e.queueChangeLocked(&notify)
	e.mu.Unlock()
	notify.run()

	if connected {
		if err := e.send(ctx, protocol.TypeLeaveRoom, nil); err != nil {
			// Local state is already cleared; the server will notice
			// the departure on its own if the notification is lost.
			e.logger.Warn("leave notification failed", "error", err)
		}
	}
	return nil
}

// ShareFiles replaces the room's shared file list. Requires edit
// permission; the authoritative list comes back as a
// shared_files_changed broadcast.
func (e *Engine) ShareFiles(ctx context.Context, files []ref.FileID) error {
	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	self, ok := e.participants[e.selfID]
	if ok && !self.Permission.CanEdit() {
		e.mu.Unlock()
		return &PermissionError{Op: "share files", Have: self.Permission}
	}
	e.mu.Unlock()

	return e.send(ctx, protocol.TypeShareFiles, protocol.ShareFilesPayload{Files: files})
}

// applyRoomJoinedLocked installs the server's room snapshot. Called
// for the initial join/create reply and for the reconnect replay; in
// both cases the participant set is rebuilt from the payload, never
// merged with whatever was cached locally.
func (e *Engine) applyRoomJoinedLocked(payload protocol.RoomJoinedPayload, notify *notifier) {
	now := e.clock.Now()

	e.room = &Room{
		ID:     payload.Room.ID,
		Name:   payload.Room.Name,
		HostID: payload.Room.HostID,
		Files:  append([]ref.FileID(nil), payload.Room.Files...),
	}

	e.participants = make(map[ref.ParticipantID]*Participant, len(payload.Participants))
	for _, info := range payload.Participants {
		e.participants[info.ID] = participantFromInfo(info, now)
	}

	// The joining user's effective permission comes from the server's
	// snapshot — an invite token's scope is applied server-side, never
	// trusted from the token the client carried.
	if self, ok := e.participants[e.selfID]; ok && payload.SelfPermission.Valid() {
		self.Permission = payload.SelfPermission
	}

	e.logger.Info("joined room",
		"room_id", payload.Room.ID,
		"room_name", payload.Room.Name,
		"participants", len(payload.Participants),
	)
	e.queueChangeLocked(notify)
}

func (e *Engine) applyParticipantJoinedLocked(envelope *protocol.Envelope, notify *notifier) {
	if e.room == nil {
		return
	}
	var payload protocol.ParticipantJoinedPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed participant_joined payload", "error", err)
		return
	}
	e.participants[payload.Participant.ID] = participantFromInfo(payload.Participant, e.clock.Now())
	e.queueChangeLocked(notify)
}

func (e *Engine) applyParticipantLeftLocked(envelope *protocol.Envelope, notify *notifier) {
	if e.room == nil {
		return
	}
	var payload protocol.ParticipantLeftPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed participant_left payload", "error", err)
		return
	}
	delete(e.participants, payload.ParticipantID)
	if e.followTarget == payload.ParticipantID {
		e.followTarget = ref.ParticipantID{}
	}
	e.queueChangeLocked(notify)
}

func (e *Engine) applySharedFilesChangedLocked(envelope *protocol.Envelope, notify *notifier) {
	if e.room == nil {
		return
	}
	var payload protocol.SharedFilesChangedPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed shared_files_changed payload", "error", err)
		return
	}
	// Last write wins: replace, never merge.
	e.room.Files = append([]ref.FileID(nil), payload.Files...)
	e.queueChangeLocked(notify)
}

// participantFromInfo builds the local record for a server-described
// participant. Color derives from the ID here rather than arriving on
// the wire.
func participantFromInfo(info protocol.ParticipantInfo, now time.Time) *Participant {
	return &Participant{
		ID:          info.ID,
		DisplayName: info.DisplayName,
		AvatarURL:   info.AvatarURL,
		Color:       palette.ColorFor(info.ID),
		Permission:  info.Permission,
		AudioActive: info.AudioActive,
		VideoActive: info.VideoActive,
		Muted:       info.Muted,
		LastActive:  now,
	}
}
