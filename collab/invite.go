// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"net/url"
	"strings"

	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
)

// CreateInviteLink requests a server-minted invite token scoped to the
// given permission and returns a shareable URL embedding it. Owner
// only; the permission must be editor or viewer — ownership cannot be
// delegated through an invite.
func (e *Engine) CreateInviteLink(ctx context.Context, permission Permission) (string, error) {
	if !permission.Invitable() {
		return "", &ValidationError{Field: "permission", Reason: "invites grant editor or viewer only"}
	}

	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return "", ErrNoRoom
	}
	roomID := e.room.ID
	if self, ok := e.participants[e.selfID]; ok && !self.Permission.CanManage() {
		e.mu.Unlock()
		return "", &PermissionError{Op: "create invite", Have: self.Permission}
	}
	e.mu.Unlock()

	reply, err := e.request(ctx, protocol.TypeCreateInvite, protocol.CreateInvitePayload{
		Permission: permission,
	}, e.config.JoinTimeout)
	if err != nil {
		return "", err
	}

	var payload protocol.InviteCreatedPayload
	if err := reply.DecodePayload(&payload); err != nil {
		return "", err
	}
	return e.joinURL(roomID) + "?invite=" + url.QueryEscape(payload.Token), nil
}

// ShareLink returns the plain join URL for the active room. It carries
// no token: redemption grants whatever default the room's server-side
// policy configures.
func (e *Engine) ShareLink() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return "", ErrNoRoom
	}
	return e.joinURL(e.room.ID), nil
}

func (e *Engine) joinURL(roomID ref.RoomID) string {
	return strings.TrimRight(e.config.ShareBaseURL, "/") + "/" + roomID.String()
}

// SetPermission changes another participant's permission level. Owner
// only. The local record is not updated here: the server's
// permission_changed broadcast is the single application path, for the
// issuer exactly as for everyone else.
func (e *Engine) SetPermission(ctx context.Context, participantID ref.ParticipantID, permission Permission) error {
	if !permission.Invitable() {
		return &ValidationError{Field: "permission", Reason: "only editor or viewer can be assigned"}
	}

	e.mu.Lock()
	if e.room == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	if self, ok := e.participants[e.selfID]; ok && !self.Permission.CanManage() {
		e.mu.Unlock()
		return &PermissionError{Op: "set permission", Have: self.Permission}
	}
	if _, ok := e.participants[participantID]; !ok {
		e.mu.Unlock()
		return &ValidationError{Field: "participant", Reason: "not in the room"}
	}
	e.mu.Unlock()

	return e.send(ctx, protocol.TypeSetPermission, protocol.SetPermissionPayload{
		ParticipantID: participantID,
		Permission:    permission,
	})
}

// applyPermissionChangedLocked applies a server-pushed permission
// change. Takes effect immediately, including demotions of the local
// user — local state never overrides what the server decides.
func (e *Engine) applyPermissionChangedLocked(envelope *protocol.Envelope, notify *notifier) {
	var payload protocol.PermissionChangedPayload
	if err := envelope.DecodePayload(&payload); err != nil {
		e.logger.Warn("malformed permission_changed payload", "error", err)
		return
	}
	participant, ok := e.participants[payload.ParticipantID]
	if !ok {
		return
	}
	if !payload.Permission.Valid() {
		e.logger.Warn("invalid permission in permission_changed",
			"permission", payload.Permission)
		return
	}
	participant.Permission = payload.Permission
	if payload.ParticipantID == e.selfID {
		e.logger.Info("own permission changed", "permission", payload.Permission)
	}
	e.queueChangeLocked(notify)
}

// ParseJoinTarget normalizes user-pasted join input. A share or invite
// URL is reduced to the room ID or the embedded token; a bare room ID
// or token passes through untouched. It extracts, never trusts: the
// server re-derives any permission a token grants.
func ParseJoinTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "target", Reason: "must not be empty"}
	}
	if !strings.Contains(raw, "://") {
		return raw, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", &ValidationError{Field: "target", Reason: "not a valid URL"}
	}
	if token := parsed.Query().Get("invite"); token != "" {
		return token, nil
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if !ref.IsRoomID(last) {
		return "", &ValidationError{Field: "target", Reason: "URL carries no room ID or invite token"}
	}
	return last, nil
}
