// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/tandem-editor/tandem/lib/ref"
)

// ProtocolVersion is the wire protocol revision this package speaks.
// The server rejects hellos with a version it doesn't support.
const ProtocolVersion = 1

// HelloPayload opens the handshake on a fresh connection.
type HelloPayload struct {
	Version int `cbor:"version"`

	// Resume carries the participant ID from a previous connection
	// when reconnecting, so the server can correlate the identity.
	// Empty on first connect.
	Resume string `cbor:"resume,omitempty"`
}

// WelcomePayload acknowledges the handshake.
type WelcomePayload struct {
	// ParticipantID is the server-assigned stable identity for this
	// connection's user.
	ParticipantID ref.ParticipantID `cbor:"participant_id"`

	// ServerVersion is informational (logged, never branched on).
	ServerVersion string `cbor:"server_version,omitempty"`
}

// CreateRoomPayload requests a new room. The reply is a room_joined
// envelope with the creator as sole participant and owner.
type CreateRoomPayload struct {
	DisplayName string `cbor:"display_name"`
}

// JoinRoomPayload requests membership in an existing room.
type JoinRoomPayload struct {
	// Target is either a raw room ID ("room_...") or an opaque invite
	// token. The server distinguishes and validates; the client never
	// decodes tokens.
	Target      string `cbor:"target"`
	DisplayName string `cbor:"display_name"`
}

// RoomInfo is the server's description of a room.
type RoomInfo struct {
	ID     ref.RoomID        `cbor:"id"`
	Name   string            `cbor:"name"`
	HostID ref.ParticipantID `cbor:"host_id"`
	Files  []ref.FileID      `cbor:"files,omitempty"`
}

// ParticipantInfo is the server's description of one room member.
type ParticipantInfo struct {
	ID          ref.ParticipantID `cbor:"id"`
	DisplayName string            `cbor:"display_name"`
	AvatarURL   string            `cbor:"avatar_url,omitempty"`
	Permission  Permission        `cbor:"permission"`
	AudioActive bool              `cbor:"audio_active,omitempty"`
	VideoActive bool              `cbor:"video_active,omitempty"`
	Muted       bool              `cbor:"muted,omitempty"`
}

// RoomJoinedPayload is the reply to create_room and join_room, and is
// re-sent by the server after a reconnect replay so membership always
// comes from a fresh server snapshot, never a pre-drop cache.
type RoomJoinedPayload struct {
	Room         RoomInfo          `cbor:"room"`
	Participants []ParticipantInfo `cbor:"participants"`

	// SelfPermission is the joining user's effective permission as
	// derived by the server (room policy, invite token scope, or
	// owner for the creator).
	SelfPermission Permission `cbor:"self_permission"`
}

// ParticipantJoinedPayload announces a new room member.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `cbor:"participant"`
}

// ParticipantLeftPayload announces a departure.
type ParticipantLeftPayload struct {
	ParticipantID ref.ParticipantID `cbor:"participant_id"`
}

// CursorInfo is a cursor position within a shared file.
type CursorInfo struct {
	FileID ref.FileID `cbor:"file_id"`
	Line   int        `cbor:"line"`
	Column int        `cbor:"column"`
}

// SelectionInfo is a selection range within a shared file.
type SelectionInfo struct {
	FileID      ref.FileID `cbor:"file_id"`
	StartLine   int        `cbor:"start_line"`
	StartColumn int        `cbor:"start_column"`
	EndLine     int        `cbor:"end_line"`
	EndColumn   int        `cbor:"end_column"`
}

// CursorUpdatePayload is the client's throttled cursor broadcast.
type CursorUpdatePayload struct {
	Cursor CursorInfo `cbor:"cursor"`
}

// SelectionUpdatePayload is the client's throttled selection broadcast.
type SelectionUpdatePayload struct {
	Selection SelectionInfo `cbor:"selection"`
}

// PresenceUpdatePayload fans a participant's cursor or selection out to
// the rest of the room. Exactly one of Cursor and Selection is set.
type PresenceUpdatePayload struct {
	ParticipantID ref.ParticipantID `cbor:"participant_id"`

	// Seq is a server-assigned per-participant sequence number.
	// Receivers drop updates whose Seq is not strictly greater than
	// the last applied one, so delayed frames never overwrite newer
	// positions. Ordering by sequence rather than wall clock
	// tolerates sender clock skew.
	Seq uint64 `cbor:"seq"`

	Cursor    *CursorInfo    `cbor:"cursor,omitempty"`
	Selection *SelectionInfo `cbor:"selection,omitempty"`
}

// ChatSendPayload is the client's outbound chat text.
type ChatSendPayload struct {
	Text string `cbor:"text"`
}

// ChatEventPayload is the canonical chat message broadcast by the
// server. The sender receives its own message this way — the engine
// never inserts optimistically, preserving a single server ordering.
type ChatEventPayload struct {
	// ID is the server-assigned message identifier.
	ID string `cbor:"id"`

	// AuthorID is zero for system messages (joins, leaves, permission
	// changes).
	AuthorID ref.ParticipantID `cbor:"author_id,omitempty"`

	// System marks server-generated notices.
	System bool `cbor:"system,omitempty"`

	Text string `cbor:"text"`

	// TimestampMS is the server receive time in Unix milliseconds.
	// Display only — log order is arrival order, not wall clock.
	TimestampMS int64 `cbor:"timestamp_ms"`
}

// CreateInvitePayload requests a permission-scoped invite token.
// Owner-only; Permission must be editor or viewer.
type CreateInvitePayload struct {
	Permission Permission `cbor:"permission"`
}

// InviteCreatedPayload returns the minted token.
type InviteCreatedPayload struct {
	Token      string     `cbor:"token"`
	Permission Permission `cbor:"permission"`
}

// SetPermissionPayload changes another participant's permission.
// Owner-only.
type SetPermissionPayload struct {
	ParticipantID ref.ParticipantID `cbor:"participant_id"`
	Permission    Permission        `cbor:"permission"`
}

// PermissionChangedPayload announces an effective permission change.
// Applied immediately on receipt; local state never overrides it.
type PermissionChangedPayload struct {
	ParticipantID ref.ParticipantID `cbor:"participant_id"`
	Permission    Permission        `cbor:"permission"`
}

// ShareFilesPayload replaces the room's shared file list (owner or
// editor).
type ShareFilesPayload struct {
	Files []ref.FileID `cbor:"files"`
}

// SharedFilesChangedPayload announces the new file list. Last write
// wins; the client replaces, never merges.
type SharedFilesChangedPayload struct {
	Files []ref.FileID `cbor:"files"`
}

// CallKind distinguishes the audio and video control channels.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// CallStatePayload carries boolean call-control state. Outbound it
// describes the local user; the server broadcast fills ParticipantID.
// No media travels on this channel.
type CallStatePayload struct {
	ParticipantID ref.ParticipantID `cbor:"participant_id,omitempty"`
	Kind          CallKind          `cbor:"kind"`
	Active        bool              `cbor:"active"`
	Muted         bool              `cbor:"muted,omitempty"`
	Speaking      bool              `cbor:"speaking,omitempty"`
}

// ErrorPayload is the server's failure reply. It carries the request
// ID of the failed request in the envelope.
type ErrorPayload struct {
	Code    ErrorCode `cbor:"code"`
	Message string    `cbor:"message"`
}

// ErrorCode classifies server-reported failures.
type ErrorCode string

const (
	CodeRoomNotFound  ErrorCode = "room_not_found"
	CodeRoomFull      ErrorCode = "room_full"
	CodeInvalidInvite ErrorCode = "invalid_invite"
	CodeForbidden     ErrorCode = "forbidden"
	CodeMalformed     ErrorCode = "malformed"
	CodeRateLimited   ErrorCode = "rate_limited"
	CodeInternal      ErrorCode = "internal"
)
