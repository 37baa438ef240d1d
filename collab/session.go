// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"sort"
	"time"

	"github.com/tandem-editor/tandem/lib/palette"
	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
)

// Permission re-exports the wire permission type so editor code
// imports only this package (the lib/codec RawMessage pattern).
type Permission = protocol.Permission

// Permission levels.
const (
	PermissionOwner  = protocol.PermissionOwner
	PermissionEditor = protocol.PermissionEditor
	PermissionViewer = protocol.PermissionViewer
)

// ConnState is the connection state machine's current position.
// Exactly one value at a time; it gates every UI action's
// availability.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Room is the active collaboration room.
type Room struct {
	ID     ref.RoomID
	Name   string
	HostID ref.ParticipantID

	// Files is the shared file list. Server updates replace it
	// wholesale (last write wins, no merge).
	Files []ref.FileID
}

// Cursor is a participant's live cursor position.
type Cursor struct {
	FileID ref.FileID
	Line   int
	Column int

	// At is the local arrival time of the update. Staleness tiers
	// derive from it on read; using arrival time rather than sender
	// wall clock makes fading immune to peer clock skew.
	At time.Time
}

// Selection is a participant's live selection range.
type Selection struct {
	FileID      ref.FileID
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	At          time.Time
}

// Participant is one room member's identity, permission, and live
// presence. Snapshots returned by the engine are copies — mutating
// them has no effect on session state.
type Participant struct {
	ID          ref.ParticipantID
	DisplayName string
	AvatarURL   string

	// Color is derived deterministically from ID; every client
	// renders the participant identically.
	Color palette.Color

	Permission Permission

	// Cursor and Selection are nil until the first presence update
	// arrives, and reset to nil when the connection drops (stale
	// positions pointing into since-changed documents are worse than
	// an empty overlay).
	Cursor    *Cursor
	Selection *Selection

	// Call-control flags, mirrored from call_state events.
	AudioActive bool
	VideoActive bool
	Muted       bool
	Speaking    bool

	// LastActive is the arrival time of the participant's most recent
	// presence, chat, or call event. Activity status derives from it.
	LastActive time.Time

	// Server-assigned presence sequence numbers; updates that don't
	// advance them are late duplicates and are dropped.
	cursorSeq    uint64
	selectionSeq uint64
}

// ChatMessage is one entry in the append-only room chat log. Never
// mutated after creation.
type ChatMessage struct {
	// ID is the server-assigned message identifier.
	ID string

	// AuthorID is zero for system messages.
	AuthorID ref.ParticipantID

	// System marks join/leave/permission notices interleaved in the
	// same log.
	System bool

	// Color caches the author's palette color (system gray for system
	// messages) so renderers don't need the participant record, which
	// may already be gone for a departed author.
	Color palette.Color

	Text string

	// Time is the server's receive timestamp, display only.
	Time time.Time

	// Seq is the local arrival index. The log is ordered by Seq —
	// arrival order, not wall clock, to tolerate clock skew.
	Seq uint64
}

// ScrollIntent asks the consuming editor view to bring a position into
// view. Emitted while following another participant; the engine never
// scrolls anything itself.
type ScrollIntent struct {
	ParticipantID ref.ParticipantID
	FileID        ref.FileID
	Line          int
	Column        int
}

// copyParticipant deep-copies the presence pointers so snapshot holders
// can't reach into live state.
func copyParticipant(p *Participant) Participant {
	out := *p
	if p.Cursor != nil {
		cursor := *p.Cursor
		out.Cursor = &cursor
	}
	if p.Selection != nil {
		selection := *p.Selection
		out.Selection = &selection
	}
	return out
}

// ConnState returns the current connection state.
func (e *Engine) ConnState() ConnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connState
}

// SelfID returns the server-assigned local participant ID. Zero before
// the first successful handshake.
func (e *Engine) SelfID() ref.ParticipantID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selfID
}

// Room returns a copy of the active room, or nil when not in a room.
func (e *Engine) Room() *Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return nil
	}
	room := *e.room
	room.Files = append([]ref.FileID(nil), e.room.Files...)
	return &room
}

// Participants returns a snapshot of the room's participant set,
// sorted by display name then ID for stable list rendering. Empty when
// not in a room.
func (e *Engine) Participants() []Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Participant, 0, len(e.participants))
	for _, p := range e.participants {
		out = append(out, copyParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Participant returns a snapshot of one participant by ID.
func (e *Engine) Participant(id ref.ParticipantID) (Participant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.participants[id]
	if !ok {
		return Participant{}, false
	}
	return copyParticipant(p), true
}

// Self returns the local user's participant snapshot. False before
// joining a room.
func (e *Engine) Self() (Participant, bool) {
	return e.Participant(e.SelfID())
}

// Messages returns a snapshot of the chat log in canonical order.
func (e *Engine) Messages() []ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ChatMessage(nil), e.chatLog...)
}

// UnreadCount returns the number of chat messages that arrived while
// the chat view was inactive, since the last MarkChatAsRead.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatUnread
}

// FollowTarget returns the currently followed participant, if any.
func (e *Engine) FollowTarget() (ref.ParticipantID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.followTarget, !e.followTarget.IsZero()
}
