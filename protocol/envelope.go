// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/tandem-editor/tandem/lib/codec"
)

// MessageType identifies the payload type of an envelope.
type MessageType string

// Client-to-server message types.
const (
	// TypeHello opens the handshake. The server answers with welcome.
	TypeHello MessageType = "hello"

	TypeCreateRoom      MessageType = "create_room"
	TypeJoinRoom        MessageType = "join_room"
	TypeLeaveRoom       MessageType = "leave_room"
	TypeCursorUpdate    MessageType = "cursor_update"
	TypeSelectionUpdate MessageType = "selection_update"
	TypeChatRead        MessageType = "chat_read"
	TypeCreateInvite    MessageType = "create_invite"
	TypeSetPermission   MessageType = "set_permission"
	TypeShareFiles      MessageType = "share_files"
)

// Server-to-client message types.
const (
	TypeWelcome            MessageType = "welcome"
	TypeRoomJoined         MessageType = "room_joined"
	TypeParticipantJoined  MessageType = "participant_joined"
	TypeParticipantLeft    MessageType = "participant_left"
	TypePresenceUpdate     MessageType = "presence_update"
	TypePermissionChanged  MessageType = "permission_changed"
	TypeSharedFilesChanged MessageType = "shared_files_changed"
	TypeInviteCreated      MessageType = "invite_created"
	TypeError              MessageType = "error"
)

// Message types that travel in both directions. A chat_message from the
// client carries only text; the server assigns the message ID and
// timestamp and broadcasts the canonical form to every participant,
// including the sender (there is no optimistic local echo). call_state
// from the client carries the local flags; the broadcast adds the
// participant ID.
const (
	TypeChatMessage MessageType = "chat_message"
	TypeCallState   MessageType = "call_state"
)

// Envelope is a single protocol frame.
type Envelope struct {
	// Type selects the payload structure.
	Type MessageType `cbor:"type"`

	// RequestID correlates a request with its reply. Empty on
	// broadcast events.
	RequestID string `cbor:"request_id,omitempty"`

	// Payload is the CBOR-encoded message body. Decoded by the
	// receiver once Type is known. May be empty for bodyless
	// messages (leave_room, chat_read).
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewEnvelope builds an envelope with an encoded payload. A nil
// payload produces a bodyless envelope.
func NewEnvelope(messageType MessageType, requestID string, payload any) (*Envelope, error) {
	envelope := &Envelope{Type: messageType, RequestID: requestID}
	if payload != nil {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encoding %s payload: %w", messageType, err)
		}
		envelope.Payload = encoded
	}
	return envelope, nil
}

// DecodePayload decodes the envelope's payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("protocol: %s envelope has no payload", e.Type)
	}
	if err := codec.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("protocol: decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// Encode serializes the envelope to a wire frame.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a wire frame into an envelope.
func Decode(data []byte) (*Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("protocol: decoding envelope: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("protocol: envelope missing type")
	}
	return &envelope, nil
}
