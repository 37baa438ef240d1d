// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"testing"

	"github.com/tandem-editor/tandem/lib/ref"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	roomID, err := ref.ParseRoomID("room_abc")
	if err != nil {
		t.Fatal(err)
	}
	hostID, err := ref.ParseParticipantID("user_host")
	if err != nil {
		t.Fatal(err)
	}

	envelope, err := NewEnvelope(TypeRoomJoined, "req-1", RoomJoinedPayload{
		Room: RoomInfo{
			ID:     roomID,
			Name:   "Alice's Room",
			HostID: hostID,
			Files:  []ref.FileID{"src/main.go"},
		},
		Participants: []ParticipantInfo{
			{ID: hostID, DisplayName: "Alice", Permission: PermissionOwner},
		},
		SelfPermission: PermissionOwner,
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}

	frame, err := envelope.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != TypeRoomJoined {
		t.Errorf("type = %s, want %s", decoded.Type, TypeRoomJoined)
	}
	if decoded.RequestID != "req-1" {
		t.Errorf("request ID = %q, want req-1", decoded.RequestID)
	}

	var payload RoomJoinedPayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.Room.ID != roomID {
		t.Errorf("room ID = %v, want %v", payload.Room.ID, roomID)
	}
	if payload.Room.HostID != hostID {
		t.Errorf("host ID = %v, want %v", payload.Room.HostID, hostID)
	}
	if len(payload.Participants) != 1 || payload.Participants[0].Permission != PermissionOwner {
		t.Errorf("participants = %+v", payload.Participants)
	}
}

func TestFirstConnectHelloEncodes(t *testing.T) {
	// The very first hello has no identity to resume; it must still
	// encode (Resume is omitted, never serialized as a zero ID).
	envelope, err := NewEnvelope(TypeHello, "", HelloPayload{Version: ProtocolVersion})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	frame, err := envelope.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var payload HelloPayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.Version != ProtocolVersion {
		t.Errorf("version = %d, want %d", payload.Version, ProtocolVersion)
	}
	if payload.Resume != "" {
		t.Errorf("resume = %q, want empty on first connect", payload.Resume)
	}
}

func TestBodylessEnvelope(t *testing.T) {
	envelope, err := NewEnvelope(TypeLeaveRoom, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := envelope.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != TypeLeaveRoom {
		t.Errorf("type = %s", decoded.Type)
	}
	var payload struct{}
	if err := decoded.DecodePayload(&payload); err == nil {
		t.Error("DecodePayload on bodyless envelope succeeded, want error")
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	envelope := &Envelope{}
	frame, err := envelope.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(frame); err == nil {
		t.Error("Decode accepted an envelope without a type")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("Decode accepted garbage bytes")
	}
}

func TestPermissionHelpers(t *testing.T) {
	cases := []struct {
		permission Permission
		valid      bool
		invitable  bool
		canEdit    bool
		canManage  bool
	}{
		{PermissionOwner, true, false, true, true},
		{PermissionEditor, true, true, true, false},
		{PermissionViewer, true, true, false, false},
		{Permission("admin"), false, false, false, false},
	}
	for _, c := range cases {
		t.Run(string(c.permission), func(t *testing.T) {
			if c.permission.Valid() != c.valid {
				t.Errorf("Valid() = %v", c.permission.Valid())
			}
			if c.permission.Invitable() != c.invitable {
				t.Errorf("Invitable() = %v", c.permission.Invitable())
			}
			if c.permission.CanEdit() != c.canEdit {
				t.Errorf("CanEdit() = %v", c.permission.CanEdit())
			}
			if c.permission.CanManage() != c.canManage {
				t.Errorf("CanManage() = %v", c.permission.CanManage())
			}
		})
	}
}

func TestParsePermission(t *testing.T) {
	if _, err := ParsePermission("editor"); err != nil {
		t.Errorf("ParsePermission(editor) failed: %v", err)
	}
	if _, err := ParsePermission("root"); err == nil {
		t.Error("ParsePermission(root) succeeded")
	}
}
