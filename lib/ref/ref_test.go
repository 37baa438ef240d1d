// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	valid := []string{"room_abc", "room_8f14e45f-0000", "room_x"}
	for _, raw := range valid {
		t.Run(raw, func(t *testing.T) {
			id, err := ParseRoomID(raw)
			if err != nil {
				t.Fatalf("ParseRoomID(%q) failed: %v", raw, err)
			}
			if id.String() != raw {
				t.Errorf("String() = %q, want %q", id.String(), raw)
			}
			if id.IsZero() {
				t.Error("valid room ID reported as zero")
			}
		})
	}

	invalid := []string{"", "room_", "abc", "user_abc", "room_a b", "room_a\n"}
	for _, raw := range invalid {
		t.Run("invalid/"+raw, func(t *testing.T) {
			if _, err := ParseRoomID(raw); err == nil {
				t.Errorf("ParseRoomID(%q) succeeded, want error", raw)
			}
		})
	}
}

func TestParseParticipantID(t *testing.T) {
	if _, err := ParseParticipantID("user_c03d9a21"); err != nil {
		t.Fatalf("ParseParticipantID failed: %v", err)
	}
	for _, raw := range []string{"", "user_", "room_abc", "user_a b"} {
		if _, err := ParseParticipantID(raw); err == nil {
			t.Errorf("ParseParticipantID(%q) succeeded, want error", raw)
		}
	}
}

func TestIsRoomID(t *testing.T) {
	if !IsRoomID("room_abc") {
		t.Error("IsRoomID(room_abc) = false")
	}
	// Invite tokens are JWTs — no room_ prefix.
	if IsRoomID("eyJhbGciOiJIUzI1NiJ9.x.y") {
		t.Error("IsRoomID(token) = true")
	}
}

func TestRoomIDTextRoundTrip(t *testing.T) {
	id, err := ParseRoomID("room_abc")
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"room_abc"` {
		t.Errorf("marshaled form = %s", data)
	}
	var back RoomID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back != id {
		t.Errorf("round trip: got %v, want %v", back, id)
	}
}

func TestZeroMarshalFails(t *testing.T) {
	if _, err := (RoomID{}).MarshalText(); err == nil {
		t.Error("marshal of zero RoomID succeeded")
	}
	if _, err := (ParticipantID{}).MarshalText(); err == nil {
		t.Error("marshal of zero ParticipantID succeeded")
	}
}

func TestUnmarshalEmptyIsZero(t *testing.T) {
	var p ParticipantID
	if err := p.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !p.IsZero() {
		t.Error("empty input did not produce zero value")
	}
}
