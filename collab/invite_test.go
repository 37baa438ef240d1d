// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tandem-editor/tandem/internal/collabtest"
	"github.com/tandem-editor/tandem/protocol"
)

func TestEditorInviteGrantsEditor(t *testing.T) {
	h := newHarness(t, collabtest.Config{DefaultPermission: protocol.PermissionViewer})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	if _, err := alice.CreateRoom(context.Background(), "Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	link, err := alice.CreateInviteLink(context.Background(), PermissionEditor)
	if err != nil {
		t.Fatalf("CreateInviteLink: %v", err)
	}
	if !strings.Contains(link, "?invite=") {
		t.Fatalf("invite link %q carries no token", link)
	}

	if _, err := bob.JoinRoom(context.Background(), link, "Bob"); err != nil {
		t.Fatalf("JoinRoom via invite: %v", err)
	}
	self, ok := bob.Self()
	if !ok {
		t.Fatal("bob has no self participant")
	}
	// The invite's scope, not the room's viewer default.
	if self.Permission != PermissionEditor {
		t.Fatalf("bob permission = %v, want editor", self.Permission)
	}
}

func TestTamperedInviteRejected(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	if _, err := alice.CreateRoom(context.Background(), "Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	link, err := alice.CreateInviteLink(context.Background(), PermissionViewer)
	if err != nil {
		t.Fatalf("CreateInviteLink: %v", err)
	}

	// Flip characters inside the signed token. The server validates
	// the signature, so a client-side edit cannot escalate a viewer
	// invite.
	tampered := strings.Replace(link, "?invite=", "?invite=x", 1)

	_, err = bob.JoinRoom(context.Background(), tampered, "Bob")
	if !IsRoomError(err, protocol.CodeInvalidInvite) {
		t.Fatalf("JoinRoom with tampered token error = %v, want invalid_invite", err)
	}
}

func TestInviteRequiresOwner(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := bob.JoinRoom(context.Background(), roomID.String(), "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	// Rejected locally, before any network round-trip.
	_, err = bob.CreateInviteLink(context.Background(), PermissionViewer)
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("CreateInviteLink error = %v, want *PermissionError", err)
	}
}

func TestInvitePermissionScope(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(nil)
	h.connect(alice)
	if _, err := alice.CreateRoom(context.Background(), "Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	// Ownership cannot be delegated through an invite.
	_, err := alice.CreateInviteLink(context.Background(), PermissionOwner)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("CreateInviteLink(owner) error = %v, want *ValidationError", err)
	}
}

func TestSetPermissionAppliesLive(t *testing.T) {
	h := newHarness(t, collabtest.Config{DefaultPermission: protocol.PermissionEditor})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := bob.JoinRoom(context.Background(), roomID.String(), "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	bobID := bob.SelfID()
	waitFor(t, "alice to see bob", func() bool {
		_, ok := alice.Participant(bobID)
		return ok
	})

	if err := alice.SetPermission(context.Background(), bobID, PermissionViewer); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	// The demotion lands on every client without anyone reconnecting,
	// the demoted user included.
	for name, engine := range map[string]*Engine{"alice": alice, "bob": bob} {
		waitFor(t, name+" to see bob demoted", func() bool {
			p, ok := engine.Participant(bobID)
			return ok && p.Permission == PermissionViewer
		})
	}

	// Permission is anchored server-side too.
	if got, ok := h.server.MemberPermission(roomID, bobID); !ok || got != protocol.PermissionViewer {
		t.Fatalf("server-side permission = %v (%v), want viewer", got, ok)
	}
}

func TestSetPermissionRequiresOwner(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := bob.JoinRoom(context.Background(), roomID.String(), "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	err = bob.SetPermission(context.Background(), alice.SelfID(), PermissionViewer)
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("SetPermission error = %v, want *PermissionError", err)
	}
}

func TestShareLinkFormat(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(func(c *Config) { c.ShareBaseURL = "https://example.test/join/" })
	h.connect(alice)

	if _, err := alice.ShareLink(); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("ShareLink outside room error = %v, want ErrNoRoom", err)
	}

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	link, err := alice.ShareLink()
	if err != nil {
		t.Fatalf("ShareLink: %v", err)
	}
	want := "https://example.test/join/" + roomID.String()
	if link != want {
		t.Fatalf("ShareLink = %q, want %q", link, want)
	}
}

func TestParseJoinTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare room ID", "room_8f14e45f", "room_8f14e45f", false},
		{"bare token", "eyJhbGciOiJIUzI1NiJ9.payload.sig", "eyJhbGciOiJIUzI1NiJ9.payload.sig", false},
		{"share URL", "https://tandem.dev/join/room_8f14e45f", "room_8f14e45f", false},
		{"invite URL", "https://tandem.dev/join/room_8f14e45f?invite=tok123", "tok123", false},
		{"whitespace trimmed", "  room_8f14e45f \n", "room_8f14e45f", false},
		{"empty", "", "", true},
		{"URL without room or token", "https://tandem.dev/about", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJoinTarget(tt.raw)
			if tt.wantErr {
				var validationErr *ValidationError
				if !errors.As(err, &validationErr) {
					t.Fatalf("ParseJoinTarget(%q) error = %v, want *ValidationError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJoinTarget(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseJoinTarget(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
