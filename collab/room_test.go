// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/tandem-editor/tandem/internal/collabtest"
	"github.com/tandem-editor/tandem/lib/ref"
	"github.com/tandem-editor/tandem/protocol"
)

func TestCreateAndJoinViaShareLink(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if roomID.IsZero() {
		t.Fatal("CreateRoom returned zero room ID")
	}

	link, err := alice.ShareLink()
	if err != nil {
		t.Fatalf("ShareLink: %v", err)
	}

	joinedID, err := bob.JoinRoom(context.Background(), link, "Bob")
	if err != nil {
		t.Fatalf("JoinRoom via share link: %v", err)
	}
	if joinedID != roomID {
		t.Fatalf("joined room %v, want %v", joinedID, roomID)
	}

	// Alice learns about Bob through the membership broadcast.
	waitFor(t, "alice to see two participants", func() bool {
		return len(alice.Participants()) == 2
	})

	for _, engine := range []*Engine{alice, bob} {
		owners := 0
		for _, p := range engine.Participants() {
			if p.Permission == PermissionOwner {
				owners++
				if p.ID != alice.SelfID() {
					t.Errorf("owner is %v, want %v", p.ID, alice.SelfID())
				}
			}
		}
		if owners != 1 {
			t.Errorf("owner count = %d, want exactly 1", owners)
		}
	}

	aliceSelf, ok := alice.Self()
	if !ok {
		t.Fatal("alice has no self participant")
	}
	if aliceSelf.Permission != PermissionOwner {
		t.Errorf("creator permission = %v, want owner", aliceSelf.Permission)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	engine := h.newEngine(nil)
	h.connect(engine)

	_, err := engine.JoinRoom(context.Background(), "room_deadbeef", "Bob")
	if !IsRoomError(err, protocol.CodeRoomNotFound) {
		t.Fatalf("JoinRoom error = %v, want room_not_found", err)
	}
	if engine.Room() != nil {
		t.Error("failed join left a room behind")
	}
}

func TestJoinFullRoom(t *testing.T) {
	h := newHarness(t, collabtest.Config{RoomCapacity: 2})
	alice := h.newEngine(nil)
	bob := h.newEngine(nil)
	carol := h.newEngine(nil)
	h.connect(alice)
	h.connect(bob)
	h.connect(carol)

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := bob.JoinRoom(context.Background(), roomID.String(), "Bob"); err != nil {
		t.Fatalf("JoinRoom (bob): %v", err)
	}

	_, err = carol.JoinRoom(context.Background(), roomID.String(), "Carol")
	if !IsRoomError(err, protocol.CodeRoomFull) {
		t.Fatalf("JoinRoom (carol) error = %v, want room_full", err)
	}
}

func TestCreateRoomWhileInRoom(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	engine := h.newEngine(nil)
	h.connect(engine)

	if _, err := engine.CreateRoom(context.Background(), "Alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := engine.CreateRoom(context.Background(), "Alice"); !errors.Is(err, ErrInRoom) {
		t.Fatalf("second CreateRoom error = %v, want ErrInRoom", err)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	engine := h.newEngine(nil)
	h.connect(engine)

	_, err := engine.CreateRoom(context.Background(), "   ")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("CreateRoom error = %v, want *ValidationError", err)
	}
}

func TestLeaveRoom(t *testing.T) {
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
	bobID := bob.SelfID()

	if err := bob.LeaveRoom(context.Background()); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if bob.Room() != nil {
		t.Error("room survived LeaveRoom locally")
	}
	if state := bob.ConnState(); state != StateConnected {
		t.Errorf("state after LeaveRoom = %v, want connected", state)
	}

	waitFor(t, "alice to see bob leave", func() bool {
		_, present := alice.Participant(bobID)
		return !present
	})

	// Leaving when not in a room is a no-op.
	if err := bob.LeaveRoom(context.Background()); err != nil {
		t.Fatalf("second LeaveRoom: %v", err)
	}
}

func TestShareFiles(t *testing.T) {
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

	files := []ref.FileID{"src/main.go", "src/engine.go"}
	if err := alice.ShareFiles(context.Background(), files); err != nil {
		t.Fatalf("ShareFiles: %v", err)
	}

	// Both sides converge on the broadcast list, the sender included —
	// the authoritative list is the server's echo.
	for name, engine := range map[string]*Engine{"alice": alice, "bob": bob} {
		waitFor(t, name+" to see the shared file list", func() bool {
			room := engine.Room()
			return room != nil && len(room.Files) == 2
		})
	}
}

func TestShareFilesRequiresEditPermission(t *testing.T) {
	h := newHarness(t, collabtest.Config{DefaultPermission: protocol.PermissionViewer})
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
	if self, _ := bob.Self(); self.Permission != PermissionViewer {
		t.Fatalf("bob permission = %v, want viewer", self.Permission)
	}

	err = bob.ShareFiles(context.Background(), []ref.FileID{"src/main.go"})
	var permissionErr *PermissionError
	if !errors.As(err, &permissionErr) {
		t.Fatalf("ShareFiles error = %v, want *PermissionError", err)
	}
	if permissionErr.Have != PermissionViewer {
		t.Errorf("PermissionError.Have = %v, want viewer", permissionErr.Have)
	}
}
