// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/tandem-editor/tandem/internal/collabtest"
)

func TestAudioCallSignaling(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice, bob := chatPair(t, h, nil)
	aliceID := alice.SelfID()

	if err := alice.StartAudioCall(context.Background()); err != nil {
		t.Fatalf("StartAudioCall: %v", err)
	}
	if self, _ := alice.Self(); !self.AudioActive {
		t.Error("local AudioActive not set on start")
	}
	waitFor(t, "bob to see alice's audio active", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && p.AudioActive
	})

	// Idempotent: re-starting changes nothing.
	if err := alice.StartAudioCall(context.Background()); err != nil {
		t.Fatalf("second StartAudioCall: %v", err)
	}

	if err := alice.ToggleAudio(context.Background()); err != nil {
		t.Fatalf("ToggleAudio: %v", err)
	}
	waitFor(t, "bob to see alice muted", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && p.Muted
	})

	if err := alice.StopAudioCall(context.Background()); err != nil {
		t.Fatalf("StopAudioCall: %v", err)
	}
	waitFor(t, "bob to see alice's audio inactive", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && !p.AudioActive
	})
}

func TestToggleMuteOutsideCall(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice, bob := chatPair(t, h, nil)
	aliceID := alice.SelfID()

	// Permitted, remembered, but not broadcast: no call is active.
	if err := alice.ToggleAudio(context.Background()); err != nil {
		t.Fatalf("ToggleAudio outside call: %v", err)
	}
	if p, ok := bob.Participant(aliceID); ok && p.Muted {
		t.Fatal("mute broadcast leaked before any call started")
	}

	// The pre-set mute becomes observable the moment the call starts.
	if err := alice.StartAudioCall(context.Background()); err != nil {
		t.Fatalf("StartAudioCall: %v", err)
	}
	waitFor(t, "bob to see alice active and muted", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && p.AudioActive && p.Muted
	})
}

func TestVideoCallSignaling(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	alice, bob := chatPair(t, h, nil)
	aliceID := alice.SelfID()

	if err := alice.StartVideoCall(context.Background()); err != nil {
		t.Fatalf("StartVideoCall: %v", err)
	}
	waitFor(t, "bob to see alice's video active", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && p.VideoActive
	})

	// Camera off while the call stays active.
	if err := alice.ToggleVideo(context.Background()); err != nil {
		t.Fatalf("ToggleVideo: %v", err)
	}
	waitFor(t, "bob to see alice's camera off", func() bool {
		p, ok := bob.Participant(aliceID)
		return ok && !p.VideoActive
	})
}

func TestCallRequiresRoom(t *testing.T) {
	h := newHarness(t, collabtest.Config{})
	engine := h.newEngine(nil)
	h.connect(engine)

	if err := engine.StartAudioCall(context.Background()); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("StartAudioCall error = %v, want ErrNoRoom", err)
	}
}
