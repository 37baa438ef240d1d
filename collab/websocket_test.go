// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tandem-editor/tandem/internal/collabtest"
)

// TestWebSocketEndToEnd runs the engine against the test server over a
// real WebSocket instead of an in-process pipe, covering the dialer,
// frame codec, and close handling of the production transport.
func TestWebSocketEndToEnd(t *testing.T) {
	server := collabtest.NewServer(collabtest.Config{Logger: slog.New(slog.DiscardHandler)})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	newWSEngine := func() *Engine {
		engine, err := New(Config{
			ServerURL: wsURL,
			Logger:    slog.New(slog.DiscardHandler),
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(engine.Disconnect)
		if err := engine.Connect(context.Background()); err != nil {
			t.Fatalf("Connect over websocket: %v", err)
		}
		return engine
	}

	alice := newWSEngine()
	bob := newWSEngine()

	roomID, err := alice.CreateRoom(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := bob.JoinRoom(context.Background(), roomID.String(), "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := alice.SendChatMessage(context.Background(), "over the wire"); err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	waitFor(t, "bob to receive chat over websocket", func() bool {
		message, ok := lastUserMessage(bob.Messages())
		return ok && message.Text == "over the wire"
	})

	alice.UpdateCursor("src/main.go", 3, 1)
	waitFor(t, "bob to see presence over websocket", func() bool {
		p, ok := bob.Participant(alice.SelfID())
		return ok && p.Cursor != nil && p.Cursor.Line == 3
	})

	// A clean local disconnect maps to a transport close, not an error
	// surfaced to the server.
	bob.Disconnect()
	waitFor(t, "alice to see bob gone", func() bool {
		return len(alice.Participants()) == 1
	})
}
