// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tandem-editor/tandem/protocol"
)

func TestPipeRoundTrip(t *testing.T) {
	client, server := Pipe()
	ctx := context.Background()

	envelope, err := protocol.NewEnvelope(protocol.TypeChatMessage, "req-1",
		protocol.ChatSendPayload{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Write(ctx, envelope); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	received, err := server.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if received.Type != protocol.TypeChatMessage || received.RequestID != "req-1" {
		t.Errorf("received %s/%s", received.Type, received.RequestID)
	}
	var payload protocol.ChatSendPayload
	if err := received.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Text != "hello" {
		t.Errorf("text = %q", payload.Text)
	}
}

func TestPipeCloseUnblocksRead(t *testing.T) {
	client, server := Pipe()

	readErr := make(chan error, 1)
	go func() {
		_, err := server.Read(context.Background())
		readErr <- err
	}()

	client.Close()

	select {
	case err := <-readErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Read returned %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not unblock on close")
	}

	if err := client.Write(context.Background(), &protocol.Envelope{Type: protocol.TypeChatRead}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after close returned %v, want ErrClosed", err)
	}
}

func TestPipeDrainsInFlightFramesAfterClose(t *testing.T) {
	client, server := Pipe()
	ctx := context.Background()

	envelope := &protocol.Envelope{Type: protocol.TypeLeaveRoom}
	if err := client.Write(ctx, envelope); err != nil {
		t.Fatal(err)
	}
	client.Close()

	received, err := server.Read(ctx)
	if err != nil {
		t.Fatalf("Read after graceful close failed: %v", err)
	}
	if received.Type != protocol.TypeLeaveRoom {
		t.Errorf("type = %s", received.Type)
	}
	if _, err := server.Read(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("second Read returned %v, want ErrClosed", err)
	}
}

func TestPipeReadHonorsContext(t *testing.T) {
	_, server := Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := server.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read returned %v, want context.Canceled", err)
	}
}
