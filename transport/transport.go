// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/tandem-editor/tandem/protocol"
)

// ErrClosed is returned by Read and Write after the connection is
// closed, locally or by the peer.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a single framed connection. Read and Write may be called
// from different goroutines; neither may be called concurrently with
// itself. Close is safe to call at any time, from any goroutine, and
// unblocks a pending Read.
type Conn interface {
	// Read blocks until the next envelope arrives, the context is
	// done, or the connection closes (ErrClosed).
	Read(ctx context.Context) (*protocol.Envelope, error)

	// Write sends one envelope. Bounded by ctx.
	Write(ctx context.Context, envelope *protocol.Envelope) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer opens a connection to a collaboration server.
type Dialer interface {
	Dial(ctx context.Context, serverURL string) (Conn, error)
}
