// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"

	"github.com/tandem-editor/tandem/protocol"
)

// Pipe returns two connected in-process Conns. Frames written to one
// side are read from the other. Envelopes pass through the real CBOR
// encoding, so pipe-backed tests exercise the same codec path as the
// WebSocket transport.
//
// Closing either side unblocks both ends with ErrClosed.
func Pipe() (client, server Conn) {
	shared := &pipeShared{done: make(chan struct{})}
	aToB := make(chan []byte, 64)
	bToA := make(chan []byte, 64)
	client = &pipeConn{shared: shared, in: bToA, out: aToB}
	server = &pipeConn{shared: shared, in: aToB, out: bToA}
	return client, server
}

// pipeShared holds close state common to both ends: a pipe is a single
// conversation, so one side hanging up ends it for both.
type pipeShared struct {
	once sync.Once
	done chan struct{}
}

func (s *pipeShared) close() {
	s.once.Do(func() { close(s.done) })
}

type pipeConn struct {
	shared *pipeShared
	in     <-chan []byte
	out    chan<- []byte
}

func (c *pipeConn) Read(ctx context.Context) (*protocol.Envelope, error) {
	select {
	case frame := <-c.in:
		return protocol.Decode(frame)
	case <-c.shared.done:
		// Drain frames already in flight before reporting closure —
		// a graceful peer may write then close.
		select {
		case frame := <-c.in:
			return protocol.Decode(frame)
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Write(ctx context.Context, envelope *protocol.Envelope) error {
	frame, err := envelope.Encode()
	if err != nil {
		return err
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.shared.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	c.shared.close()
	return nil
}
