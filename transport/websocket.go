// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tandem-editor/tandem/protocol"
)

// defaultWriteWait bounds a single frame write when the caller's
// context carries no deadline.
const defaultWriteWait = 10 * time.Second

// WebSocketDialer opens WebSocket connections to a collaboration
// server endpoint (e.g., "ws://host:port/collab").
type WebSocketDialer struct {
	// HandshakeTimeout bounds the WebSocket upgrade. Zero uses the
	// gorilla default (no timeout); the engine always sets one from
	// its config.
	HandshakeTimeout time.Duration
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, serverURL string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", serverURL, err)
	}
	return NewWebSocketConn(conn), nil
}

// NewWebSocketConn wraps an established *websocket.Conn as a Conn.
// Used by the dialer on the client side and by test servers after an
// HTTP upgrade.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

type wsConn struct {
	conn *websocket.Conn

	// writeMu serializes frame writes; gorilla permits at most one
	// concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	initOnce  sync.Once
}

func (c *wsConn) init() {
	c.initOnce.Do(func() { c.closed = make(chan struct{}) })
}

func (c *wsConn) Read(ctx context.Context) (*protocol.Envelope, error) {
	c.init()

	// gorilla reads don't take a context. A cancelled context is
	// honored by forcing the read deadline into the past, which makes
	// the blocked ReadMessage return immediately.
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("transport: setting read deadline: %w", err)
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("transport: clearing read deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Unix(0, 0))
	})
	defer stop()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.mapError(err)
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: unexpected %d frame, want binary", messageType)
	}
	return protocol.Decode(data)
}

func (c *wsConn) Write(ctx context.Context, envelope *protocol.Envelope) error {
	c.init()

	frame, err := envelope.Encode()
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: setting write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.init()
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		// Best-effort close frame so the peer sees a graceful
		// shutdown rather than an abrupt TCP reset.
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// mapError normalizes close-related errors to ErrClosed so callers
// have one condition to test for orderly shutdown.
func (c *wsConn) mapError(err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("transport: %w", err)
}
