// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collabtest

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tandem-editor/tandem/transport"
)

// Dialer returns a transport.Dialer wired straight into the server
// through an in-process pipe. No sockets, no ports; tests dial it like
// a real endpoint.
func (s *Server) Dialer() transport.Dialer {
	return dialerFunc(func(ctx context.Context, serverURL string) (transport.Conn, error) {
		clientConn, serverConn := transport.Pipe()
		go s.Serve(serverConn)
		return clientConn, nil
	})
}

type dialerFunc func(ctx context.Context, serverURL string) (transport.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, serverURL string) (transport.Conn, error) {
	return f(ctx, serverURL)
}

// Handler returns an http.Handler that upgrades requests to WebSocket
// and serves the protocol on them. Used by the probe CLI's embedded
// server and by tests that want a real socket in the path.
func (s *Server) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// The test server accepts any origin; it never faces the
		// public internet.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		s.Serve(transport.NewWebSocketConn(wsConn))
	})
}
