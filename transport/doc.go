// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries protocol envelopes between a Tandem client
// and a collaboration server.
//
// [Conn] is one framed, bidirectional connection; [Dialer] opens one.
// The production implementation runs over a WebSocket (binary frames,
// one CBOR envelope per frame). Tests and the in-process test server
// use [Pipe], which runs the same frame encoding over in-memory
// channels so codec behavior is identical on both paths.
//
// The engine layers its connection state machine (reconnection,
// backoff, handshake) on top of this package; transport itself never
// retries.
package transport
