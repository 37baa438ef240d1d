// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format between a Tandem client and
// the collaboration server.
//
// Every frame on the connection is a CBOR-encoded [Envelope]: a message
// type, an optional request ID for request/response correlation, and a
// raw payload decoded once the type is known. Encoding uses lib/codec's
// deterministic CBOR configuration.
//
// The package is shared by the engine (package collab) and the
// in-process test server (internal/collabtest). UI consumers never
// construct protocol messages — they call the engine's operations.
//
// Correlation model: client-initiated requests (create_room, join_room,
// create_invite) carry a request ID; the server's reply echoes it. An
// error reply is an "error" envelope with the same request ID.
// Broadcast events (presence, chat, membership, permission, call state)
// carry no request ID.
package protocol
